/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package languages

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// MismatchError reports that the spoken language differs from the one the
// user selected as source
type MismatchError struct {
	Expected     Language
	DetectedCode string
}

// Detected returns the registered language for the detected code, if any
func (e *MismatchError) Detected() (Language, bool) {
	return FromDetectionCode(e.DetectedCode)
}

func (e *MismatchError) Error() string {
	spoken := e.DetectedCode
	if l, ok := e.Detected(); ok {
		spoken = l.Name()
	}
	return fmt.Sprintf("Language mismatch detected. You selected %s but spoke in %s.", e.Expected.Name(), spoken)
}

// PrimarySubtag returns the lower-case primary language subtag of a code:
// "es-ES" -> "es", "zh_TW" -> "zh". Codes BCP 47 cannot parse fall back to
// the text before the first separator.
func PrimarySubtag(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if tag, err := language.Parse(code); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			return base.String()
		}
	}
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		return code[:i]
	}
	return code
}

// CodesMatch reports whether two language codes name the same language,
// either exactly or by primary subtag
func CodesMatch(a, b string) bool {
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return true
	}
	pa, pb := PrimarySubtag(a), PrimarySubtag(b)
	return pa != "" && pa == pb
}

// CheckMismatch compares a detected code against the expected source
// language. It returns nil when they agree and a *MismatchError otherwise.
func CheckMismatch(detected string, expected Language) error {
	if CodesMatch(detected, expected.DetectionCode()) || CodesMatch(detected, expected.Code()) {
		return nil
	}
	// detectors sometimes report an alias of the registered detection code
	if l, ok := FromDetectionCode(detected); ok && CodesMatch(l.DetectionCode(), expected.DetectionCode()) {
		return nil
	}
	return &MismatchError{Expected: expected, DetectedCode: strings.ToLower(strings.TrimSpace(detected))}
}
