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
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
)

// ErrDetectionInconclusive means the text was too short or too ambiguous to
// identify. Callers skip the mismatch check rather than fail.
var ErrDetectionInconclusive = errors.New("language detection inconclusive")

// DefaultMinRelativeDistance is the confidence gap required between the best
// and second-best candidate before a detection is trusted
const DefaultMinRelativeDistance = 0.1

// Detector identifies the language of a piece of text
type Detector interface {
	// Detect returns a lower-case ISO 639 code
	Detect(text string) (string, error)
}

// Coverage is implemented by detectors that only recognize some languages.
// A speaker of an uncovered language cannot be verified.
type Coverage interface {
	Supports(l Language) bool
}

// LinguaDetector is a Detector backed by lingua's n-gram models, restricted to
// the registered languages lingua knows
type LinguaDetector struct {
	// MinRunes is the shortest text worth classifying
	MinRunes int

	detector lingua.LanguageDetector
	covered  map[string]bool
}

// NewLinguaDetector builds a detector for every registered language lingua
// has a model for. minRelativeDistance must be in [0, 0.99].
func NewLinguaDetector(minRelativeDistance float64) *LinguaDetector {
	models := make(map[string]lingua.Language)
	for _, l := range lingua.AllLanguages() {
		models[strings.ToLower(l.IsoCode639_1().String())] = l
	}

	covered := make(map[string]bool)
	var selected []lingua.Language
	for _, l := range All() {
		code := l.DetectionCode()
		if covered[code] {
			continue
		}
		if model, ok := models[code]; ok {
			covered[code] = true
			selected = append(selected, model)
		}
	}

	return &LinguaDetector{
		MinRunes: 3,
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(selected...).
			WithMinimumRelativeDistance(minRelativeDistance).
			Build(),
		covered: covered,
	}
}

// Supports reports whether l can ever be detected
func (d *LinguaDetector) Supports(l Language) bool {
	return d.covered[l.DetectionCode()]
}

// Detect classifies text and reports ErrDetectionInconclusive when no
// language wins by the minimum relative distance
func (d *LinguaDetector) Detect(text string) (string, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < d.MinRunes {
		return "", ErrDetectionInconclusive
	}

	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", ErrDetectionInconclusive
	}
	return strings.ToLower(lang.IsoCode639_1().String()), nil
}

// DetectorFunc adapts a plain function to the Detector interface
type DetectorFunc func(text string) (string, error)

// Detect calls f(text)
func (f DetectorFunc) Detect(text string) (string, error) {
	return f(text)
}
