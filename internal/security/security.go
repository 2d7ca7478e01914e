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

package security

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidSessionID is returned when a session ID is not a canonical UUID
	ErrInvalidSessionID = errors.New("invalid session ID")
)

// SanitizeLogInput removes newline characters to prevent log injection attacks
// This function should be used for all user-controlled data before logging
func SanitizeLogInput(input string) string {
	sanitized := strings.ReplaceAll(input, "\n", "")
	sanitized = strings.ReplaceAll(sanitized, "\r", "")
	return sanitized
}

// ValidateSessionID ensures a session ID is a canonical, hyphenated UUID.
// Session IDs appear in URL paths and logs, so nothing else is accepted.
func ValidateSessionID(sessionID string) error {
	if len(sessionID) != 36 {
		return ErrInvalidSessionID
	}

	parsed, err := uuid.Parse(sessionID)
	if err != nil {
		return ErrInvalidSessionID
	}

	if parsed.String() != strings.ToLower(sessionID) {
		return ErrInvalidSessionID
	}

	return nil
}
