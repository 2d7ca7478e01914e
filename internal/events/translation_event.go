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

package events

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome is how a pipeline run ended
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeLanguageMismatch Outcome = "language_mismatch"
	OutcomeFailed           Outcome = "failed"
)

// Valid reports whether o is a known outcome
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCompleted, OutcomeLanguageMismatch, OutcomeFailed:
		return true
	}
	return false
}

// TranslationEvent records the metadata of one pipeline run. It never carries
// transcript or translation text.
type TranslationEvent struct {
	// Core identification
	UUID      string    `json:"uuid" db:"uuid"`
	SessionID string    `json:"session_id" db:"session_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// Request
	SourceLanguage string `json:"source_language" db:"source_language"`
	TargetLanguage string `json:"target_language" db:"target_language"`
	AudioHash      string `json:"audio_hash" db:"audio_hash"`
	AudioBytes     int    `json:"audio_bytes" db:"audio_bytes"`

	// Result
	Outcome          Outcome `json:"outcome" db:"outcome"`
	FailedStage      string  `json:"failed_stage,omitempty" db:"failed_stage"`
	DetectedLanguage string  `json:"detected_language,omitempty" db:"detected_language"`
	ProcessingTime   int64   `json:"processing_time_ms" db:"processing_time_ms"`
	ErrorMessage     string  `json:"error_message,omitempty" db:"error_message"`
}

// NewTranslationEvent creates an event with a fresh UUID and the current time
func NewTranslationEvent(sessionID, sourceCode, targetCode string) *TranslationEvent {
	return &TranslationEvent{
		UUID:           uuid.NewString(),
		SessionID:      sessionID,
		Timestamp:      time.Now(),
		SourceLanguage: sourceCode,
		TargetLanguage: targetCode,
	}
}

// SetAudioMetadata fingerprints the submitted audio for duplicate detection
func (te *TranslationEvent) SetAudioMetadata(audio []byte) {
	sum := sha256.Sum256(audio)
	te.AudioHash = hex.EncodeToString(sum[:])
	te.AudioBytes = len(audio)
}

// SetDetected records the language detection reported for the transcript
func (te *TranslationEvent) SetDetected(code string) {
	te.DetectedLanguage = code
}

// Complete marks the run as successful
func (te *TranslationEvent) Complete() {
	te.Outcome = OutcomeCompleted
	te.ProcessingTime = time.Since(te.Timestamp).Milliseconds()
}

// SetMismatch marks the run as aborted because the wrong language was spoken
func (te *TranslationEvent) SetMismatch(detected string, err error) {
	te.Outcome = OutcomeLanguageMismatch
	te.DetectedLanguage = detected
	te.ErrorMessage = err.Error()
	te.ProcessingTime = time.Since(te.Timestamp).Milliseconds()
}

// SetFailure marks the run as failed at the given stage
func (te *TranslationEvent) SetFailure(stage string, err error) {
	te.Outcome = OutcomeFailed
	te.FailedStage = stage
	te.ErrorMessage = err.Error()
	te.ProcessingTime = time.Since(te.Timestamp).Milliseconds()
}

// IsValid performs basic validation on the event
func (te *TranslationEvent) IsValid() error {
	if te.UUID == "" {
		return fmt.Errorf("UUID is required")
	}

	if te.SessionID == "" {
		return fmt.Errorf("sessionID is required")
	}

	if te.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if !te.Outcome.Valid() {
		return fmt.Errorf("unknown outcome %q", te.Outcome)
	}

	if te.Outcome == OutcomeFailed && te.FailedStage == "" {
		return fmt.Errorf("failed events require a stage")
	}

	return nil
}

// String returns a human-readable representation of the event
func (te *TranslationEvent) String() string {
	return fmt.Sprintf("TranslationEvent{UUID: %s, SessionID: %s, %s->%s, Outcome: %s, Stage: %s, Time: %dms}",
		te.UUID, te.SessionID, te.SourceLanguage, te.TargetLanguage, te.Outcome, te.FailedStage, te.ProcessingTime)
}
