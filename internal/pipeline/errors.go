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

package pipeline

import (
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-translator/internal/languages"
)

// Stage names a step of the pipeline
type Stage string

const (
	StageSaveAudio  Stage = "save_audio"
	StageTranscribe Stage = "transcribe"
	StageEncrypt    Stage = "encrypt"
	StageEnhance    Stage = "enhance"
	StageTranslate  Stage = "translate"
	StageDecrypt    Stage = "decrypt"
	StageSpeak      Stage = "speak"
)

// User-facing messages. Only a language mismatch gets a specific message.
const (
	FailureMessage      = "Failed to transcribe audio. Please try again."
	SpeakFailureMessage = "Failed to synthesize speech. Please try again."
)

// ErrNoSpeech is returned when transcription produced no text
var ErrNoSpeech = errors.New("no speech recognized")

// StageError reports which stage of a run failed
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// UserMessage maps a Run error to the text shown to the user
func UserMessage(err error) string {
	var mismatch *languages.MismatchError
	if errors.As(err, &mismatch) {
		return mismatch.Error()
	}
	return FailureMessage
}
