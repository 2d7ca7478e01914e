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

// Package pipeline sequences one translation run: persist audio, transcribe,
// verify the spoken language, enhance terminology, translate and, on demand,
// speak the result
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/loqalabs/loqa-translator/internal/events"
	"github.com/loqalabs/loqa-translator/internal/history"
	"github.com/loqalabs/loqa-translator/internal/languages"
	"github.com/loqalabs/loqa-translator/internal/llm"
	"github.com/loqalabs/loqa-translator/internal/logging"
	"github.com/loqalabs/loqa-translator/internal/security"
	"github.com/loqalabs/loqa-translator/internal/translation"
	"go.uber.org/zap"
)

// Dependencies are the collaborators of an Orchestrator. Detector, Recorder
// and TempDir are optional.
type Dependencies struct {
	Transcriber llm.Transcriber
	Detector    languages.Detector
	Enhancer    llm.Enhancer
	Translator  translation.Translator
	Synthesizer llm.Synthesizer
	Cipher      security.PayloadCipher
	Recorder    events.Recorder
	TempDir     string
}

// Request is one audio submission
type Request struct {
	SessionID   string
	Audio       []byte
	ContentType string
	Source      languages.Language
	Target      languages.Language

	// History receives the entry of a successful run; nil skips recording
	History *history.Store
}

// Result is the outcome of a successful run
type Result struct {
	EventID              string `json:"event_id"`
	Original             string `json:"original"`
	Translation          string `json:"translation"`
	DetectedLanguage     string `json:"detected_language,omitempty"`
	EncryptedOriginal    string `json:"-"`
	EncryptedTranslation string `json:"-"`
}

// Orchestrator runs the translation pipeline
type Orchestrator struct {
	deps Dependencies
}

// NewOrchestrator validates dependencies and returns an orchestrator
func NewOrchestrator(deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Transcriber == nil:
		return nil, fmt.Errorf("transcriber is required")
	case deps.Enhancer == nil:
		return nil, fmt.Errorf("enhancer is required")
	case deps.Translator == nil:
		return nil, fmt.Errorf("translator is required")
	case deps.Synthesizer == nil:
		return nil, fmt.Errorf("synthesizer is required")
	case deps.Cipher == nil:
		return nil, fmt.Errorf("cipher is required")
	}
	if deps.Recorder == nil {
		deps.Recorder = events.Discard
	}
	if deps.TempDir == "" {
		deps.TempDir = os.TempDir()
	}
	return &Orchestrator{deps: deps}, nil
}

// Run processes one audio submission. A wrong spoken language returns a
// *languages.MismatchError; every other failure is a *StageError. Either way
// no history entry is recorded.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	event := events.NewTranslationEvent(req.SessionID, req.Source.Code(), req.Target.Code())
	event.SetAudioMetadata(req.Audio)
	defer o.record(ctx, event)

	logging.LogPipelineStage(req.SessionID, "start",
		zap.String("source", req.Source.Code()),
		zap.String("target", req.Target.Code()),
		zap.String("audio_size", humanize.Bytes(uint64(len(req.Audio)))),
	)

	result, err := o.run(ctx, req, event)
	if err != nil {
		var mismatch *languages.MismatchError
		var se *StageError
		switch {
		case errors.As(err, &mismatch):
			event.SetMismatch(mismatch.DetectedCode, err)
			logging.LogPipelineStage(req.SessionID, "language_mismatch",
				zap.String("expected", req.Source.DetectionCode()),
				zap.String("detected", mismatch.DetectedCode),
			)
		case errors.As(err, &se):
			event.SetFailure(string(se.Stage), se.Err)
			logging.LogError(err, "Pipeline run failed",
				zap.String("session_id", req.SessionID),
				zap.String("stage", string(se.Stage)),
			)
		default:
			event.SetFailure("unknown", err)
			logging.LogError(err, "Pipeline run failed", zap.String("session_id", req.SessionID))
		}
		return nil, err
	}

	event.Complete()
	result.EventID = event.UUID

	if req.History != nil {
		req.History.Record(req.Source.Name(), req.Target.Name(), result.Original, result.Translation)
	}

	logging.LogPipelineStage(req.SessionID, "completed",
		zap.Int64("processing_time_ms", event.ProcessingTime),
	)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, event *events.TranslationEvent) (*Result, error) {
	if len(req.Audio) == 0 {
		return nil, stageErr(StageSaveAudio, fmt.Errorf("audio buffer is empty"))
	}
	if !req.Source.Valid() || !req.Target.Valid() {
		return nil, stageErr(StageTranscribe, fmt.Errorf("source and target languages are required"))
	}

	transcript, err := o.transcribe(ctx, req)
	if err != nil {
		return nil, err
	}

	detected, err := o.verifyLanguage(req, transcript)
	if err != nil {
		return nil, err
	}
	event.SetDetected(detected)

	sealed, err := o.deps.Cipher.Encrypt(transcript)
	if err != nil {
		return nil, stageErr(StageEncrypt, err)
	}

	enhanced := o.enhance(ctx, req.SessionID, sealed)

	translated, err := o.translate(ctx, req.SessionID, enhanced, req.Target)
	if err != nil {
		return nil, err
	}

	original, ok := o.deps.Cipher.Decrypt(enhanced)
	if !ok {
		return nil, stageErr(StageDecrypt, fmt.Errorf("enhanced transcript could not be decrypted"))
	}
	translation, ok := o.deps.Cipher.Decrypt(translated)
	if !ok {
		return nil, stageErr(StageDecrypt, fmt.Errorf("translation could not be decrypted"))
	}

	return &Result{
		Original:             original,
		Translation:          translation,
		DetectedLanguage:     detected,
		EncryptedOriginal:    enhanced,
		EncryptedTranslation: translated,
	}, nil
}

// transcribe persists the audio to an owner-only temp file for the length of
// the transcription call
func (o *Orchestrator) transcribe(ctx context.Context, req Request) (string, error) {
	f, err := os.CreateTemp(o.deps.TempDir, "translator-*"+audioExtension(req.ContentType))
	if err != nil {
		return "", stageErr(StageSaveAudio, err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.LogWarn("Failed to remove temp audio file", zap.String("path", path), zap.Error(err))
		}
	}()

	if err := f.Chmod(0600); err != nil {
		_ = f.Close()
		return "", stageErr(StageSaveAudio, err)
	}
	if _, err := f.Write(req.Audio); err != nil {
		_ = f.Close()
		return "", stageErr(StageSaveAudio, err)
	}
	if err := f.Close(); err != nil {
		return "", stageErr(StageSaveAudio, err)
	}

	start := time.Now()
	transcript, err := o.deps.Transcriber.Transcribe(ctx, path, req.Source.TranscriptionCode())
	if err != nil {
		return "", stageErr(StageTranscribe, err)
	}
	if transcript == "" {
		return "", stageErr(StageTranscribe, ErrNoSpeech)
	}

	logging.LogPipelineStage(req.SessionID, string(StageTranscribe),
		zap.Int("text_length", len(transcript)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return transcript, nil
}

// verifyLanguage returns the detected code, or a mismatch error. Inconclusive
// detection, or a source the detector cannot recognize, is logged and skipped.
func (o *Orchestrator) verifyLanguage(req Request, transcript string) (string, error) {
	if o.deps.Detector == nil {
		return "", nil
	}
	if cov, ok := o.deps.Detector.(languages.Coverage); ok && !cov.Supports(req.Source) {
		logging.LogWarn("Language detection skipped: source not covered by detector",
			zap.String("session_id", req.SessionID),
			zap.String("source", req.Source.Code()),
		)
		return "", nil
	}

	detected, err := o.deps.Detector.Detect(transcript)
	if err != nil {
		logging.LogWarn("Language detection skipped",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		return "", nil
	}

	if err := languages.CheckMismatch(detected, req.Source); err != nil {
		return detected, err
	}
	return detected, nil
}

// enhance returns the enhanced ciphertext, or the input unchanged when the
// enhancement service or decryption fails
func (o *Orchestrator) enhance(ctx context.Context, sessionID, sealed string) string {
	text, ok := o.deps.Cipher.Decrypt(sealed)
	if !ok {
		logging.LogWarn("Enhancement skipped: payload could not be decrypted", zap.String("session_id", sessionID))
		return sealed
	}

	enhanced, err := o.deps.Enhancer.Enhance(ctx, text)
	if err != nil {
		logging.LogWarn("Enhancement failed, using raw transcript",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return sealed
	}

	out, err := o.deps.Cipher.Encrypt(enhanced)
	if err != nil {
		logging.LogWarn("Enhancement result could not be encrypted, using raw transcript",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return sealed
	}

	logging.LogPipelineStage(sessionID, string(StageEnhance), zap.Int("text_length", len(enhanced)))
	return out
}

func (o *Orchestrator) translate(ctx context.Context, sessionID, sealed string, target languages.Language) (string, error) {
	text, ok := o.deps.Cipher.Decrypt(sealed)
	if !ok {
		return "", stageErr(StageTranslate, fmt.Errorf("payload could not be decrypted"))
	}

	translated, err := o.deps.Translator.Translate(ctx, text, target.Code())
	if err != nil {
		return "", stageErr(StageTranslate, err)
	}

	out, err := o.deps.Cipher.Encrypt(translated)
	if err != nil {
		return "", stageErr(StageEncrypt, err)
	}

	logging.LogPipelineStage(sessionID, string(StageTranslate),
		zap.String("target", target.Code()),
		zap.Int("text_length", len(translated)),
	)
	return out, nil
}

// Speak synthesizes the decrypted text and writes it to an owner-only mp3
// file. The caller removes the file after playback.
func (o *Orchestrator) Speak(ctx context.Context, sealed string, lang languages.Language) (string, error) {
	text, ok := o.deps.Cipher.Decrypt(sealed)
	if !ok {
		return "", stageErr(StageDecrypt, fmt.Errorf("payload could not be decrypted"))
	}
	if !lang.Valid() {
		return "", stageErr(StageSpeak, fmt.Errorf("language is required"))
	}

	audio, err := o.deps.Synthesizer.Synthesize(ctx, text, lang.Code())
	if err != nil {
		return "", stageErr(StageSpeak, err)
	}

	f, err := os.CreateTemp(o.deps.TempDir, "translator-*.mp3")
	if err != nil {
		return "", stageErr(StageSpeak, err)
	}
	path := f.Name()

	if err := writeAndClose(f, audio); err != nil {
		_ = os.Remove(path)
		return "", stageErr(StageSpeak, err)
	}

	return path, nil
}

func writeAndClose(f *os.File, data []byte) error {
	if err := f.Chmod(0600); err != nil {
		_ = f.Close()
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (o *Orchestrator) record(ctx context.Context, event *events.TranslationEvent) {
	// the run's own context may already be cancelled
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := o.deps.Recorder.Record(recordCtx, event); err != nil {
		logging.LogWarn("Failed to record translation event",
			zap.String("uuid", event.UUID),
			zap.Error(err),
		)
	}
}

var audioExtensions = map[string]string{
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp4":   ".m4a",
	"audio/flac":  ".flac",
}

func audioExtension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		if ext, ok := audioExtensions[mediaType]; ok {
			return ext
		}
	}
	return ".wav"
}
