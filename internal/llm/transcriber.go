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

package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/loqalabs/loqa-translator/internal/config"
	"github.com/loqalabs/loqa-translator/internal/logging"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Transcriber defines the interface for speech-to-text transcription services
type Transcriber interface {
	// Transcribe converts the audio file at path to text. languageHint is an
	// ISO 639 code the service may use to bias recognition; empty means
	// auto-detect.
	Transcribe(ctx context.Context, path, languageHint string) (string, error)
}

// NewOpenAIClient builds a go-openai client for any OpenAI-compatible
// provider. Transcription and enhancement share it.
func NewOpenAIClient(cfg config.STTConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return openai.NewClientWithConfig(clientConfig)
}

// GroqTranscriber implements Transcriber against an OpenAI-compatible audio
// transcription endpoint (Groq by default)
type GroqTranscriber struct {
	client *openai.Client
	model  string
}

// NewGroqTranscriber creates a transcriber using the given client and model
func NewGroqTranscriber(client *openai.Client, model string) *GroqTranscriber {
	return &GroqTranscriber{client: client, model: model}
}

// Transcribe implements the Transcriber interface
func (g *GroqTranscriber) Transcribe(ctx context.Context, path, languageHint string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("audio file unavailable: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("empty audio file")
	}

	startTime := time.Now()
	logging.Sugar.Infow("Sending transcription request",
		"model", g.model,
		"language_hint", languageHint,
		"audio_size", humanize.Bytes(uint64(info.Size())),
	)

	resp, err := g.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    g.model,
		FilePath: path,
		Language: languageHint,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	logging.Logger.Info("Transcription completed",
		zap.Int64("processing_time_ms", time.Since(startTime).Milliseconds()),
		zap.Int("text_length", len(resp.Text)),
		zap.Float64("audio_duration_s", resp.Duration),
	)

	return strings.TrimSpace(resp.Text), nil
}
