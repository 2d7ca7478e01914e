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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/loqalabs/loqa-translator/internal/config"
	"github.com/loqalabs/loqa-translator/internal/logging"
	"go.uber.org/zap"
)

// MaxChunkRunes is the longest text the speech endpoint accepts per request
const MaxChunkRunes = 100

// Synthesizer converts text to MP3 audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text, langCode string) ([]byte, error)
}

// GoogleTTSClient implements Synthesizer with the Google Translate speech
// endpoint
type GoogleTTSClient struct {
	baseURL string
	client  *http.Client
}

// NewGoogleTTSClient creates a new speech client
func NewGoogleTTSClient(cfg config.TTSConfig) (*GoogleTTSClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("TTS URL cannot be empty")
	}

	return &GoogleTTSClient{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Synthesize fetches speech for every chunk of text and concatenates the MP3
// frames into one stream
func (c *GoogleTTSClient) Synthesize(ctx context.Context, text, langCode string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	if langCode == "" {
		return nil, fmt.Errorf("language code cannot be empty")
	}

	startTime := time.Now()
	chunks := SplitText(text, MaxChunkRunes)

	var audio bytes.Buffer
	for i, chunk := range chunks {
		if err := c.fetchChunk(ctx, &audio, chunk, langCode, i, len(chunks)); err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}

	logging.LogTTSOperation("synthesize",
		zap.String("lang", langCode),
		zap.Int("chunks", len(chunks)),
		zap.String("audio_size", humanize.Bytes(uint64(audio.Len()))),
		zap.Int64("processing_time_ms", time.Since(startTime).Milliseconds()),
	)

	return audio.Bytes(), nil
}

func (c *GoogleTTSClient) fetchChunk(ctx context.Context, dst io.Writer, chunk, langCode string, idx, total int) error {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("client", "tw-ob")
	params.Set("tl", langCode)
	params.Set("q", chunk)
	params.Set("total", strconv.Itoa(total))
	params.Set("idx", strconv.Itoa(idx))
	params.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/translate_tts?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("TTS HTTP request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.LogWarn("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("TTS request failed with status %d: %s", resp.StatusCode, string(body))
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("TTS service returned no audio")
	}
	return nil
}

// SplitText breaks text into pieces of at most max runes, preferring word
// boundaries. Words longer than max are cut.
func SplitText(text string, max int) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, word := range strings.Fields(text) {
		runes := []rune(word)
		for len(runes) > max {
			flush()
			chunks = append(chunks, string(runes[:max]))
			runes = runes[max:]
		}

		wordLen := len(runes)
		if wordLen == 0 {
			continue
		}
		if currentLen > 0 && currentLen+1+wordLen > max {
			flush()
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(string(runes))
		currentLen += wordLen
	}
	flush()

	return chunks
}
