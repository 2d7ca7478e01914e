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

// Package translation wraps the machine translation service
package translation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/loqalabs/loqa-translator/internal/config"
	"github.com/loqalabs/loqa-translator/internal/logging"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// MaxTextRunes is the longest input the translation endpoint accepts
const MaxTextRunes = 5000

// maxResponseBytes bounds how much of a translation response is read
const maxResponseBytes = 1 << 20

var (
	ErrEmptyText    = errors.New("text to translate is empty")
	ErrTextTooLong  = fmt.Errorf("text exceeds %d characters", MaxTextRunes)
	ErrBadResponse  = errors.New("unexpected translation response")
	ErrEmptyOutcome = errors.New("translation service returned no text")
)

// Translator translates text into a target language, detecting the source
type Translator interface {
	Translate(ctx context.Context, text, targetCode string) (string, error)
}

// GoogleTranslator implements Translator with the public Google Translate
// web endpoint
type GoogleTranslator struct {
	baseURL string
	client  *http.Client
}

// NewGoogleTranslator creates a translator from configuration
func NewGoogleTranslator(cfg config.TranslationConfig) (*GoogleTranslator, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("translation URL cannot be empty")
	}

	return &GoogleTranslator{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Translate implements the Translator interface. The source language is
// always auto-detected by the service.
func (g *GoogleTranslator) Translate(ctx context.Context, text, targetCode string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxTextRunes {
		return "", ErrTextTooLong
	}

	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", "auto")
	params.Set("tl", targetCode)
	params.Set("dt", "t")
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/translate_a/single?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	startTime := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation HTTP request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.LogWarn("Failed to close response body", zap.Error(err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read translation response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return "", fmt.Errorf("%w: larger than %d bytes", ErrBadResponse, maxResponseBytes)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translation failed with status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	translated, detected, err := parseResponse(body)
	if err != nil {
		return "", err
	}

	logging.Logger.Info("Translation completed",
		zap.String("detected_source", detected),
		zap.String("target", targetCode),
		zap.Int("text_length", len(translated)),
		zap.Int64("processing_time_ms", time.Since(startTime).Milliseconds()),
	)

	return translated, nil
}

// parseResponse extracts the translated sentences and the detected source
// language from the nested-array response
func parseResponse(body []byte) (string, string, error) {
	if !gjson.ValidBytes(body) {
		return "", "", ErrBadResponse
	}

	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return "", "", ErrBadResponse
	}

	var sb strings.Builder
	for _, segment := range root.Get("0.#.0").Array() {
		if segment.Type == gjson.String {
			sb.WriteString(segment.String())
		}
	}

	translated := strings.TrimSpace(sb.String())
	if translated == "" {
		return "", "", ErrEmptyOutcome
	}

	return translated, root.Get("2").String(), nil
}

// truncate shortens s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
