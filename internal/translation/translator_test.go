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

package translation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/loqalabs/loqa-translator/internal/config"
	"github.com/loqalabs/loqa-translator/internal/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestTranslator(t *testing.T, handler http.HandlerFunc) *GoogleTranslator {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	translator, err := NewGoogleTranslator(config.TranslationConfig{URL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewGoogleTranslator failed: %v", err)
	}
	return translator
}

func TestGoogleTranslator_Translate(t *testing.T) {
	translator := newTestTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate_a/single" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("sl") != "auto" {
			t.Errorf("sl = %q, want auto", q.Get("sl"))
		}
		if q.Get("tl") != "zh-CN" {
			t.Errorf("tl = %q, want zh-CN", q.Get("tl"))
		}
		if q.Get("q") != "Hello world. How are you?" {
			t.Errorf("q = %q", q.Get("q"))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[[["你好世界。","Hello world.",null,null,10],["你好吗？","How are you?",null,null,10],[null,null,"Nǐ hǎo"]],null,"en",null,null,null,1]`))
	})

	got, err := translator.Translate(context.Background(), "  Hello world. How are you?  ", "zh-CN")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "你好世界。你好吗？" {
		t.Errorf("Translate = %q", got)
	}
}

func TestGoogleTranslator_InputValidation(t *testing.T) {
	called := false
	translator := newTestTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	if _, err := translator.Translate(context.Background(), "  ", "en"); !errors.Is(err, ErrEmptyText) {
		t.Errorf("blank input error = %v, want ErrEmptyText", err)
	}
	if _, err := translator.Translate(context.Background(), strings.Repeat("a", MaxTextRunes+1), "en"); !errors.Is(err, ErrTextTooLong) {
		t.Errorf("long input error = %v, want ErrTextTooLong", err)
	}
	if called {
		t.Error("invalid input should not reach the service")
	}
}

func TestGoogleTranslator_ServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusServiceUnavailable, "unavailable", nil},
		{"not json", http.StatusOK, "<html>captcha</html>", ErrBadResponse},
		{"json object", http.StatusOK, `{"error":"nope"}`, ErrBadResponse},
		{"no segments", http.StatusOK, `[null,null,"en"]`, ErrEmptyOutcome},
		{"oversized", http.StatusOK, `[[["` + strings.Repeat("a", maxResponseBytes) + `","hello"]],null,"en"]`, ErrBadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			translator := newTestTranslator(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := translator.Translate(context.Background(), "hello", "es")
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGoogleTranslator_ContextCancelled(t *testing.T) {
	translator := newTestTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[["hola","hello"]]]`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := translator.Translate(ctx, "hello", "es"); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"día", 2, "d..."},
		{"día", 3, "dí..."},
		{"日本語", 4, "日..."},
		{"日本語", 2, "..."},
	}

	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}

func TestParseResponse(t *testing.T) {
	text, detected, err := parseResponse([]byte(`[[["Bonjour","Hello",null,null,1]],null,"en"]`))
	if err != nil {
		t.Fatalf("parseResponse failed: %v", err)
	}
	if text != "Bonjour" || detected != "en" {
		t.Errorf("parseResponse = %q, %q", text, detected)
	}
}

func TestNewGoogleTranslator_RequiresURL(t *testing.T) {
	if _, err := NewGoogleTranslator(config.TranslationConfig{}); err == nil {
		t.Error("expected error for empty URL")
	}
}

type closeErrBody struct {
	io.Reader
}

func (closeErrBody) Close() error { return errors.New("connection reset") }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func respondWith(body string) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     make(http.Header),
			Body:       closeErrBody{strings.NewReader(body)},
		}, nil
	})}
}

func observeWarnings(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, recorded := observer.New(zapcore.WarnLevel)
	logging.Logger = zap.New(core)
	t.Cleanup(func() { logging.Logger = zap.NewNop() })
	return recorded
}

func TestGoogleTranslator_CloseErrorIsLogged(t *testing.T) {
	recorded := observeWarnings(t)

	translator, err := NewGoogleTranslator(config.TranslationConfig{URL: "http://translate.invalid", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewGoogleTranslator failed: %v", err)
	}
	translator.client = respondWith(`[[["hola","hello"]],null,"en"]`)

	got, err := translator.Translate(context.Background(), "hello", "es")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "hola" {
		t.Errorf("Translate = %q, want hola", got)
	}

	if n := recorded.FilterMessage("Failed to close response body").Len(); n != 1 {
		t.Errorf("close warnings = %d, want 1", n)
	}
}
