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

package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-translator/internal/api"
	"github.com/loqalabs/loqa-translator/internal/config"
	"github.com/loqalabs/loqa-translator/internal/events"
	"github.com/loqalabs/loqa-translator/internal/history"
	"github.com/loqalabs/loqa-translator/internal/pipeline"
	"github.com/loqalabs/loqa-translator/internal/security"
	"github.com/loqalabs/loqa-translator/internal/session"
	"github.com/loqalabs/loqa-translator/internal/storage"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// services stands in for every external provider
type services struct {
	mu          sync.Mutex
	transcript  string
	detected    string
	translation string
	sttErr      error
	ttsErr      error
	spoken      []string
}

func (s *services) Transcribe(context.Context, string, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript, s.sttErr
}

func (s *services) Detect(string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detected, nil
}

func (s *services) Enhance(_ context.Context, text string) (string, error) {
	return text, nil
}

func (s *services) Translate(context.Context, string, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.translation, nil
}

func (s *services) Synthesize(_ context.Context, text, lang string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttsErr != nil {
		return nil, s.ttsErr
	}
	s.spoken = append(s.spoken, lang+":"+text)
	return []byte("ID3-fake-mp3"), nil
}

type testEnv struct {
	server  *Server
	fake    *services
	tempDir string
}

func createTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         0,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Session: config.SessionConfig{
			HistoryCapacity: history.DefaultCapacity,
			IdleTimeout:     time.Hour,
		},
	}
}

func newTestEnv(t *testing.T, cfg *config.Config, withArchive bool) *testEnv {
	t.Helper()

	fake := &services{
		transcript:  "Good morning",
		detected:    "en",
		translation: "Buenos días",
	}

	cipher, err := security.NewCipher("test-key")
	require.NoError(t, err)

	tempDir := t.TempDir()
	deps := pipeline.Dependencies{
		Transcriber: fake,
		Detector:    fake,
		Enhancer:    fake,
		Translator:  fake,
		Synthesizer: fake,
		Cipher:      cipher,
		TempDir:     tempDir,
	}

	opts := Options{Sessions: session.NewManager(cfg.Session)}

	if withArchive {
		db, err := storage.NewDatabase(storage.DatabaseConfig{Path: filepath.Join(t.TempDir(), "events.db")})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		store := storage.NewTranslationEventsStore(db)
		deps.Recorder = store
		opts.Events = store
		opts.Purger = store
	}

	orchestrator, err := pipeline.NewOrchestrator(deps)
	require.NoError(t, err)
	opts.Pipeline = orchestrator

	s, err := New(cfg, opts)
	require.NoError(t, err)

	return &testEnv{server: s, fake: fake, tempDir: tempDir}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/sessions", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var snap struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotEmpty(t, snap.ID)
	return snap.ID
}

func (e *testEnv) snapshot(t *testing.T, id string) map[string]interface{} {
	t.Helper()

	rec := e.do(t, http.MethodGet, "/api/sessions/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap
}

func (e *testEnv) record(t *testing.T, id string) *httptest.ResponseRecorder {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/sessions/"+id+"/start", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	return e.do(t, http.MethodPost, "/api/sessions/"+id+"/audio?source=en&target=es", []byte("RIFF....WAVEfmt "), "audio/webm")
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestNew_RequiresCollaborators(t *testing.T) {
	cfg := createTestConfig()

	_, err := New(cfg, Options{})
	assert.Error(t, err)

	_, err = New(cfg, Options{Sessions: session.NewManager(cfg.Session)})
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)
	env.createSession(t)

	w := env.do(t, http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var health map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, "ok", health["status"])
	assert.Contains(t, health, "timestamp")
	assert.Equal(t, float64(1), health["sessions"])
	assert.Equal(t, false, health["archive"])
	assert.Equal(t, map[string]interface{}{"enabled": false, "connected": false}, health["nats"])
}

type fakeBus struct{}

func (fakeBus) IsConnected() bool { return true }

func (fakeBus) GetStats() nats.Statistics {
	return nats.Statistics{InMsgs: 3, OutMsgs: 4, Reconnects: 1}
}

func (fakeBus) ObservedEvents() int64 { return 3 }

func TestHandleHealth_EventBus(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), true)
	env.server.opts.Bus = fakeBus{}

	w := env.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var health struct {
		Archive bool `json:"archive"`
		NATS    struct {
			Enabled        bool   `json:"enabled"`
			Connected      bool   `json:"connected"`
			InMsgs         uint64 `json:"in_msgs"`
			OutMsgs        uint64 `json:"out_msgs"`
			Reconnects     uint64 `json:"reconnects"`
			ObservedEvents int64  `json:"observed_events"`
		} `json:"nats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))

	assert.True(t, health.Archive)
	assert.True(t, health.NATS.Enabled)
	assert.True(t, health.NATS.Connected)
	assert.Equal(t, uint64(3), health.NATS.InMsgs)
	assert.Equal(t, uint64(4), health.NATS.OutMsgs)
	assert.Equal(t, uint64(1), health.NATS.Reconnects)
	assert.Equal(t, int64(3), health.NATS.ObservedEvents)
}

func TestHandleIndex(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)

	w := env.do(t, http.MethodGet, "/", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Loqa Translator")
}

func TestHandleLanguages(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)

	w := env.do(t, http.MethodGet, "/api/languages", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var langs []map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &langs))
	require.NotEmpty(t, langs)
	assert.Equal(t, "English", langs[0]["name"])
	assert.Equal(t, "en", langs[0]["code"])
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)

	t.Run("defaults", func(t *testing.T) {
		snap := env.snapshot(t, env.createSession(t))
		assert.Equal(t, "stopped", snap["state"])
		assert.Equal(t, "English", snap["source"].(map[string]interface{})["name"])
		assert.Equal(t, "Spanish", snap["target"].(map[string]interface{})["name"])
	})

	t.Run("explicit languages", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/sessions", []byte(`{"source":"German","target":"ja"}`), "application/json")
		require.Equal(t, http.StatusCreated, w.Code)

		var snap map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
		assert.Equal(t, "de", snap["source"].(map[string]interface{})["code"])
		assert.Equal(t, "ja", snap["target"].(map[string]interface{})["code"])
	})

	t.Run("bad body", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/sessions", []byte(`{"source":`), "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = env.do(t, http.MethodPost, "/api/sessions", []byte(`{"source":"Klingon"}`), "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSessionLookup(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)

	tests := []struct {
		name string
		path string
	}{
		{"malformed id", "/api/sessions/not-a-uuid"},
		{"unknown id", "/api/sessions/3f2504e0-4f89-41d3-9a0c-0305e82c3301"},
		{"unknown id history", "/api/sessions/3f2504e0-4f89-41d3-9a0c-0305e82c3301/history"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, nil, "")
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)
	id := env.createSession(t)

	w := env.do(t, http.MethodDelete, "/api/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSession_PurgesArchive(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), true)
	id := env.createSession(t)
	other := env.createSession(t)

	require.Equal(t, http.StatusOK, env.record(t, id).Code)
	require.Equal(t, http.StatusOK, env.record(t, other).Code)

	total := func(sessionID string) int64 {
		w := env.do(t, http.MethodGet, "/api/events?session_id="+sessionID, nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		var resp api.ListTranslationEventsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp.Total
	}
	require.Equal(t, int64(1), total(id))

	w := env.do(t, http.MethodDelete, "/api/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, int64(0), total(id))
	assert.Equal(t, int64(1), total(other), "other sessions keep their events")
}

type failingPurger struct{}

func (failingPurger) DeleteSession(context.Context, string) (int64, error) {
	return 0, errors.New("archive unavailable")
}

func TestDeleteSession_PurgeFailureStillDeletes(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)
	env.server.opts.Purger = failingPurger{}
	id := env.createSession(t)

	w := env.do(t, http.MethodDelete, "/api/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordingTransitions(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)
	id := env.createSession(t)
	base := "/api/sessions/" + id

	steps := []struct {
		action         string
		expectedStatus int
		expectedState  string
	}{
		{"stop", http.StatusConflict, "stopped"},
		{"start", http.StatusOK, "recording"},
		{"start", http.StatusConflict, "recording"},
		{"reset", http.StatusConflict, "recording"},
		{"stop", http.StatusOK, "stopped"},
		{"reset", http.StatusOK, "stopped"},
		{"reset", http.StatusOK, "stopped"},
	}

	for _, step := range steps {
		w := env.do(t, http.MethodPost, base+"/"+step.action, nil, "")
		assert.Equal(t, step.expectedStatus, w.Code, step.action)
		assert.Equal(t, step.expectedState, env.snapshot(t, id)["state"], step.action)
	}
}

func TestAudioFlow(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), true)
	id := env.createSession(t)

	w := env.record(t, id)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "Good morning", result["original"])
	assert.Equal(t, "Buenos días", result["translation"])
	assert.Equal(t, "en", result["detected_language"])
	assert.NotEmpty(t, result["event_id"])
	assert.NotContains(t, result, "EncryptedOriginal")

	snap := env.snapshot(t, id)
	assert.Equal(t, "stopped", snap["state"])
	assert.Equal(t, true, snap["has_result"])
	assert.Equal(t, false, snap["has_audio"])
	assert.Equal(t, float64(1), snap["history_count"])
	assert.NotContains(t, snap, "error")

	t.Run("history", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/sessions/"+id+"/history", nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		var entries []history.Entry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "English", entries[0].SourceLanguage)
		assert.Equal(t, "Spanish", entries[0].TargetLanguage)
		assert.Equal(t, "Good morning", entries[0].OriginalText)
		assert.Equal(t, "Buenos días", entries[0].TranslatedText)
	})

	t.Run("csv export", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/sessions/"+id+"/history.csv", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
		assert.Equal(t, `attachment; filename="translito_history.csv"`, w.Header().Get("Content-Disposition"))

		rows, err := csv.NewReader(w.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, []string{"English", "Spanish", "Good morning", "Buenos días"}, rows[1][1:])
	})

	t.Run("speak", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/sessions/"+id+"/speak?which=translation", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
		assert.Equal(t, "ID3-fake-mp3", w.Body.String())

		w = env.do(t, http.MethodPost, "/api/sessions/"+id+"/speak?which=original", nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		assert.Equal(t, []string{"es:Buenos días", "en:Good morning"}, env.fake.spoken)

		leftovers, err := os.ReadDir(env.tempDir)
		require.NoError(t, err)
		assert.Empty(t, leftovers, "audio and speech temp files must be removed")
	})

	t.Run("archive", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/events?session_id="+id, nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp api.ListTranslationEventsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Events, 1)
		assert.Equal(t, events.OutcomeCompleted, resp.Events[0].Outcome)
		assert.Equal(t, result["event_id"], resp.Events[0].UUID)
	})

	t.Run("clear history", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/sessions/"+id+"/history", nil, "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, float64(0), env.snapshot(t, id)["history_count"])
	})

	t.Run("start clears the last result", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/sessions/"+id+"/start", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, env.snapshot(t, id)["has_result"])

		w = env.do(t, http.MethodPost, "/api/sessions/"+id+"/speak", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAudio_NotRecording(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/sessions/"+id+"/audio?source=en&target=es", []byte("data"), "audio/wav")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAudio_BadRequest(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)
	id := env.createSession(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/sessions/"+id+"/start", nil, "").Code)

	tests := []struct {
		name  string
		query string
		body  []byte
	}{
		{"missing source", "?target=es", []byte("data")},
		{"unknown target", "?source=en&target=xx", []byte("data")},
		{"empty recording", "?source=en&target=es", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/sessions/"+id+"/audio"+tt.query, tt.body, "audio/wav")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	assert.Equal(t, "recording", env.snapshot(t, id)["state"])
}

func TestAudio_LanguageMismatch(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), true)
	env.fake.detected = "fr"
	id := env.createSession(t)

	w := env.record(t, id)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	msg := decodeError(t, w)
	assert.Equal(t, "Language mismatch detected. You selected English but spoke in French.", msg)

	snap := env.snapshot(t, id)
	assert.Equal(t, msg, snap["error"])
	assert.Equal(t, false, snap["has_result"])
	assert.Equal(t, float64(0), snap["history_count"])

	w = env.do(t, http.MethodGet, "/api/events?outcome=language_mismatch", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp api.ListTranslationEventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Total)
}

func TestAudio_PipelineFailure(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)
	env.fake.sttErr = errors.New("upstream 500")
	id := env.createSession(t)

	w := env.record(t, id)
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, pipeline.FailureMessage, decodeError(t, w))

	snap := env.snapshot(t, id)
	assert.Equal(t, pipeline.FailureMessage, snap["error"])
	assert.Equal(t, float64(0), snap["history_count"])

	// a new recording clears the error
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/sessions/"+id+"/start", nil, "").Code)
	assert.NotContains(t, env.snapshot(t, id), "error")
}

func TestSpeak(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/sessions/"+id+"/speak", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusOK, env.record(t, id).Code)

	w = env.do(t, http.MethodPost, "/api/sessions/"+id+"/speak?which=subtitles", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.fake.ttsErr = errors.New("429 too many requests")
	w = env.do(t, http.MethodPost, "/api/sessions/"+id+"/speak", nil, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, pipeline.SpeakFailureMessage, decodeError(t, w))
}

func TestEventsAPI_DisabledWithoutArchive(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)

	w := env.do(t, http.MethodGet, "/api/events", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := createTestConfig()
	cfg.Server.RateLimitPerMinute = 1
	env := newTestEnv(t, cfg, false)
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/sessions/"+id+"/speak", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/sessions/"+id+"/speak", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// other routes are not limited
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/sessions/"+id, nil, "").Code)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "POST"))
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t, createTestConfig(), false)

	done := make(chan error, 1)
	go func() {
		done <- env.server.Start()
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, env.server.Stop(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
