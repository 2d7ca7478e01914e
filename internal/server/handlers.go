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
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/loqalabs/loqa-translator/internal/history"
	"github.com/loqalabs/loqa-translator/internal/languages"
	"github.com/loqalabs/loqa-translator/internal/logging"
	"github.com/loqalabs/loqa-translator/internal/pipeline"
	"github.com/loqalabs/loqa-translator/internal/security"
	"github.com/loqalabs/loqa-translator/internal/session"
	"go.uber.org/zap"
)

type ctxKey int

const sessionKey ctxKey = iota

type transition int

const (
	startEvent transition = iota
	stopEvent
	resetEvent
)

// languageSelection is the optional body of POST /api/sessions
type languageSelection struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// translationResponse is returned by a successful audio submission
type translationResponse struct {
	*pipeline.Result
	Source languages.Language `json:"source"`
	Target languages.Language `json:"target"`
}

func sessionFrom(ctx context.Context) *session.Session {
	return ctx.Value(sessionKey).(*session.Session)
}

// sessionCtx resolves {id} to a live session or answers 404
func (s *Server) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, err := s.opts.Sessions.Get(id)
		if err != nil {
			if !errors.Is(err, session.ErrSessionNotFound) && !errors.Is(err, security.ErrInvalidSessionID) {
				logging.LogError(err, "Session lookup failed")
			}
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeStatusJSON(w, http.StatusOK, languages.All())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var sel languageSelection
	if r.ContentLength > 0 {
		if err := readJSON(r, &sel); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var source, target languages.Language
	var err error
	if sel.Source != "" {
		if source, err = languages.Parse(sel.Source); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if sel.Target != "" {
		if target, err = languages.Parse(sel.Target); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sess := s.opts.Sessions.Create()
	_ = sess.Interact(func(c *session.Context) error {
		if source.Valid() {
			c.Source = source
		}
		if target.Valid() {
			c.Target = target
		}
		return nil
	})

	writeStatusJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeStatusJSON(w, http.StatusOK, sessionFrom(r.Context()).Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	s.opts.Sessions.Delete(sess.ID())

	var purged int64
	if s.opts.Purger != nil {
		n, err := s.opts.Purger.DeleteSession(r.Context(), sess.ID())
		if err != nil {
			logging.LogError(err, "Failed to purge archived events", zap.String("session_id", sess.ID()))
		}
		purged = n
	}
	logging.LogSessionEvent(sess.ID(), "deleted", zap.Int64("archived_events_purged", purged))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransition(t transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFrom(r.Context())

		err := sess.Interact(func(c *session.Context) error {
			switch t {
			case startEvent:
				if err := c.Start(r.Context()); err != nil {
					return err
				}
				c.ClearResults()
				return nil
			case stopEvent:
				return c.Stop(r.Context())
			default:
				if err := c.Reset(r.Context()); err != nil {
					return err
				}
				c.ClearResults()
				return nil
			}
		})
		if errors.Is(err, session.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			logging.LogError(err, "Recording transition failed", zap.String("session_id", sess.ID()))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeStatusJSON(w, http.StatusOK, sess.Snapshot())
	}
}

// handleAudio takes the recording captured by the browser and runs the
// translation pipeline on it
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	source, err := languages.Parse(r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "source: "+err.Error())
		return
	}
	target, err := languages.Parse(r.URL.Query().Get("target"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "target: "+err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "recording is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read recording")
		return
	}

	var result *pipeline.Result
	var runErr error

	err = sess.Interact(func(c *session.Context) error {
		if err := c.SubmitAudio(r.Context(), body, r.Header.Get("Content-Type")); err != nil {
			return err
		}
		c.Source, c.Target = source, target

		audio, contentType, _ := c.TakeAudio()
		result, runErr = s.opts.Pipeline.Run(r.Context(), pipeline.Request{
			SessionID:   sess.ID(),
			Audio:       audio,
			ContentType: contentType,
			Source:      source,
			Target:      target,
			History:     c.History,
		})
		if runErr != nil {
			c.SetError(pipeline.UserMessage(runErr))
			c.ClearResults()
			return nil
		}

		c.SetError("")
		c.LastOriginal = result.EncryptedOriginal
		c.LastTranslation = result.EncryptedTranslation
		return nil
	})
	switch {
	case errors.Is(err, session.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "not recording")
		return
	case errors.Is(err, session.ErrEmptyAudio):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logging.LogError(err, "Audio submission failed", zap.String("session_id", sess.ID()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if runErr != nil {
		var mismatch *languages.MismatchError
		if errors.As(runErr, &mismatch) {
			writeError(w, http.StatusUnprocessableEntity, mismatch.Error())
			return
		}
		writeError(w, http.StatusBadGateway, pipeline.FailureMessage)
		return
	}

	writeStatusJSON(w, http.StatusOK, translationResponse{Result: result, Source: source, Target: target})
}

// handleSpeak streams synthesized speech for the last original or translated
// text of the session
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	which := r.URL.Query().Get("which")
	if which == "" {
		which = "translation"
	}
	if which != "original" && which != "translation" {
		writeError(w, http.StatusBadRequest, "which must be original or translation")
		return
	}

	var path string
	var nothing bool

	err := sess.Interact(func(c *session.Context) error {
		sealed, lang := c.LastTranslation, c.Target
		if which == "original" {
			sealed, lang = c.LastOriginal, c.Source
		}
		if sealed == "" {
			nothing = true
			return nil
		}

		var err error
		path, err = s.opts.Pipeline.Speak(r.Context(), sealed, lang)
		return err
	})
	if nothing {
		writeError(w, http.StatusNotFound, "nothing to speak")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, pipeline.SpeakFailureMessage)
		logging.LogError(err, "Speech synthesis failed", zap.String("session_id", sess.ID()))
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			logging.LogWarn("Failed to remove speech file", zap.String("path", path), zap.Error(err))
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		logging.LogError(err, "Failed to open speech file")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := io.Copy(w, f); err != nil {
		logging.LogWarn("Speech stream interrupted", zap.String("session_id", sess.ID()), zap.Error(err))
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeStatusJSON(w, http.StatusOK, sessionFrom(r.Context()).History().Recent())
}

func (s *Server) handleHistoryCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+history.CSVFileName+`"`)

	if err := sessionFrom(r.Context()).History().WriteCSV(w); err != nil {
		logging.LogError(err, "Failed to export history")
	}
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	sess.History().Clear()
	logging.LogSessionEvent(sess.ID(), "history_cleared")
	w.WriteHeader(http.StatusNoContent)
}

func writeStatusJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := writeJSON(w, data); err != nil {
		logging.LogError(err, "Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeStatusJSON(w, status, map[string]string{"error": message})
}
