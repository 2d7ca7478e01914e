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

// Package session holds the per-user context: recording state, history and
// the last run's encrypted results
package session

import (
	"sync"
	"time"

	"github.com/loqalabs/loqa-translator/internal/history"
	"github.com/loqalabs/loqa-translator/internal/languages"
)

// Context is the mutable state of one session. It is only reachable through
// Session.Interact, which holds the session lock.
type Context struct {
	*Recorder

	Source languages.Language
	Target languages.Language

	// ciphertext of the last enhanced transcript and translation
	LastOriginal    string
	LastTranslation string

	History *history.Store
}

// ClearResults forgets the last run's outputs
func (c *Context) ClearResults() {
	c.LastOriginal = ""
	c.LastTranslation = ""
}

// Session is one browser session
type Session struct {
	id        string
	createdAt time.Time
	now       func() time.Time

	mu         sync.Mutex
	lastActive time.Time
	ctx        *Context
}

// Snapshot is a read-only view of a session for the API
type Snapshot struct {
	ID             string             `json:"id"`
	State          State              `json:"state"`
	Error          string             `json:"error,omitempty"`
	Source         languages.Language `json:"source"`
	Target         languages.Language `json:"target"`
	HasAudio       bool               `json:"has_audio"`
	HasResult      bool               `json:"has_result"`
	HistoryCount   int                `json:"history_count"`
	CreatedAt      time.Time          `json:"created_at"`
	LastActivityAt time.Time          `json:"last_activity_at"`
}

func newSession(id string, historyCapacity int, now func() time.Time) *Session {
	created := now()
	return &Session{
		id:         id,
		createdAt:  created,
		now:        now,
		lastActive: created,
		ctx: &Context{
			Recorder: NewRecorder(),
			Source:   languages.English,
			Target:   languages.Spanish,
			History:  history.NewStore(historyCapacity),
		},
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// History returns the session's history store
func (s *Session) History() *history.Store {
	return s.ctx.History
}

// Interact runs fn with exclusive access to the session context. Interactions
// within one session never overlap.
func (s *Session) Interact(fn func(c *Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.now()
	return fn(s.ctx)
}

// Snapshot returns the current state of the session
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, _ := s.ctx.Error()
	return Snapshot{
		ID:             s.id,
		State:          s.ctx.State(),
		Error:          msg,
		Source:         s.ctx.Source,
		Target:         s.ctx.Target,
		HasAudio:       s.ctx.HasAudio(),
		HasResult:      s.ctx.LastTranslation != "",
		HistoryCount:   s.ctx.History.Len(),
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastActive,
	}
}

// idleSince reports the last activity time, or ok=false when the session is
// busy in an interaction
func (s *Session) idleSince() (time.Time, bool) {
	if !s.mu.TryLock() {
		return time.Time{}, false
	}
	defer s.mu.Unlock()
	return s.lastActive, true
}
