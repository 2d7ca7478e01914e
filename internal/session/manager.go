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

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-translator/internal/config"
	"github.com/loqalabs/loqa-translator/internal/logging"
	"github.com/loqalabs/loqa-translator/internal/security"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned for unknown or expired session IDs
var ErrSessionNotFound = errors.New("session not found")

// Manager creates, looks up and expires sessions
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	historyCapacity int
	idleTimeout     time.Duration
	now             func() time.Time
}

// NewManager creates a session manager from configuration
func NewManager(cfg config.SessionConfig) *Manager {
	return &Manager{
		sessions:        make(map[string]*Session),
		historyCapacity: cfg.HistoryCapacity,
		idleTimeout:     cfg.IdleTimeout,
		now:             time.Now,
	}
}

// Create starts a new session
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString(), m.historyCapacity, m.now)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	logging.LogSessionEvent(s.id, "created")
	return s
}

// Get returns the session with the given ID
func (m *Manager) Get(id string) (*Session, error) {
	if err := security.ValidateSessionID(id); err != nil {
		return nil, err
	}

	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes a session
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the idle timeout and returns
// how many were removed. Sessions in the middle of an interaction are kept.
func (m *Manager) Sweep() int {
	if m.idleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		last, idle := s.idleSince()
		if idle && last.Before(cutoff) {
			delete(m.sessions, id)
			removed++
			logging.LogSessionEvent(id, "expired", zap.Time("last_activity", last))
		}
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx is cancelled
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logging.Sugar.Infow("Expired idle sessions", "count", n, "remaining", m.Len())
			}
		}
	}
}
