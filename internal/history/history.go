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

// Package history keeps the bounded list of completed translations for a
// session
package history

import (
	"encoding/csv"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	// DefaultCapacity is the number of entries kept per session
	DefaultCapacity = 50

	// TimestampLayout is the display format of entry timestamps
	TimestampLayout = "2006-01-02 15:04:05"

	// CSVFileName is the suggested download name for exports
	CSVFileName = "translito_history.csv"
)

var csvHeader = []string{"Timestamp", "Source Language", "Target Language", "Original Text", "Translated Text"}

// Entry is one completed translation
type Entry struct {
	Timestamp      string `json:"timestamp"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
}

// Store is a FIFO-capped, concurrency-safe list of entries
type Store struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	now      func() time.Time
}

// NewStore creates a store holding at most capacity entries. A non-positive
// capacity falls back to DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Capacity returns the maximum number of entries kept
func (s *Store) Capacity() int {
	return s.capacity
}

// Record appends an entry stamped with the current time, evicting the oldest
// entries while over capacity
func (s *Store) Record(source, target, original, translated string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{
		Timestamp:      s.now().Format(TimestampLayout),
		SourceLanguage: source,
		TargetLanguage: target,
		OriginalText:   original,
		TranslatedText: translated,
	}

	s.entries = append(s.entries, entry)
	if over := len(s.entries) - s.capacity; over > 0 {
		// copy down so the backing array does not grow without bound
		n := copy(s.entries, s.entries[over:])
		clear(s.entries[n:])
		s.entries = s.entries[:n]
	}

	return entry
}

// Entries returns a copy of all entries in arrival order
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Recent returns a copy of all entries, newest first
func (s *Store) Recent() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[len(s.entries)-1-i] = e
	}
	return out
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes every entry
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
	s.entries = s.entries[:0]
}

// WriteCSV writes the header row and one row per entry in arrival order
func (s *Store) WriteCSV(w io.Writer) error {
	entries := s.Entries()

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, e := range entries {
		record := []string{e.Timestamp, e.SourceLanguage, e.TargetLanguage, e.OriginalText, e.TranslatedText}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
