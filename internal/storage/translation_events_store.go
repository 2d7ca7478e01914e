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

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loqalabs/loqa-translator/internal/events"
	"github.com/loqalabs/loqa-translator/internal/logging"
	"go.uber.org/zap"
)

// ErrEventNotFound is returned when no event has the requested UUID
var ErrEventNotFound = errors.New("translation event not found")

const eventColumns = `uuid, session_id, timestamp,
	source_language, target_language, audio_hash, audio_bytes,
	outcome, failed_stage, detected_language, processing_time_ms, error_message`

// TranslationEventsStore handles database operations for translation events
type TranslationEventsStore struct {
	db *Database
}

// NewTranslationEventsStore creates a new translation events store
func NewTranslationEventsStore(db *Database) *TranslationEventsStore {
	return &TranslationEventsStore{db: db}
}

// Record implements events.Recorder
func (s *TranslationEventsStore) Record(ctx context.Context, event *events.TranslationEvent) error {
	return s.Insert(ctx, event)
}

// Insert stores a new translation event
func (s *TranslationEventsStore) Insert(ctx context.Context, event *events.TranslationEvent) error {
	if err := event.IsValid(); err != nil {
		return fmt.Errorf("invalid translation event: %w", err)
	}

	query := `INSERT INTO translation_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.DB().ExecContext(ctx, query,
		event.UUID, event.SessionID, event.Timestamp.UTC(),
		event.SourceLanguage, event.TargetLanguage, event.AudioHash, event.AudioBytes,
		string(event.Outcome), event.FailedStage, event.DetectedLanguage, event.ProcessingTime, event.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert translation event: %w", err)
	}

	logging.LogDatabaseOperation("insert", "translation_events",
		zap.String("uuid", event.UUID),
		zap.String("session_id", event.SessionID),
		zap.String("outcome", string(event.Outcome)),
	)
	return nil
}

// GetByUUID retrieves a translation event by its UUID
func (s *TranslationEventsStore) GetByUUID(ctx context.Context, uuid string) (*events.TranslationEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM translation_events WHERE uuid = ?`

	event, err := scanEvent(s.db.DB().QueryRowContext(ctx, query, uuid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return event, err
}

// List retrieves translation events with pagination and filtering
func (s *TranslationEventsStore) List(ctx context.Context, options ListOptions) ([]*events.TranslationEvent, error) {
	query, args := buildListQuery(options)

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query translation events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var eventsList []*events.TranslationEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan translation event: %w", err)
		}
		eventsList = append(eventsList, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating translation events: %w", err)
	}

	return eventsList, nil
}

// Count returns the number of events matching the filter, ignoring pagination
func (s *TranslationEventsStore) Count(ctx context.Context, options ListOptions) (int64, error) {
	options.Limit = 0
	options.Offset = 0
	query, args := buildListQuery(options)

	var count int64
	err := s.db.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM ("+query+") AS filtered", args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count translation events: %w", err)
	}

	return count, nil
}

// GetByAudioHash finds events for identical audio submissions
func (s *TranslationEventsStore) GetByAudioHash(ctx context.Context, audioHash string) ([]*events.TranslationEvent, error) {
	return s.List(ctx, ListOptions{AudioHash: audioHash})
}

// DeleteSession removes every event of a session and returns how many were
// removed
func (s *TranslationEventsStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	result, err := s.db.DB().ExecContext(ctx, "DELETE FROM translation_events WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete translation events: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	logging.LogDatabaseOperation("delete", "translation_events",
		zap.String("session_id", sessionID),
		zap.Int64("rows", n),
	)
	return n, nil
}

// ListOptions defines filtering and pagination options
type ListOptions struct {
	// Filtering
	SessionID string
	Outcome   events.Outcome
	AudioHash string
	StartTime *time.Time
	EndTime   *time.Time

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // "timestamp" or "processing_time"
	SortOrder string // "ASC" or "DESC"
}

var sortColumns = map[string]string{
	"":                "timestamp",
	"timestamp":       "timestamp",
	"processing_time": "processing_time_ms",
}

// buildListQuery constructs the SQL query based on ListOptions
func buildListQuery(options ListOptions) (string, []any) {
	query := `SELECT ` + eventColumns + ` FROM translation_events WHERE 1=1`
	var args []any

	if options.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, options.SessionID)
	}

	if options.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, string(options.Outcome))
	}

	if options.AudioHash != "" {
		query += " AND audio_hash = ?"
		args = append(args, options.AudioHash)
	}

	if options.StartTime != nil {
		query += " AND timestamp >= ?"
		args = append(args, options.StartTime.UTC())
	}

	if options.EndTime != nil {
		query += " AND timestamp <= ?"
		args = append(args, options.EndTime.UTC())
	}

	sortBy, ok := sortColumns[options.SortBy]
	if !ok {
		sortBy = "timestamp"
	}

	sortOrder := "DESC"
	if strings.EqualFold(options.SortOrder, "ASC") {
		sortOrder = "ASC"
	}

	query += fmt.Sprintf(" ORDER BY %s %s, uuid %s", sortBy, sortOrder, sortOrder)

	if options.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, options.Limit)

		if options.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, options.Offset)
		}
	}

	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent scans a database row into a TranslationEvent
func scanEvent(row rowScanner) (*events.TranslationEvent, error) {
	var event events.TranslationEvent
	var outcome string

	err := row.Scan(
		&event.UUID, &event.SessionID, &event.Timestamp,
		&event.SourceLanguage, &event.TargetLanguage, &event.AudioHash, &event.AudioBytes,
		&outcome, &event.FailedStage, &event.DetectedLanguage, &event.ProcessingTime, &event.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	event.Outcome = events.Outcome(outcome)
	return &event, nil
}
