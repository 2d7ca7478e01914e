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

// Package api exposes the translation event archive over HTTP
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/loqalabs/loqa-translator/internal/events"
	"github.com/loqalabs/loqa-translator/internal/logging"
	"github.com/loqalabs/loqa-translator/internal/storage"
	"go.uber.org/zap"
)

// EventStore is the read side of the translation event archive
type EventStore interface {
	List(ctx context.Context, options storage.ListOptions) ([]*events.TranslationEvent, error)
	Count(ctx context.Context, options storage.ListOptions) (int64, error)
	GetByUUID(ctx context.Context, uuid string) (*events.TranslationEvent, error)
}

// TranslationEventsHandler handles HTTP requests for translation events
type TranslationEventsHandler struct {
	store EventStore
}

// NewTranslationEventsHandler creates a new translation events handler
func NewTranslationEventsHandler(store EventStore) *TranslationEventsHandler {
	return &TranslationEventsHandler{store: store}
}

// ListTranslationEventsResponse represents the response for listing events
type ListTranslationEventsResponse struct {
	Events     []*events.TranslationEvent `json:"events"`
	Total      int64                      `json:"total"`
	Page       int                        `json:"page"`
	PageSize   int                        `json:"page_size"`
	TotalPages int                        `json:"total_pages"`
}

// Routes mounts the handler's endpoints
func (h *TranslationEventsHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

// List handles GET /api/events
func (h *TranslationEventsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := parseIntParam(query.Get("page"), 1)
	pageSize := parseIntParam(query.Get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if page < 1 {
		page = 1
	}

	options := storage.ListOptions{
		SessionID: query.Get("session_id"),
		AudioHash: query.Get("audio_hash"),
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
		SortBy:    query.Get("sort_by"),
		SortOrder: strings.ToUpper(query.Get("sort_order")),
	}

	if outcome := events.Outcome(query.Get("outcome")); outcome != "" {
		if !outcome.Valid() {
			writeError(w, http.StatusBadRequest, "invalid outcome")
			return
		}
		options.Outcome = outcome
	}

	if startTimeStr := query.Get("start_time"); startTimeStr != "" {
		startTime, err := time.Parse(time.RFC3339, startTimeStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start_time must be RFC3339")
			return
		}
		options.StartTime = &startTime
	}
	if endTimeStr := query.Get("end_time"); endTimeStr != "" {
		endTime, err := time.Parse(time.RFC3339, endTimeStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end_time must be RFC3339")
			return
		}
		options.EndTime = &endTime
	}

	total, err := h.store.Count(r.Context(), options)
	if err != nil {
		logging.LogError(err, "Failed to count translation events")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	list, err := h.store.List(r.Context(), options)
	if err != nil {
		logging.LogError(err, "Failed to list translation events")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if list == nil {
		list = []*events.TranslationEvent{}
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	logging.Logger.Debug("Translation events API request",
		zap.String("endpoint", "list"),
		zap.Int("page", page),
		zap.Int("page_size", pageSize),
		zap.Int64("total_results", total),
		zap.String("outcome", string(options.Outcome)),
	)

	writeJSON(w, http.StatusOK, ListTranslationEventsResponse{
		Events:     list,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// Get handles GET /api/events/{id}
func (h *TranslationEventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Event ID is required")
		return
	}

	event, err := h.store.GetByUUID(r.Context(), id)
	if errors.Is(err, storage.ErrEventNotFound) {
		writeError(w, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		logging.LogError(err, "Failed to get translation event", zap.String("uuid", id))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

func parseIntParam(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.LogError(err, "Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
