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

package events

import (
	"context"
	"errors"
)

// Recorder receives one event per pipeline run
type Recorder interface {
	Record(ctx context.Context, event *TranslationEvent) error
}

// RecorderFunc adapts a function to the Recorder interface
type RecorderFunc func(ctx context.Context, event *TranslationEvent) error

// Record calls f(ctx, event)
func (f RecorderFunc) Record(ctx context.Context, event *TranslationEvent) error {
	return f(ctx, event)
}

// Multi fans an event out to every recorder. All recorders are called even
// when some fail; the failures are joined.
type Multi []Recorder

// Record implements Recorder
func (m Multi) Record(ctx context.Context, event *TranslationEvent) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a Recorder that drops every event
var Discard Recorder = RecorderFunc(func(context.Context, *TranslationEvent) error { return nil })
