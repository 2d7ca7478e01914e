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
	"fmt"

	"github.com/looplab/fsm"
)

// State is the recording state of a session
type State string

const (
	StateStopped   State = "stopped"
	StateRecording State = "recording"
)

const (
	eventStart = "start"
	eventStop  = "stop"
	eventReset = "reset"
)

var (
	// ErrInvalidTransition is returned when an event is not allowed in the
	// current state
	ErrInvalidTransition = errors.New("invalid recording state transition")

	// ErrEmptyAudio is returned when submitted audio has no bytes
	ErrEmptyAudio = errors.New("audio buffer is empty")
)

// Recorder tracks whether capture is active, the last captured audio and the
// last error shown to the user. It is not safe for concurrent use; Session
// serializes access.
type Recorder struct {
	machine     *fsm.FSM
	audio       []byte
	contentType string
	errMessage  string
}

// NewRecorder returns a recorder in the stopped state
func NewRecorder() *Recorder {
	r := &Recorder{}
	r.machine = fsm.NewFSM(
		string(StateStopped),
		fsm.Events{
			{Name: eventStart, Src: []string{string(StateStopped)}, Dst: string(StateRecording)},
			{Name: eventStop, Src: []string{string(StateRecording)}, Dst: string(StateStopped)},
			{Name: eventReset, Src: []string{string(StateStopped)}, Dst: string(StateStopped)},
		},
		fsm.Callbacks{},
	)
	return r
}

// State returns the current recording state
func (r *Recorder) State() State {
	return State(r.machine.Current())
}

// Start begins capture, discarding any previous audio and error
func (r *Recorder) Start(ctx context.Context) error {
	if err := r.fire(ctx, eventStart); err != nil {
		return err
	}
	r.clear()
	return nil
}

// Stop ends capture without audio
func (r *Recorder) Stop(ctx context.Context) error {
	return r.fire(ctx, eventStop)
}

// Reset clears audio and error. It is rejected while recording.
func (r *Recorder) Reset(ctx context.Context) error {
	if err := r.fire(ctx, eventReset); err != nil {
		return err
	}
	r.clear()
	return nil
}

// SubmitAudio stores the captured buffer and stops recording. The capture
// widget delivers audio at the moment it stops.
func (r *Recorder) SubmitAudio(ctx context.Context, data []byte, contentType string) error {
	if r.State() != StateRecording {
		return fmt.Errorf("%w: cannot submit audio while %s", ErrInvalidTransition, r.State())
	}
	if len(data) == 0 {
		return ErrEmptyAudio
	}
	if err := r.fire(ctx, eventStop); err != nil {
		return err
	}
	r.audio = data
	r.contentType = contentType
	return nil
}

// TakeAudio hands over the stored buffer and forgets it, so each buffer is
// processed at most once
func (r *Recorder) TakeAudio() ([]byte, string, bool) {
	if len(r.audio) == 0 {
		return nil, "", false
	}
	data, contentType := r.audio, r.contentType
	r.audio, r.contentType = nil, ""
	return data, contentType, true
}

// HasAudio reports whether a buffer is waiting to be processed
func (r *Recorder) HasAudio() bool {
	return len(r.audio) > 0
}

// SetError records a message for the user
func (r *Recorder) SetError(message string) {
	r.errMessage = message
}

// Error returns the last recorded error message, if any
func (r *Recorder) Error() (string, bool) {
	return r.errMessage, r.errMessage != ""
}

func (r *Recorder) clear() {
	r.audio = nil
	r.contentType = ""
	r.errMessage = ""
}

func (r *Recorder) fire(ctx context.Context, event string) error {
	err := r.machine.Event(ctx, event)
	if err == nil {
		return nil
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) && noTransition.Err == nil {
		// reset from stopped is a self-transition
		return nil
	}

	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, invalid.Event, invalid.State)
	}
	return fmt.Errorf("recording state machine: %w", err)
}
