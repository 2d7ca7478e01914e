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

// Package messaging publishes translation events to NATS
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/loqalabs/loqa-translator/internal/config"
	"github.com/loqalabs/loqa-translator/internal/events"
	"github.com/loqalabs/loqa-translator/internal/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject is the subject prefix translation events are published under
const DefaultSubject = "loqa.translator.events"

// ErrNotConnected is returned when publishing before Connect
var ErrNotConnected = errors.New("NATS connection not established")

// NATSService publishes translation events. Each event goes to
// "<subject>.<outcome>" so consumers can subscribe to one outcome or all
// of them with "<subject>.>".
type NATSService struct {
	conn *nats.Conn
	cfg  config.NATSConfig

	observed atomic.Int64
}

// NewNATSService creates a new NATS service instance
func NewNATSService(cfg config.NATSConfig) *NATSService {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	return &NATSService{cfg: cfg}
}

// Connect establishes connection to NATS server
func (ns *NATSService) Connect() error {
	if ns.cfg.URL == "" {
		return fmt.Errorf("NATS URL is not configured")
	}

	logging.LogNATSEvent(ns.cfg.URL, "connecting")

	opts := []nats.Option{
		nats.Name("loqa-translator"),
		nats.ReconnectWait(ns.cfg.ReconnectWait),
		nats.MaxReconnects(ns.cfg.MaxReconnect),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.LogWarn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.LogNATSEvent(nc.ConnectedUrl(), "reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.LogNATSEvent(ns.cfg.URL, "closed")
		}),
	}

	conn, err := nats.Connect(ns.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	ns.conn = conn
	logging.LogNATSEvent(conn.ConnectedUrl(), "connected")
	return nil
}

// SubjectFor returns the subject an outcome is published on
func (ns *NATSService) SubjectFor(outcome events.Outcome) string {
	return ns.cfg.Subject + "." + string(outcome)
}

// Record implements events.Recorder
func (ns *NATSService) Record(_ context.Context, event *events.TranslationEvent) error {
	return ns.PublishTranslationEvent(event)
}

// PublishTranslationEvent publishes a translation event
func (ns *NATSService) PublishTranslationEvent(event *events.TranslationEvent) error {
	if ns.conn == nil {
		return ErrNotConnected
	}
	if !event.Outcome.Valid() {
		return fmt.Errorf("cannot publish event with outcome %q", event.Outcome)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal translation event: %w", err)
	}

	subject := ns.SubjectFor(event.Outcome)
	if err := ns.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	logging.LogNATSEvent(subject, "published",
		zap.String("uuid", event.UUID),
		zap.String("session_id", event.SessionID),
	)
	return nil
}

// SubscribeToTranslationEvents delivers every published translation event to
// handler
func (ns *NATSService) SubscribeToTranslationEvents(handler func(*events.TranslationEvent)) (*nats.Subscription, error) {
	if ns.conn == nil {
		return nil, ErrNotConnected
	}

	subject := strings.TrimSuffix(ns.cfg.Subject, ".") + ".>"
	return ns.conn.Subscribe(subject, func(msg *nats.Msg) {
		event, err := DecodeTranslationEvent(msg.Data)
		if err != nil {
			logging.LogError(err, "Error unmarshaling translation event", zap.String("subject", msg.Subject))
			return
		}
		handler(event)
	})
}

// WatchEvents subscribes to the service's own subject tree and counts the
// events the broker delivers back, so /health can show that published events
// actually reach subscribers
func (ns *NATSService) WatchEvents() error {
	_, err := ns.SubscribeToTranslationEvents(func(event *events.TranslationEvent) {
		ns.observed.Add(1)
		logging.Logger.Debug("Translation event observed",
			zap.String("uuid", event.UUID),
			zap.String("outcome", string(event.Outcome)),
		)
	})
	return err
}

// ObservedEvents returns how many events WatchEvents has received
func (ns *NATSService) ObservedEvents() int64 {
	return ns.observed.Load()
}

// DecodeTranslationEvent parses a published event payload
func DecodeTranslationEvent(data []byte) (*events.TranslationEvent, error) {
	var event events.TranslationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal translation event: %w", err)
	}
	return &event, nil
}

// Close drains and closes the NATS connection
func (ns *NATSService) Close() {
	if ns.conn != nil {
		if err := ns.conn.Drain(); err != nil {
			ns.conn.Close()
		}
	}
}

// IsConnected returns true if connected to NATS
func (ns *NATSService) IsConnected() bool {
	return ns.conn != nil && ns.conn.IsConnected()
}

// GetStats returns connection statistics
func (ns *NATSService) GetStats() nats.Statistics {
	if ns.conn != nil {
		return ns.conn.Stats()
	}
	return nats.Statistics{}
}
