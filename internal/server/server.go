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
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/loqalabs/loqa-translator/internal/api"
	"github.com/loqalabs/loqa-translator/internal/config"
	grpchealth "github.com/loqalabs/loqa-translator/internal/grpc"
	"github.com/loqalabs/loqa-translator/internal/logging"
	"github.com/loqalabs/loqa-translator/internal/pipeline"
	"github.com/loqalabs/loqa-translator/internal/session"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

//go:embed web
var webFS embed.FS

// maxAudioBytes bounds an uploaded recording, matching the STT provider limit
const maxAudioBytes = 25 << 20

// EventBus is the live event stream whose state /health reports
type EventBus interface {
	IsConnected() bool
	GetStats() nats.Statistics
	ObservedEvents() int64
}

// SessionPurger removes the archived events of a deleted session
type SessionPurger interface {
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// Options are the collaborators of a Server. Events, Purger, Health and Bus
// are optional.
type Options struct {
	Sessions *session.Manager
	Pipeline *pipeline.Orchestrator

	// Events serves /api/events; nil leaves the archive endpoints unmounted
	Events api.EventStore
	Purger SessionPurger

	// Health is served on Server.GRPCPort when both are set
	Health *grpchealth.HealthService

	Bus EventBus
}

// Server is the HTTP front end of the translator
type Server struct {
	cfg        *config.Config
	opts       Options
	router     chi.Router
	httpServer *http.Server
	grpcServer *grpc.Server

	startedAt time.Time
}

// New creates a server with all routes mounted
func New(cfg *config.Config, opts Options) (*Server, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}

	s := &Server{
		cfg:       cfg,
		opts:      opts,
		router:    chi.NewRouter(),
		startedAt: time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	if opts.Health != nil && cfg.Server.GRPCPort > 0 {
		s.grpcServer = grpc.NewServer()
		opts.Health.Register(s.grpcServer)
	}

	if err := s.routes(); err != nil {
		return nil, err
	}
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP, and gRPC health when enabled, until Stop is called
func (s *Server) Start() error {
	errCh := make(chan error, 2)

	if s.grpcServer != nil {
		addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.GRPCPort))
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen for gRPC on %s: %w", addr, err)
		}
		go func() {
			logging.Sugar.Infow("🩺 gRPC health server listening", "addr", addr)
			if err := s.grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("gRPC server failed: %w", err)
			}
		}()
	}

	go func() {
		logging.Sugar.Infow("🚀 Loqa Translator listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	return <-errCh
}

// Stop gracefully shuts down the HTTP and gRPC servers
func (s *Server) Stop(ctx context.Context) error {
	logging.Sugar.Infow("🛑 Shutting down Loqa Translator")

	if s.grpcServer != nil {
		if s.opts.Health != nil {
			s.opts.Health.Shutdown()
		}
		s.grpcServer.GracefulStop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logging.Sugar.Infow("✅ Loqa Translator shut down successfully")
	return nil
}

func (s *Server) routes() error {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	static, err := fs.Sub(webFS, "web")
	if err != nil {
		return fmt.Errorf("embedded web assets: %w", err)
	}
	r.Get("/", s.handleIndex(static))
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/languages", s.handleLanguages)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(s.sessionCtx)

			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/start", s.handleTransition(startEvent))
			r.Post("/stop", s.handleTransition(stopEvent))
			r.Post("/reset", s.handleTransition(resetEvent))

			r.Group(func(r chi.Router) {
				if s.cfg.Server.RateLimitPerMinute > 0 {
					r.Use(httprate.LimitByIP(s.cfg.Server.RateLimitPerMinute, time.Minute))
				}
				r.Post("/audio", s.handleAudio)
				r.Post("/speak", s.handleSpeak)
			})

			r.Get("/history", s.handleHistory)
			r.Get("/history.csv", s.handleHistoryCSV)
			r.Delete("/history", s.handleClearHistory)
		})

		if s.opts.Events != nil {
			r.Route("/events", api.NewTranslationEventsHandler(s.opts.Events).Routes)
		}
	})

	logging.Sugar.Infow("🌐 HTTP routes configured",
		"events_api", s.opts.Events != nil,
		"rate_limit_per_minute", s.cfg.Server.RateLimitPerMinute)
	return nil
}

func (s *Server) handleIndex(static fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := fs.ReadFile(static, "index.html")
		if err != nil {
			http.Error(w, "page unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	}
}

// handleHealth provides system health information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	bus := map[string]interface{}{
		"enabled":   s.opts.Bus != nil,
		"connected": false,
	}
	if s.opts.Bus != nil {
		stats := s.opts.Bus.GetStats()
		bus["connected"] = s.opts.Bus.IsConnected()
		bus["out_msgs"] = stats.OutMsgs
		bus["in_msgs"] = stats.InMsgs
		bus["reconnects"] = stats.Reconnects
		bus["observed_events"] = s.opts.Bus.ObservedEvents()
	}

	health := map[string]interface{}{
		"status":         "ok",
		"timestamp":      time.Now(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"sessions":       s.opts.Sessions.Len(),
		"archive":        s.opts.Events != nil,
		"nats":           bus,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := writeJSON(w, health); err != nil {
		logging.LogError(err, "Failed to write health response")
	}
}

// requestLogger logs each request with zap once the response is written
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			logging.Logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, data interface{}) error {
	return json.NewEncoder(w).Encode(data)
}

func readJSON(r *http.Request, data interface{}) error {
	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, data)
}
