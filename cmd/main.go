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

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-translator/internal/config"
	"github.com/loqalabs/loqa-translator/internal/events"
	grpchealth "github.com/loqalabs/loqa-translator/internal/grpc"
	"github.com/loqalabs/loqa-translator/internal/languages"
	"github.com/loqalabs/loqa-translator/internal/llm"
	"github.com/loqalabs/loqa-translator/internal/logging"
	"github.com/loqalabs/loqa-translator/internal/messaging"
	"github.com/loqalabs/loqa-translator/internal/pipeline"
	"github.com/loqalabs/loqa-translator/internal/security"
	"github.com/loqalabs/loqa-translator/internal/server"
	"github.com/loqalabs/loqa-translator/internal/session"
	"github.com/loqalabs/loqa-translator/internal/storage"
	"github.com/loqalabs/loqa-translator/internal/translation"
	"go.uber.org/zap"
)

const (
	sweepInterval  = time.Minute
	healthInterval = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	if err := logging.InitializeWithConfig(logging.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cipher, err := security.NewCipher(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to create payload cipher: %v", err)
	}
	if cipher.Ephemeral() {
		logging.LogWarn("ENCRYPTION_KEY not set, using a per-process key")
	}

	client := llm.NewOpenAIClient(cfg.STT)
	translator, err := translation.NewGoogleTranslator(cfg.Translation)
	if err != nil {
		log.Fatalf("Failed to create translator: %v", err)
	}
	synthesizer, err := llm.NewGoogleTTSClient(cfg.TTS)
	if err != nil {
		log.Fatalf("Failed to create speech synthesizer: %v", err)
	}

	health := grpchealth.NewHealthService()
	var recorders events.Multi
	var eventStore *storage.TranslationEventsStore

	if cfg.Storage.EventsDBPath != "" {
		db, err := storage.NewDatabase(storage.DatabaseConfig{Path: cfg.Storage.EventsDBPath})
		if err != nil {
			log.Fatalf("Failed to open events archive: %v", err)
		}
		defer func() {
			if err := db.Checkpoint(); err != nil {
				logging.LogError(err, "Failed to checkpoint events archive")
			}
			if err := db.Close(); err != nil {
				logging.LogError(err, "Failed to close events archive")
			}
		}()

		eventStore = storage.NewTranslationEventsStore(db)
		recorders = append(recorders, eventStore)
		health.AddProbe(grpchealth.ServiceName+".archive", db.Ping)
	}

	var bus server.EventBus
	if cfg.NATS.URL != "" {
		nats := messaging.NewNATSService(cfg.NATS)
		if err := nats.Connect(); err != nil {
			// events are optional; keep serving without them
			logging.LogError(err, "Failed to connect to NATS", zap.String("url", cfg.NATS.URL))
		} else if err := nats.WatchEvents(); err != nil {
			logging.LogError(err, "Failed to subscribe to translation events")
		}
		defer nats.Close()

		recorders = append(recorders, nats)
		bus = nats
		health.AddProbe(grpchealth.ServiceName+".events", func(context.Context) error {
			if !nats.IsConnected() {
				return messaging.ErrNotConnected
			}
			return nil
		})
	}

	orchestrator, err := pipeline.NewOrchestrator(pipeline.Dependencies{
		Transcriber: llm.NewGroqTranscriber(client, cfg.STT.Model),
		Detector:    languages.NewLinguaDetector(languages.DefaultMinRelativeDistance),
		Enhancer:    llm.NewChatEnhancer(client, cfg.Enhancer),
		Translator:  translator,
		Synthesizer: synthesizer,
		Cipher:      cipher,
		Recorder:    recorders,
		TempDir:     cfg.Session.TempDir,
	})
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	sessions := session.NewManager(cfg.Session)
	go sessions.Run(ctx, sweepInterval)
	go health.Run(ctx, healthInterval)

	opts := server.Options{
		Sessions: sessions,
		Pipeline: orchestrator,
		Health:   health,
		Bus:      bus,
	}
	if eventStore != nil {
		opts.Events = eventStore
		opts.Purger = eventStore
	}

	srv, err := server.New(cfg, opts)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	logging.Sugar.Infow("🚀 loqa-translator starting",
		"http_port", cfg.Server.Port,
		"grpc_port", cfg.Server.GRPCPort,
		"stt_model", cfg.STT.Model,
		"enhancer_model", cfg.Enhancer.Model,
		"events_db", cfg.Storage.EventsDBPath,
		"nats_url", cfg.NATS.URL,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logging.LogError(err, "Server stopped unexpectedly")
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logging.LogError(err, "Failed to shut down cleanly")
	}
}
