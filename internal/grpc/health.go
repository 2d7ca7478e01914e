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

// Package grpc serves the standard gRPC health protocol for the translator
package grpc

import (
	"context"
	"sync"
	"time"

	"github.com/loqalabs/loqa-translator/internal/logging"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name of the translator as a whole
const ServiceName = "loqa.translator"

// Probe reports whether a dependency is usable
type Probe func(ctx context.Context) error

// HealthService keeps grpc.health.v1 statuses in step with dependency probes.
// The overall status ("" and ServiceName) is SERVING only while every probe
// passes.
type HealthService struct {
	server *health.Server

	mu     sync.Mutex
	probes map[string]Probe
	order  []string
}

// NewHealthService creates a health service with no probes, reporting SERVING
func NewHealthService() *HealthService {
	h := &HealthService{
		server: health.NewServer(),
		probes: make(map[string]Probe),
	}
	h.setOverall(healthpb.HealthCheckResponse_SERVING)
	return h
}

// AddProbe registers a dependency under its own health service name
func (h *HealthService) AddProbe(service string, probe Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.probes[service]; !exists {
		h.order = append(h.order, service)
	}
	h.probes[service] = probe
	h.server.SetServingStatus(service, healthpb.HealthCheckResponse_UNKNOWN)
}

// Register attaches the health service to a gRPC server
func (h *HealthService) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Check runs every probe once and updates the statuses. It returns true when
// all probes passed.
func (h *HealthService) Check(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	healthy := true
	for _, service := range h.order {
		status := healthpb.HealthCheckResponse_SERVING
		if err := h.probes[service](ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			healthy = false
			logging.Logger.Warn("Dependency probe failed",
				zap.String("service", service),
				zap.Error(err),
			)
		}
		h.server.SetServingStatus(service, status)
	}

	if healthy {
		h.setOverall(healthpb.HealthCheckResponse_SERVING)
	} else {
		h.setOverall(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

// Run checks the probes immediately and then on every interval until ctx is
// cancelled
func (h *HealthService) Run(ctx context.Context, interval time.Duration) {
	h.check(ctx, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.check(ctx, interval)
		}
	}
}

func (h *HealthService) check(ctx context.Context, timeout time.Duration) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	h.Check(probeCtx)
}

// Shutdown flips every status to NOT_SERVING and ignores later updates
func (h *HealthService) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthService) setOverall(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}
