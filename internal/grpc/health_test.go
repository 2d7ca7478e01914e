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

package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func setupHealthServer(t *testing.T, h *HealthService) healthpb.HealthClient {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	h.Register(server)

	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func statusOf(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q) failed: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthService_NoProbes(t *testing.T) {
	h := NewHealthService()
	client := setupHealthServer(t, h)

	if got := statusOf(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall status = %v, want SERVING", got)
	}
	if got := statusOf(t, client, ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("%s status = %v, want SERVING", ServiceName, got)
	}

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "unknown"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown service error = %v, want NotFound", err)
	}
}

func TestHealthService_ProbeFailure(t *testing.T) {
	var archiveDown atomic.Bool

	h := NewHealthService()
	h.AddProbe("archive", func(context.Context) error {
		if archiveDown.Load() {
			return errors.New("database is locked")
		}
		return nil
	})
	h.AddProbe("events", func(context.Context) error { return nil })
	client := setupHealthServer(t, h)

	if got := statusOf(t, client, "archive"); got != healthpb.HealthCheckResponse_UNKNOWN {
		t.Errorf("archive status before first check = %v, want UNKNOWN", got)
	}

	if !h.Check(context.Background()) {
		t.Fatal("Check reported unhealthy with passing probes")
	}
	if got := statusOf(t, client, "archive"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("archive status = %v, want SERVING", got)
	}

	archiveDown.Store(true)
	if h.Check(context.Background()) {
		t.Fatal("Check reported healthy with a failing probe")
	}
	if got := statusOf(t, client, "archive"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("archive status = %v, want NOT_SERVING", got)
	}
	if got := statusOf(t, client, "events"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("events status = %v, want SERVING", got)
	}
	if got := statusOf(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("overall status = %v, want NOT_SERVING", got)
	}
}

func TestHealthService_RunAndShutdown(t *testing.T) {
	var calls atomic.Int32

	h := NewHealthService()
	h.AddProbe("archive", func(context.Context) error {
		calls.Add(1)
		return nil
	})
	client := setupHealthServer(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if calls.Load() < 2 {
		t.Fatalf("probe ran %d times, want at least 2", calls.Load())
	}

	h.Shutdown()
	if got := statusOf(t, client, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after Shutdown = %v, want NOT_SERVING", got)
	}
}
