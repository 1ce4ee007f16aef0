// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/tomtom215/geocanvas/internal/config"
	"github.com/tomtom215/geocanvas/internal/supervisor"
)

// loadTestConfig loads configuration from an empty directory with an
// in-memory backend and the given environment.
func loadTestConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func quietTree(t *testing.T) *supervisor.SupervisorTree {
	t.Helper()
	tree, err := supervisor.NewSupervisorTree(slog.New(slog.DiscardHandler), supervisor.TreeConfig{})
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}
	return tree
}

func TestNewAppServesREST(t *testing.T) {
	cfg := loadTestConfig(t, nil)
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	if a.relay != nil || a.embedded != nil {
		t.Error("relay started although disabled")
	}
	if a.server.Addr != "0.0.0.0:3000" {
		t.Errorf("server.Addr = %q, want 0.0.0.0:3000", a.server.Addr)
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"memory"`) {
		t.Errorf("health body %s does not name the memory backend", rec.Body)
	}

	tree := quietTree(t)
	a.register(tree)
	got := tree.Services()
	if !slices.Equal(got["data-layer"], []string{"cache:permissions", "room-registry"}) {
		t.Errorf("data-layer = %v", got["data-layer"])
	}
	if !slices.Equal(got["messaging-layer"], []string{"websocket-hub"}) {
		t.Errorf("messaging-layer = %v", got["messaging-layer"])
	}
	if !slices.Equal(got["api-layer"], []string{"http-server"}) {
		t.Errorf("api-layer = %v", got["api-layer"])
	}
}

func TestNewAppWithEmbeddedRelay(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"RELAY_ENABLED":        "true",
		"NATS_EMBEDDED_SERVER": "true",
		"NATS_EMBEDDED_PORT":   strconv.Itoa(freePort(t)),
	})
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	if a.relay == nil || a.embedded == nil {
		t.Fatal("relay not connected")
	}
	tree := quietTree(t)
	a.register(tree)
	if got := tree.Services()["messaging-layer"]; !slices.Equal(got, []string{"nats-relay", "relay-server", "websocket-hub"}) {
		t.Errorf("messaging-layer = %v", got)
	}
}

func TestNewResolver(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	if _, err := newResolver(cfg); err != nil {
		t.Errorf("newResolver without secret: %v", err)
	}

	cfg.Security.JWTSecret = "too-short"
	if _, err := newResolver(cfg); err == nil {
		t.Error("newResolver accepted a short secret")
	}

	cfg.Security.JWTSecret = strings.Repeat("k", 32)
	cfg.Security.AnonymousSalt = strings.Repeat("s", 65)
	if _, err := newResolver(cfg); err == nil {
		t.Error("newResolver accepted an oversized salt")
	}
}
