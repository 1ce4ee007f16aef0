// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"reflect"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewSupervisorTreeDefaults(t *testing.T) {
	t.Parallel()

	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("Root() = nil")
	}
	if got, want := tree.config, DefaultTreeConfig(); got != want {
		t.Errorf("config = %+v, want %+v", got, want)
	}
}

func TestNewSupervisorTreeRequiresLogger(t *testing.T) {
	t.Parallel()

	if _, err := NewSupervisorTree(nil, TreeConfig{}); err == nil {
		t.Fatal("NewSupervisorTree(nil) error = nil, want error")
	}
}

func TestLayerString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		layer Layer
		want  string
	}{
		{LayerData, "data-layer"},
		{LayerMessaging, "messaging-layer"},
		{LayerAPI, "api-layer"},
		{Layer(9), "layer(9)"},
	}
	for _, tt := range tests {
		if got := tt.layer.String(); got != tt.want {
			t.Errorf("Layer(%d).String() = %q, want %q", int(tt.layer), got, tt.want)
		}
	}
}

func TestTreeStartsEveryLayer(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	data := newMockService("room-sweeper")
	msg := newMockService("websocket-hub")
	api := newMockService("http-server")
	tree.AddDataService(data)
	tree.AddMessagingService(msg)
	tree.AddAPIService(api)

	want := map[string][]string{
		"data-layer":      {"room-sweeper"},
		"messaging-layer": {"websocket-hub"},
		"api-layer":       {"http-server"},
	}
	if got := tree.Services(); !reflect.DeepEqual(got, want) {
		t.Errorf("Services() = %v, want %v", got, want)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	for _, svc := range []*mockService{data, msg, api} {
		waitFor(t, svc.name+" start", func() bool { return svc.startCount.Load() >= 1 })
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop")
	}
	for _, svc := range []*mockService{data, msg, api} {
		if svc.stopCount.Load() != svc.startCount.Load() {
			t.Errorf("%s: %d starts, %d stops", svc.name, svc.startCount.Load(), svc.stopCount.Load())
		}
	}
}

func TestTreeRestartsFailingService(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	failing := newMockService("nats-relay")
	failing.setFailCount(2)
	stable := newMockService("http-server")
	tree.AddMessagingService(failing)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	waitFor(t, "third start of failing service", func() bool { return failing.startCount.Load() >= 3 })
	if got := stable.startCount.Load(); got != 1 {
		t.Errorf("stable service started %d times, want 1", got)
	}
	cancel()
	<-errCh
}

func TestTreeRemove(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	svc := newMockService("relay-server")
	token := tree.Add(LayerMessaging, svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)
	waitFor(t, "start", func() bool { return svc.startCount.Load() == 1 })

	if err := tree.Remove(LayerMessaging, token); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	waitFor(t, "stop", func() bool { return svc.stopCount.Load() == 1 })

	if err := tree.Remove(Layer(7), token); err == nil {
		t.Error("Remove on unknown layer error = nil, want error")
	}
	cancel()
	<-errCh
}
