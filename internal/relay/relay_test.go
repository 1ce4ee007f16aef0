// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package relay

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/geocanvas/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

func startServer(t *testing.T) string {
	t.Helper()
	srv, err := StartEmbedded("127.0.0.1", -1)
	if err != nil {
		t.Fatalf("StartEmbedded: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	return srv.ClientURL()
}

func connect(t *testing.T, url, origin string) (*NATSRelay, chan Envelope) {
	t.Helper()
	r, err := Connect(Config{URL: url, SubjectPrefix: "test"}, origin)
	if err != nil {
		t.Fatalf("Connect(%s): %v", origin, err)
	}
	got := make(chan Envelope, 64)
	r.SetHandler(func(_ context.Context, env Envelope) { got <- env })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Serve(%s) = %v, want context.Canceled", origin, err)
		}
		_ = r.Close()
	})
	return r, got
}

// exchange publishes from one relay until the other receives.
func exchange(t *testing.T, from *NATSRelay, to chan Envelope) Envelope {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if err := from.Publish(context.Background(), Envelope{Room: "lobby", Kind: KindCursor, ClientID: "c1", Payload: []byte(`{"x":1}`)}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		select {
		case env := <-to:
			return env
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("envelope never arrived")
		}
	}
}

func TestRelayDeliversAcrossInstances(t *testing.T) {
	t.Parallel()

	url := startServer(t)
	a, fromA := connect(t, url, "instance-a")
	b, fromB := connect(t, url, "instance-b")

	env := exchange(t, a, fromB)
	if env.Origin != "instance-a" || env.Room != "lobby" || env.Kind != KindCursor || string(env.Payload) != `{"x":1}` {
		t.Errorf("b received %+v", env)
	}
	exchange(t, b, fromA)

	// Drain retries, then check a never sees its own envelopes.
	time.Sleep(100 * time.Millisecond)
	for {
		select {
		case env := <-fromA:
			if env.Origin == "instance-a" {
				t.Fatalf("a received its own envelope %+v", env)
			}
			continue
		default:
		}
		break
	}
	if err := a.Publish(context.Background(), Envelope{Room: "lobby", Kind: KindClear}); err != nil {
		t.Fatal(err)
	}
	select {
	case env := <-fromA:
		t.Errorf("a received %+v, want nothing", env)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestServeRunsUntilCanceled(t *testing.T) {
	t.Parallel()

	r, err := Connect(Config{URL: startServer(t), SubjectPrefix: "test"}, "instance-a")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("Serve returned early: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestSubject(t *testing.T) {
	t.Parallel()

	r := &NATSRelay{prefix: "geocanvas"}
	tests := map[string]string{
		"lobby":      "geocanvas.room.lobby",
		"team.alpha": "geocanvas.room.team_alpha",
		"a:b-c":      "geocanvas.room.a:b-c",
	}
	for room, want := range tests {
		if got := r.Subject(room); got != want {
			t.Errorf("Subject(%q) = %q, want %q", room, got, want)
		}
	}
}

func TestPublishAfterClose(t *testing.T) {
	t.Parallel()

	url := startServer(t)
	r, err := Connect(Config{URL: url}, "x")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Publish(context.Background(), Envelope{Room: "lobby"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}
