// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package websocket

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/geocanvas/internal/canvas"
	"github.com/tomtom215/geocanvas/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// echoHandler records lifecycle calls and echoes every frame back.
type echoHandler struct {
	mu           sync.Mutex
	connected    []string
	identities   []string
	disconnected []string
	messages     []string
	gone         chan string
}

func newEchoHandler() *echoHandler {
	return &echoHandler{gone: make(chan string, 16)}
}

func (h *echoHandler) OnConnect(c canvas.Client) {
	h.mu.Lock()
	h.connected = append(h.connected, c.ID())
	h.identities = append(h.identities, c.Identity())
	h.mu.Unlock()
	c.Send([]byte(`{"type":"welcome"}`))
}

func (h *echoHandler) OnMessage(_ context.Context, c canvas.Client, data []byte) {
	h.mu.Lock()
	h.messages = append(h.messages, string(data))
	h.mu.Unlock()
	c.Send(data)
}

func (h *echoHandler) OnDisconnect(_ context.Context, clientID string) {
	h.mu.Lock()
	h.disconnected = append(h.disconnected, clientID)
	h.mu.Unlock()
	h.gone <- clientID
}

func (h *echoHandler) counts() (connected, disconnected int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connected), len(h.disconnected)
}

type harness struct {
	hub     *Hub
	handler *echoHandler
	server  *httptest.Server
	url     string
	cancel  context.CancelFunc
	done    chan error
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	handler := newEchoHandler()
	hub := NewHub(cfg, handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	server := httptest.NewServer(hub.ServeWS(func(r *http.Request) string {
		return r.URL.Query().Get("who")
	}))
	h := &harness{
		hub:     hub,
		handler: handler,
		server:  server,
		url:     "ws" + strings.TrimPrefix(server.URL, "http"),
		cancel:  cancel,
		done:    done,
	}
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return h
}

func (h *harness) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.url+query, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return string(data)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHub_ConnectWelcomesBeforeMessages(t *testing.T) {
	t.Parallel()
	h := newHarness(t, DefaultConfig())
	conn := h.dial(t, "?who=alice")

	if got := readFrame(t, conn); got != `{"type":"welcome"}` {
		t.Fatalf("first frame = %s, want welcome", got)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if got := readFrame(t, conn); got != `{"type":"ping"}` {
		t.Errorf("echo = %s, want ping", got)
	}
	if got := h.hub.GetClientCount(); got != 1 {
		t.Errorf("GetClientCount() = %d, want 1", got)
	}

	h.handler.mu.Lock()
	defer h.handler.mu.Unlock()
	if len(h.handler.identities) != 1 || h.handler.identities[0] != "alice" {
		t.Errorf("identities = %v, want [alice]", h.handler.identities)
	}
}

func TestHub_DisconnectNotifiesOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, DefaultConfig())
	conn := h.dial(t, "")
	readFrame(t, conn)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	select {
	case <-h.handler.gone:
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect not called")
	}
	waitFor(t, func() bool { return h.hub.GetClientCount() == 0 })

	time.Sleep(50 * time.Millisecond)
	if _, disconnected := h.handler.counts(); disconnected != 1 {
		t.Errorf("OnDisconnect calls = %d, want 1", disconnected)
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	t.Parallel()
	h := newHarness(t, DefaultConfig())
	for i := 0; i < 3; i++ {
		readFrame(t, h.dial(t, ""))
	}
	waitFor(t, func() bool { return h.hub.GetClientCount() == 3 })

	h.cancel()
	select {
	case err := <-h.done:
		if err != context.Canceled {
			t.Errorf("RunWithContext() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	if got := h.hub.GetClientCount(); got != 0 {
		t.Errorf("GetClientCount() after shutdown = %d, want 0", got)
	}
	if _, disconnected := h.handler.counts(); disconnected != 3 {
		t.Errorf("OnDisconnect calls = %d, want 3", disconnected)
	}
}

func TestHub_CheckOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no list accepts any", nil, "http://evil.example", true},
		{"listed origin", []string{"http://app.example"}, "http://app.example", true},
		{"unlisted origin", []string{"http://app.example"}, "http://evil.example", false},
		{"wildcard", []string{"*"}, "http://evil.example", true},
		{"missing header", []string{"http://app.example"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			cfg.AllowedOrigins = tt.allowed
			hub := NewHub(cfg, newEchoHandler())

			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := hub.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestHub_RejectedUpgradeDoesNotRegister(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"http://app.example"}
	h := newHarness(t, cfg)

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	conn, resp, err := websocket.DefaultDialer.Dial(h.url, header)
	if err == nil {
		_ = conn.Close()
		t.Fatal("Dial succeeded for a rejected origin")
	}
	if resp != nil {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
		}
	}
	if connected, _ := h.handler.counts(); connected != 0 {
		t.Errorf("OnConnect calls = %d, want 0", connected)
	}
}

func TestHub_String(t *testing.T) {
	t.Parallel()
	hub := NewHub(Config{}, newEchoHandler())
	if got := hub.String(); got != "websocket-hub" {
		t.Errorf("String() = %q, want websocket-hub", got)
	}
	if hub.cfg.HeartbeatInterval != DefaultConfig().HeartbeatInterval {
		t.Errorf("HeartbeatInterval = %v, want default", hub.cfg.HeartbeatInterval)
	}
}
