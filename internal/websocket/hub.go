// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package websocket

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/geocanvas/internal/canvas"
	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Handler receives connection lifecycle events and inbound frames.
// canvas.Service implements it.
type Handler interface {
	OnConnect(c canvas.Client)
	OnMessage(ctx context.Context, c canvas.Client, data []byte)
	OnDisconnect(ctx context.Context, clientID string)
}

// Config holds transport parameters.
type Config struct {
	// HeartbeatInterval is how often the server pings. A connection that
	// has not answered within one further interval is closed.
	HeartbeatInterval time.Duration
	WriteWait         time.Duration
	MaxMessageSize    int64
	SendBuffer        int
	// MessagesPerSecond and Burst bound inbound frames per connection.
	MessagesPerSecond float64
	Burst             int
	// AllowedOrigins lists accepted Origin headers. Empty accepts any.
	AllowedOrigins []string
}

// DefaultConfig returns the production parameters.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		WriteWait:         10 * time.Second,
		MaxMessageSize:    512 * 1024,
		SendBuffer:        256,
		MessagesPerSecond: 60,
		Burst:             120,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	if c.MessagesPerSecond <= 0 {
		c.MessagesPerSecond = def.MessagesPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = def.Burst
	}
}

// Hub maintains the set of active clients. Registration and removal are
// serialized through its run loop so the handler sees OnConnect before any
// message of a client and OnDisconnect exactly once.
type Hub struct {
	cfg      Config
	handler  Handler
	upgrader websocket.Upgrader

	clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	// ctx is canceled when the hub stops; client pumps use it for handler calls.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub that feeds handler.
func NewHub(cfg Config, handler Handler) *Hub {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:        cfg,
		handler:    handler,
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// RunWithContext runs the hub until ctx is canceled, then closes every
// client and returns ctx.Err(). It is a suture service.
//
// Shutdown is checked first and lifecycle events are drained before
// blocking, so the client set is always settled when the hub stops.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String names the hub for the supervisor.
func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	h.handler.OnConnect(client)
	close(client.ready)
	logging.Info().Str("client_id", client.id).Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	total := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}

	client.closeSend()
	metrics.WSConnections.Dec()
	h.handler.OnDisconnect(h.ctx, client.id)
	logging.Info().Str("client_id", client.id).Int("total_clients", total).Msg("websocket client disconnected")
}

// logGracefulShutdown closes every client and logs the shutdown. ctx.Err()
// is not logged as an error because cancellation is expected here.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()
	h.cancel()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients closes every client in id order and tells the handler.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		client.closeSend()
		metrics.WSConnections.Dec()
		h.handler.OnDisconnect(context.Background(), client.id)
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS returns the upgrade handler. identify returns the identity of
// the request; it may return "".
func (h *Hub) ServeWS(identify func(r *http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			metrics.RecordWSError(err)
			logging.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}

		identity := ""
		if identify != nil {
			identity = identify(r)
		}
		client := newClient(h, conn, uuid.NewString(), identity)

		select {
		case h.Register <- client:
		case <-h.ctx.Done():
			_ = conn.Close()
			return
		case <-r.Context().Done():
			_ = conn.Close()
			return
		}
		client.Start()
	}
}
