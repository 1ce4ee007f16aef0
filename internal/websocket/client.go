// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/metrics"
	"github.com/tomtom215/geocanvas/internal/models"
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	id       string
	identity string
	hub      *Hub
	conn     *websocket.Conn
	limiter  *rate.Limiter

	mu     sync.Mutex
	send   chan []byte
	closed bool

	// ready is closed once the handler has seen OnConnect.
	ready chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, id, identity string) *Client {
	return &Client{
		id:       id,
		identity: identity,
		hub:      hub,
		conn:     conn,
		limiter:  rate.NewLimiter(rate.Limit(hub.cfg.MessagesPerSecond), hub.cfg.Burst),
		send:     make(chan []byte, hub.cfg.SendBuffer),
		ready:    make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Identity returns the identity resolved at upgrade time.
func (c *Client) Identity() string {
	return c.identity
}

// Send queues a frame without blocking. It returns false when the buffer
// is full or the client is closed.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) pongWait() time.Duration {
	return 2 * c.hub.cfg.HeartbeatInterval
}

// readPump feeds inbound frames to the handler until the connection fails.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.ctx.Done():
		}
		_ = c.conn.Close()
	}()

	<-c.ready

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait())); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				metrics.RecordWSError(err)
				logging.Warn().Err(err).Str("client_id", c.id).Msg("unexpected websocket close error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !c.limiter.Allow() {
			metrics.RecordRateLimitHit("websocket")
			c.Send(models.MustEncode(models.NewErrorEvent(models.ErrCodeRateLimited, "too many messages")))
			continue
		}
		c.hub.handler.OnMessage(c.hub.ctx, c, data)
	}
}

// writePump writes queued frames and heartbeat pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				metrics.RecordWSError(err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
