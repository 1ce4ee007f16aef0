// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

// Package relay fans room events out across server instances over NATS.
//
// Every instance publishes the draw, cursor, clear and geoPath events of
// its local clients on <prefix>.room.<roomId> and subscribes to
// <prefix>.room.>. Each envelope carries the id of the instance that
// produced it; an instance drops its own envelopes and never re-publishes
// remote ones, so an event crosses the bus exactly once.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/metrics"
)

// Event kinds carried in Envelope.Kind.
const (
	KindDraw    = "draw"
	KindCursor  = "cursor"
	KindClear   = "clear"
	KindGeoPath = "geoPath"
)

// flushTimeout bounds the round trip confirming a new subscription.
const flushTimeout = 5 * time.Second

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("relay closed")

// Envelope is one relayed room event.
type Envelope struct {
	Origin   string          `json:"origin"`
	Room     string          `json:"room"`
	Kind     string          `json:"kind"`
	ClientID string          `json:"clientId"`
	Payload  json.RawMessage `json:"payload"`
}

// Handler applies a remote envelope locally.
type Handler func(ctx context.Context, env Envelope)

// Config holds relay connection settings.
type Config struct {
	URL           string
	SubjectPrefix string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns the defaults for a local NATS server.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "geocanvas",
		ReconnectWait: time.Second,
		MaxReconnects: -1,
	}
}

// NATSRelay publishes local events and delivers remote ones to a Handler.
type NATSRelay struct {
	nc     *nats.Conn
	prefix string
	origin string

	mu      sync.Mutex
	handler Handler
	closed  bool
}

// Connect dials NATS. origin identifies this instance in every envelope.
func Connect(cfg Config, origin string) (*NATSRelay, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "geocanvas"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("geocanvas-"+origin),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("Relay disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info().Str("url", c.ConnectedUrl()).Msg("Relay reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSRelay{nc: nc, prefix: cfg.SubjectPrefix, origin: origin}, nil
}

// Origin returns this instance's id.
func (r *NATSRelay) Origin() string {
	return r.origin
}

// Subject returns the subject events of roomID are published on. Dots in
// the room id are not subject separators and are replaced.
func (r *NATSRelay) Subject(roomID string) string {
	return r.prefix + ".room." + subjectToken(roomID)
}

func subjectToken(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// SetHandler installs the function remote envelopes are delivered to.
func (r *NATSRelay) SetHandler(h Handler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

// Publish sends env with this instance as origin.
func (r *NATSRelay) Publish(_ context.Context, env Envelope) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	env.Origin = r.origin
	data, err := json.Marshal(env)
	if err != nil {
		metrics.RelayErrors.WithLabelValues("encode").Inc()
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := r.nc.Publish(r.Subject(env.Room), data); err != nil {
		metrics.RelayErrors.WithLabelValues("publish").Inc()
		return fmt.Errorf("publish to %s: %w", r.Subject(env.Room), err)
	}
	metrics.RelayPublished.Inc()
	return nil
}

// Serve subscribes to every room subject and delivers remote envelopes to
// the handler until ctx is canceled.
func (r *NATSRelay) Serve(ctx context.Context) error {
	msgs := make(chan *nats.Msg, 1024)
	sub, err := r.nc.ChanSubscribe(r.prefix+".room.>", msgs)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			logging.Warn().Err(err).Msg("Relay unsubscribe failed")
		}
	}()
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	err = r.nc.FlushWithContext(flushCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("flush subscription: %w", err)
	}
	logging.Info().Str("subject", sub.Subject).Msg("Relay subscribed")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-msgs:
			r.dispatch(ctx, m.Data)
		}
	}
}

func (r *NATSRelay) dispatch(ctx context.Context, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		metrics.RelayErrors.WithLabelValues("decode").Inc()
		logging.Warn().Err(err).Msg("Dropping undecodable relay envelope")
		return
	}
	if env.Origin == r.origin {
		return
	}

	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h == nil {
		return
	}
	metrics.RelayReceived.Inc()
	h(ctx, env)
}

// String names the relay for the supervisor.
func (r *NATSRelay) String() string {
	return "nats-relay"
}

// Close drains and closes the connection.
func (r *NATSRelay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		r.nc.Close()
		return fmt.Errorf("drain: %w", err)
	}
	return nil
}
