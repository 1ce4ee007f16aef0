// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

/*
Package websocket carries the canvas protocol over gorilla/websocket.

The package owns connections only. Every decoded frame goes to a Handler
(canvas.Service in production), which decides rooms, fan-out and persistence.

Key Components:

  - Hub: registers and removes clients through a single run loop
  - Client: one connection with a read goroutine and a write goroutine
  - Config: heartbeat, frame limits, send buffer and per-connection rate

Architecture:

	HTTP /ws ──► Hub.ServeWS ──► Register ──► Handler.OnConnect
	                                 │
	┌────────────────────────────────┴──────────────┐
	│ Client                                        │
	│   readPump ──► rate.Limiter ──► OnMessage     │
	│   writePump ◄── send chan ◄── Client.Send     │
	└────────────────────────────────┬──────────────┘
	                                 ▼
	                   Unregister ──► Handler.OnDisconnect

Ordering:

OnConnect runs before the read pump delivers the first frame, and
OnDisconnect runs exactly once per client, either from Unregister or from
hub shutdown.

Liveness:

The server pings every HeartbeatInterval. The read deadline is two
intervals, so a client that stops answering is dropped within one interval
of the missed ping.

Backpressure:

Client.Send never blocks. When the send buffer is full the frame is dropped
and counted in geocanvas_websocket_messages_dropped_total by the caller.

Rate Limiting:

Each connection has a token bucket (golang.org/x/time/rate). Frames over
the limit are answered with a RATE_LIMITED error and discarded.
*/
package websocket
