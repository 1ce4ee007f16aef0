// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

/*
Package main runs the GeoCanvas server: a collaborative drawing backend with
an infinite pixel canvas split into rooms and a shared geo-anchored canvas
with location-scoped activities.

# Startup

 1. Flags (pflag): --config/-c, --log-level, --backend, --port/-p, --version
 2. Configuration (koanf): defaults < YAML file < .env < environment < flags
 3. Logging (zerolog)
 4. Storage: Redis or Badger behind a circuit-breaker failover to memory
 5. Optional NATS relay, with an optional embedded NATS server
 6. Canvas service, websocket hub, REST router
 7. Supervisor tree (suture v4)

# Supervision

	geocanvas
	├── data-layer       permission cache sweeper, room idle sweep
	├── messaging-layer  websocket hub, NATS relay, embedded NATS server
	└── api-layer        HTTP server

SIGINT or SIGTERM cancels the tree. The HTTP server drains for
server.shutdown_timeout, open websockets receive a close frame and the
relay and storage are closed last.

# Environment

	HTTP_HOST=0.0.0.0
	HTTP_PORT=3000
	STORAGE_BACKEND=redis        # redis, badger or memory
	REDIS_ADDR=localhost:6379
	BADGER_PATH=/data/geocanvas
	RELAY_ENABLED=false
	NATS_URL=nats://localhost:4222
	NATS_EMBEDDED_SERVER=false
	JWT_SECRET=<32+ chars>       # enables bearer tokens
	ANONYMOUS_SALT=<secret>
	CORS_ORIGINS=https://app.example
	LOG_LEVEL=info
	LOG_FORMAT=json
*/
package main
