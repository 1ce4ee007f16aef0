// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

/*
Package config loads and validates GeoCanvas configuration.

# Configuration Sources

Sources are layered with koanf v2, later layers winning:

 1. Built-in defaults (defaultConfig)
 2. YAML file: --config, then CONFIG_PATH, then ./config.yaml or
    /etc/geocanvas/config.yaml
 3. Environment variables, after a local .env file is loaded with godotenv
 4. Command line flags registered by BindFlags (pflag)

Only mapped environment variables are read; see envMappings.

# Sections

  - server: listen address, HTTP timeouts, relay instance id
  - canvas: chunk size, chunk cap and TTL, viewport margin and grid, culling
  - geo: geohash precision range, sample lattice, heatmap precision
  - activity: precision, proximity radius, permission cache TTL
  - rooms: history cap, snapshot size, idle reaping, default room
  - websocket: heartbeat, frame size, send buffer, per-connection rate
  - storage: backend (redis, badger, memory) and breaker thresholds
  - relay: NATS relay and optional embedded server
  - security: JWT secret, anonymous salt, CORS, REST rate limit
  - logging: level, format, caller

# Environment Variables

Commonly set:
  - HTTP_PORT: Listen port (default: 3000)
  - STORAGE_BACKEND: redis, badger or memory (default: redis)
  - REDIS_ADDR: Redis address (default: localhost:6379)
  - BADGER_PATH: Badger directory (default: /data/geocanvas)
  - RELAY_ENABLED, NATS_URL: cross-instance relay
  - JWT_SECRET: token secret, at least 32 characters; empty disables tokens
  - ANONYMOUS_SALT: key for anonymous identities, at most 64 bytes
  - CORS_ORIGINS: comma-separated origins (default: *)
  - LOG_LEVEL, LOG_FORMAT

# Section Adapters

Config exposes ChunkStore, GeoIndex, ActivityStore, RoomRegistry,
CanvasService, Transport, StorageOptions, RelayOptions and Logger, which
convert sections into the parameter structs of each package.
*/
package config
