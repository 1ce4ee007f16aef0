// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/geocanvas/internal/auth"
	"github.com/tomtom215/geocanvas/internal/kv"
	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/validation"
)

const (
	// maxGeohashPrecision is the longest geohash the indexes accept.
	maxGeohashPrecision = 12
	maxSampleLattice    = 64
	maxSaltBytes        = 64

	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour

	minHeartbeat = time.Second
)

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

var validBackends = map[string]bool{
	kv.KindRedis:  true,
	kv.KindBadger: true,
	kv.KindMemory: true,
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateCanvas,
		c.validateGeo,
		c.validateActivity,
		c.validateRooms,
		c.validateWebSocket,
		c.validateStorage,
		c.validateRelay,
		c.validateSecurity,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("READ_TIMEOUT and WRITE_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateCanvas() error {
	if c.Canvas.ChunkSize <= 0 {
		return fmt.Errorf("CANVAS_CHUNK_SIZE must be positive")
	}
	if c.Canvas.MaxPerChunk < 1 {
		return fmt.Errorf("CANVAS_MAX_PER_CHUNK must be at least 1")
	}
	if c.Canvas.ViewportGrid <= 0 {
		return fmt.Errorf("CANVAS_VIEWPORT_GRID must be positive")
	}
	if c.Canvas.ViewportMargin < 0 {
		return fmt.Errorf("CANVAS_VIEWPORT_MARGIN must not be negative")
	}
	if c.Canvas.MaxStrokePoints < 2 {
		return fmt.Errorf("CANVAS_MAX_STROKE_POINTS must be at least 2")
	}
	return nil
}

func (c *Config) validateGeo() error {
	g := c.Geo
	if g.MinPrecision < 1 || g.MaxPrecision > maxGeohashPrecision || g.MinPrecision > g.MaxPrecision {
		return fmt.Errorf("GEO_MIN_PRECISION and GEO_MAX_PRECISION must satisfy 1 <= min <= max <= %d", maxGeohashPrecision)
	}
	if g.SampleLattice < 1 || g.SampleLattice > maxSampleLattice {
		return fmt.Errorf("GEO_SAMPLE_LATTICE must be between 1 and %d", maxSampleLattice)
	}
	if g.HeatmapPrecision < 1 || g.HeatmapPrecision > maxGeohashPrecision {
		return fmt.Errorf("GEO_HEATMAP_PRECISION must be between 1 and %d", maxGeohashPrecision)
	}
	return nil
}

func (c *Config) validateActivity() error {
	a := c.Activity
	if a.MinPrecision < 1 || a.MinPrecision > maxGeohashPrecision {
		return fmt.Errorf("ACTIVITY_MIN_PRECISION must be between 1 and %d", maxGeohashPrecision)
	}
	if a.DefaultKeyPrecision < a.MinPrecision || a.DefaultKeyPrecision > maxGeohashPrecision {
		return fmt.Errorf("ACTIVITY_DEFAULT_KEY_PRECISION must be between ACTIVITY_MIN_PRECISION and %d", maxGeohashPrecision)
	}
	if a.ProximityMeters <= 0 {
		return fmt.Errorf("ACTIVITY_PROXIMITY_METERS must be positive")
	}
	if a.PermissionCacheTTL < 0 {
		return fmt.Errorf("ACTIVITY_PERMISSION_CACHE_TTL must not be negative")
	}
	return nil
}

func (c *Config) validateRooms() error {
	r := c.Rooms
	if r.HistoryCap < 2 {
		return fmt.Errorf("ROOM_HISTORY_CAP must be at least 2")
	}
	if r.SnapshotSize < 1 || r.SnapshotSize > r.HistoryCap {
		return fmt.Errorf("ROOM_SNAPSHOT_SIZE must be between 1 and ROOM_HISTORY_CAP")
	}
	if r.IdleTimeout <= 0 || r.SweepInterval <= 0 {
		return fmt.Errorf("ROOM_IDLE_TIMEOUT and ROOM_SWEEP_INTERVAL must be positive")
	}
	if r.DefaultRoom != "" {
		if err := validation.GetValidator().Var(r.DefaultRoom, "roomid"); err != nil {
			return fmt.Errorf("DEFAULT_ROOM %q is not a valid room id", r.DefaultRoom)
		}
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	w := c.WebSocket
	if w.HeartbeatInterval < minHeartbeat {
		return fmt.Errorf("WS_HEARTBEAT_INTERVAL must be at least %v", minHeartbeat)
	}
	if w.MaxMessageSize < 1024 {
		return fmt.Errorf("WS_MAX_MESSAGE_SIZE must be at least 1024 bytes")
	}
	if w.SendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be at least 1")
	}
	if w.MessagesPerSecond <= 0 || w.Burst < 1 {
		return fmt.Errorf("WS_MESSAGES_PER_SECOND and WS_BURST must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	s := c.Storage
	if !validBackends[s.Backend] {
		return fmt.Errorf("STORAGE_BACKEND must be one of: redis, badger, memory")
	}
	if s.Backend == kv.KindRedis && s.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when STORAGE_BACKEND=redis")
	}
	if s.Backend == kv.KindBadger && s.BadgerPath == "" {
		return fmt.Errorf("BADGER_PATH is required when STORAGE_BACKEND=badger")
	}
	return nil
}

func (c *Config) validateRelay() error {
	r := c.Relay
	if !r.Enabled {
		return nil
	}
	if r.URL == "" && !r.EmbeddedServer {
		return fmt.Errorf("NATS_URL is required when RELAY_ENABLED=true")
	}
	if r.SubjectPrefix == "" || strings.ContainsAny(r.SubjectPrefix, "*> ") {
		return fmt.Errorf("RELAY_SUBJECT_PREFIX must be a non-empty subject without wildcards")
	}
	if r.EmbeddedServer && (r.EmbeddedPort < 1 || r.EmbeddedPort > 65535) {
		return fmt.Errorf("NATS_EMBEDDED_PORT must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	s := c.Security
	if s.JWTSecret != "" {
		if len(s.JWTSecret) < auth.MinSecretLength {
			return fmt.Errorf("JWT_SECRET: %w", auth.ErrSecretTooShort)
		}
		if containsPlaceholder(s.JWTSecret) {
			return fmt.Errorf("JWT_SECRET contains a placeholder value; set a real secret")
		}
	}
	if len(s.AnonymousSalt) > maxSaltBytes {
		return fmt.Errorf("ANONYMOUS_SALT must be at most %d bytes", maxSaltBytes)
	}
	if s.RateLimitReqs < minRateLimitRequests || s.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if s.RateLimitWindow < minRateLimitWindow || s.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

// HasWildcardCORS reports whether any origin is accepted.
func (c *Config) HasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error, fatal, panic, disabled")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// placeholderPatterns indicate the user forgot to set a real value.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"PLACEHOLDER",
	"EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
