// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package config

import (
	"time"

	"github.com/tomtom215/geocanvas/internal/activity"
	"github.com/tomtom215/geocanvas/internal/api"
	"github.com/tomtom215/geocanvas/internal/canvas"
	"github.com/tomtom215/geocanvas/internal/chunkstore"
	"github.com/tomtom215/geocanvas/internal/geoindex"
	"github.com/tomtom215/geocanvas/internal/kv"
	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/relay"
	"github.com/tomtom215/geocanvas/internal/room"
	"github.com/tomtom215/geocanvas/internal/websocket"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Canvas    CanvasConfig    `koanf:"canvas"`
	Geo       GeoConfig       `koanf:"geo"`
	Activity  ActivityConfig  `koanf:"activity"`
	Rooms     RoomsConfig     `koanf:"rooms"`
	WebSocket WebSocketConfig `koanf:"websocket"`
	Storage   StorageConfig   `koanf:"storage"`
	Relay     RelayConfig     `koanf:"relay"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// InstanceID names this process on the relay. Generated when empty.
	InstanceID string `koanf:"instance_id"`
}

// CanvasConfig holds infinite canvas parameters.
type CanvasConfig struct {
	ChunkSize        float64       `koanf:"chunk_size"`
	MaxPerChunk      int           `koanf:"max_per_chunk"`
	ChunkTTL         time.Duration `koanf:"chunk_ttl"`
	ViewportMargin   float64       `koanf:"viewport_margin"`
	ViewportGrid     float64       `koanf:"viewport_grid"`
	ViewportCulling  bool          `koanf:"viewport_culling"`
	MaxStrokePoints  int           `koanf:"max_stroke_points"`
	MaxChunksPerLoad int           `koanf:"max_chunks_per_load"`
}

// GeoConfig holds geo path indexing parameters.
type GeoConfig struct {
	MinPrecision     int           `koanf:"min_precision"`
	MaxPrecision     int           `koanf:"max_precision"`
	SampleLattice    int           `koanf:"sample_lattice"`
	HeatmapPrecision int           `koanf:"heatmap_precision"`
	BucketTTL        time.Duration `koanf:"bucket_ttl"`
	MaxLimit         int           `koanf:"max_limit"`
}

// ActivityConfig holds activity store parameters.
type ActivityConfig struct {
	MinPrecision        int           `koanf:"min_precision"`
	DefaultKeyPrecision int           `koanf:"default_key_precision"`
	ProximityMeters     float64       `koanf:"proximity_meters"`
	BucketTTL           time.Duration `koanf:"bucket_ttl"`
	PermissionCacheTTL  time.Duration `koanf:"permission_cache_ttl"`
	MaxCanvasBytes      int           `koanf:"max_canvas_bytes"`
}

// RoomsConfig holds room registry parameters.
type RoomsConfig struct {
	HistoryCap    int           `koanf:"history_cap"`
	SnapshotSize  int           `koanf:"snapshot_size"`
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	DefaultRoom   string        `koanf:"default_room"`
}

// WebSocketConfig holds transport parameters.
type WebSocketConfig struct {
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	MaxMessageSize    int64         `koanf:"max_message_size"`
	SendBuffer        int           `koanf:"send_buffer"`
	MessagesPerSecond float64       `koanf:"messages_per_second"`
	Burst             int           `koanf:"burst"`
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Backend          string        `koanf:"backend"`
	RedisAddr        string        `koanf:"redis_addr"`
	RedisPassword    string        `koanf:"redis_password"`
	RedisDB          int           `koanf:"redis_db"`
	BadgerPath       string        `koanf:"badger_path"`
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// RelayConfig holds cross-instance relay settings.
type RelayConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
	// EmbeddedServer starts an in-process NATS server on EmbeddedPort.
	EmbeddedServer bool `koanf:"embedded_server"`
	EmbeddedPort   int  `koanf:"embedded_port"`
}

// SecurityConfig holds identity, CORS and rate limit settings.
type SecurityConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	JWTIssuer       string        `koanf:"jwt_issuer"`
	SessionTimeout  time.Duration `koanf:"session_timeout"`
	AnonymousSalt   string        `koanf:"anonymous_salt"`
	TrustProxy      bool          `koanf:"trust_proxy"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}

// ChunkStore converts the canvas section to chunk store parameters.
func (c *Config) ChunkStore() chunkstore.Config {
	cfg := chunkstore.DefaultConfig()
	cfg.ChunkSize = c.Canvas.ChunkSize
	cfg.MaxPerChunk = c.Canvas.MaxPerChunk
	cfg.ChunkTTL = c.Canvas.ChunkTTL
	cfg.ViewportMargin = c.Canvas.ViewportMargin
	if c.Canvas.MaxChunksPerLoad > 0 {
		cfg.MaxChunksPerOp = c.Canvas.MaxChunksPerLoad
	}
	return cfg
}

// GeoIndex converts the geo section to geo index parameters.
func (c *Config) GeoIndex() geoindex.Config {
	cfg := geoindex.DefaultConfig()
	cfg.MinPrecision = c.Geo.MinPrecision
	cfg.MaxPrecision = c.Geo.MaxPrecision
	cfg.SampleLattice = c.Geo.SampleLattice
	cfg.HeatmapPrecision = c.Geo.HeatmapPrecision
	cfg.BucketTTL = c.Geo.BucketTTL
	if c.Geo.MaxLimit > 0 {
		cfg.MaxLimit = c.Geo.MaxLimit
	}
	return cfg
}

// ActivityStore converts the activity section to activity store parameters.
func (c *Config) ActivityStore() activity.Config {
	cfg := activity.DefaultConfig()
	cfg.MinPrecision = c.Activity.MinPrecision
	cfg.DefaultKeyPrecision = c.Activity.DefaultKeyPrecision
	cfg.SampleLattice = c.Geo.SampleLattice
	cfg.ProximityMeters = c.Activity.ProximityMeters
	cfg.BucketTTL = c.Activity.BucketTTL
	cfg.PermissionCacheTTL = c.Activity.PermissionCacheTTL
	if c.Activity.MaxCanvasBytes > 0 {
		cfg.MaxCanvasBytes = c.Activity.MaxCanvasBytes
	}
	return cfg
}

// RoomRegistry converts the rooms section to registry parameters.
func (c *Config) RoomRegistry() room.Config {
	return room.Config{
		HistoryCap:    c.Rooms.HistoryCap,
		SnapshotSize:  c.Rooms.SnapshotSize,
		IdleTimeout:   c.Rooms.IdleTimeout,
		SweepInterval: c.Rooms.SweepInterval,
	}
}

// CanvasService converts canvas and rooms settings to service parameters.
func (c *Config) CanvasService() canvas.Config {
	return canvas.Config{
		ViewportCulling: c.Canvas.ViewportCulling,
		DefaultRoom:     c.Rooms.DefaultRoom,
		MaxStrokePoints: c.Canvas.MaxStrokePoints,
	}
}

// Transport converts the websocket section to hub parameters.
func (c *Config) Transport() websocket.Config {
	cfg := websocket.DefaultConfig()
	cfg.HeartbeatInterval = c.WebSocket.HeartbeatInterval
	cfg.MaxMessageSize = c.WebSocket.MaxMessageSize
	cfg.SendBuffer = c.WebSocket.SendBuffer
	cfg.MessagesPerSecond = c.WebSocket.MessagesPerSecond
	cfg.Burst = c.WebSocket.Burst
	cfg.AllowedOrigins = c.Security.CORSOrigins
	return cfg
}

// StorageOptions converts the storage section to kv.Open options.
func (c *Config) StorageOptions() kv.Options {
	failover := kv.DefaultFailoverConfig()
	if c.Storage.BreakerThreshold > 0 {
		failover.FailureThreshold = c.Storage.BreakerThreshold
	}
	if c.Storage.BreakerTimeout > 0 {
		failover.OpenTimeout = c.Storage.BreakerTimeout
	}
	return kv.Options{
		Kind: c.Storage.Backend,
		Redis: kv.RedisOptions{
			Addr:         c.Storage.RedisAddr,
			Password:     c.Storage.RedisPassword,
			DB:           c.Storage.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		BadgerDir: c.Storage.BadgerPath,
		Failover:  failover,
	}
}

// RelayOptions converts the relay section to NATS relay parameters.
func (c *Config) RelayOptions() relay.Config {
	cfg := relay.DefaultConfig()
	if c.Relay.URL != "" {
		cfg.URL = c.Relay.URL
	}
	if c.Relay.SubjectPrefix != "" {
		cfg.SubjectPrefix = c.Relay.SubjectPrefix
	}
	return cfg
}

// Logger converts the logging section to logger parameters.
func (c *Config) Logger() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	cfg.Caller = c.Logging.Caller
	return cfg
}

// HTTPMiddleware converts the security section to REST middleware settings.
// A non-positive request budget disables rate limiting.
func (c *Config) HTTPMiddleware() *api.ChiMiddlewareConfig {
	cfg := api.DefaultChiMiddlewareConfig()
	cfg.CORSAllowedOrigins = c.Security.CORSOrigins
	cfg.RateLimitRequests = c.Security.RateLimitReqs
	cfg.RateLimitWindow = c.Security.RateLimitWindow
	cfg.RateLimitDisabled = c.Security.RateLimitReqs <= 0
	return cfg
}
