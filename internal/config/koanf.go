// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/geocanvas/config.yaml",
	"/etc/geocanvas/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DotEnvFile is loaded into the environment before env vars are read.
// Variables already set in the environment win.
const DotEnvFile = ".env"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file, env vars and flags.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Canvas: CanvasConfig{
			ChunkSize:        1000,
			MaxPerChunk:      1000,
			ChunkTTL:         7 * 24 * time.Hour,
			ViewportMargin:   100,
			ViewportGrid:     500,
			ViewportCulling:  true,
			MaxStrokePoints:  5000,
			MaxChunksPerLoad: 1024,
		},
		Geo: GeoConfig{
			MinPrecision:     3,
			MaxPrecision:     7,
			SampleLattice:    4,
			HeatmapPrecision: 4,
			BucketTTL:        30 * 24 * time.Hour,
			MaxLimit:         5000,
		},
		Activity: ActivityConfig{
			MinPrecision:        4,
			DefaultKeyPrecision: 6,
			ProximityMeters:     500,
			BucketTTL:           90 * 24 * time.Hour,
			PermissionCacheTTL:  5 * time.Second,
			MaxCanvasBytes:      5 << 20,
		},
		Rooms: RoomsConfig{
			HistoryCap:    10000,
			SnapshotSize:  1000,
			IdleTimeout:   time.Hour,
			SweepInterval: time.Minute,
			DefaultRoom:   "default",
		},
		WebSocket: WebSocketConfig{
			HeartbeatInterval: 30 * time.Second,
			MaxMessageSize:    512 * 1024,
			SendBuffer:        256,
			MessagesPerSecond: 60,
			Burst:             120,
		},
		Storage: StorageConfig{
			Backend:          "redis",
			RedisAddr:        "localhost:6379",
			BadgerPath:       "/data/geocanvas",
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Relay: RelayConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "geocanvas",
			EmbeddedPort:  4222,
		},
		Security: SecurityConfig{
			SessionTimeout:  24 * time.Hour,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Flags holds the command line overrides. Only flags the user set are applied.
type Flags struct {
	fs         *pflag.FlagSet
	ConfigPath string
	LogLevel   string
	Backend    string
	Port       int
}

// BindFlags registers the override flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "path to a YAML config file")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&f.Backend, "backend", "", "storage backend (redis, badger, memory)")
	fs.IntVarP(&f.Port, "port", "p", 0, "HTTP listen port")
	return f
}

// apply writes every changed flag into k.
func (f *Flags) apply(k *koanf.Koanf) error {
	if f == nil || f.fs == nil {
		return nil
	}
	set := func(name, path string, value interface{}) error {
		if !f.fs.Changed(name) {
			return nil
		}
		return k.Set(path, value)
	}
	if err := set("log-level", "logging.level", f.LogLevel); err != nil {
		return err
	}
	if err := set("backend", "storage.backend", f.Backend); err != nil {
		return err
	}
	return set("port", "server.port", f.Port)
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: .env first, then the process environment
//  4. Flags: Only the ones set on the command line
//
// flags may be nil.
func Load(flags *Flags) (*Config, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	explicit := ""
	if flags != nil {
		explicit = flags.ConfigPath
	}
	if configPath := findConfigFile(explicit); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicit != "" {
		return nil, fmt.Errorf("config file %s not found", explicit)
	}

	// Layer 3: Environment variables
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	// Layer 4: Flags
	if err := flags.apply(k); err != nil {
		return nil, fmt.Errorf("failed to apply flags: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads path into the process environment when it exists.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// findConfigFile returns the explicit path, then CONFIG_PATH, then the first
// default path that exists, or "" when none does.
func findConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to config paths.
// Unmapped variables are ignored so the environment cannot pollute the config.
var envMappings = map[string]string{
	"http_host":        "server.host",
	"http_port":        "server.port",
	"read_timeout":     "server.read_timeout",
	"write_timeout":    "server.write_timeout",
	"idle_timeout":     "server.idle_timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"instance_id":      "server.instance_id",

	"canvas_chunk_size":          "canvas.chunk_size",
	"canvas_max_per_chunk":       "canvas.max_per_chunk",
	"canvas_chunk_ttl":           "canvas.chunk_ttl",
	"canvas_viewport_margin":     "canvas.viewport_margin",
	"canvas_viewport_grid":       "canvas.viewport_grid",
	"canvas_viewport_culling":    "canvas.viewport_culling",
	"canvas_max_stroke_points":   "canvas.max_stroke_points",
	"canvas_max_chunks_per_load": "canvas.max_chunks_per_load",

	"geo_min_precision":     "geo.min_precision",
	"geo_max_precision":     "geo.max_precision",
	"geo_sample_lattice":    "geo.sample_lattice",
	"geo_heatmap_precision": "geo.heatmap_precision",
	"geo_bucket_ttl":        "geo.bucket_ttl",
	"geo_max_limit":         "geo.max_limit",

	"activity_min_precision":         "activity.min_precision",
	"activity_default_key_precision": "activity.default_key_precision",
	"activity_proximity_meters":      "activity.proximity_meters",
	"activity_bucket_ttl":            "activity.bucket_ttl",
	"activity_permission_cache_ttl":  "activity.permission_cache_ttl",
	"activity_max_canvas_bytes":      "activity.max_canvas_bytes",

	"room_history_cap":    "rooms.history_cap",
	"room_snapshot_size":  "rooms.snapshot_size",
	"room_idle_timeout":   "rooms.idle_timeout",
	"room_sweep_interval": "rooms.sweep_interval",
	"default_room":        "rooms.default_room",

	"ws_heartbeat_interval":  "websocket.heartbeat_interval",
	"ws_max_message_size":    "websocket.max_message_size",
	"ws_send_buffer":         "websocket.send_buffer",
	"ws_messages_per_second": "websocket.messages_per_second",
	"ws_burst":               "websocket.burst",

	"storage_backend":   "storage.backend",
	"redis_addr":        "storage.redis_addr",
	"redis_password":    "storage.redis_password",
	"redis_db":          "storage.redis_db",
	"badger_path":       "storage.badger_path",
	"breaker_threshold": "storage.breaker_threshold",
	"breaker_timeout":   "storage.breaker_timeout",

	"relay_enabled":        "relay.enabled",
	"nats_url":             "relay.url",
	"relay_subject_prefix": "relay.subject_prefix",
	"nats_embedded_server": "relay.embedded_server",
	"nats_embedded_port":   "relay.embedded_port",

	"jwt_secret":        "security.jwt_secret",
	"jwt_issuer":        "security.jwt_issuer",
	"session_timeout":   "security.session_timeout",
	"anonymous_salt":    "security.anonymous_salt",
	"trust_proxy":       "security.trust_proxy",
	"cors_origins":      "security.cors_origins",
	"rate_limit_reqs":   "security.rate_limit_reqs",
	"rate_limit_window": "security.rate_limit_window",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - REDIS_ADDR -> storage.redis_addr
//   - NATS_URL -> relay.url
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
