// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package kv

import (
	"context"
	"fmt"

	"github.com/tomtom215/geocanvas/internal/logging"
)

// Backend kinds accepted by Open.
const (
	KindRedis  = "redis"
	KindBadger = "badger"
	KindMemory = "memory"
)

// Options selects and configures the storage backend.
type Options struct {
	Kind           string
	Redis          RedisOptions
	BadgerDir      string
	BadgerInMemory bool
	Failover       FailoverConfig
}

// Open builds the backend named by opts.Kind. Durable backends are wrapped
// in a FailoverBackend with a fresh MemoryBackend as fallback. If the durable
// backend cannot be reached at startup, Open logs the failure and returns a
// plain MemoryBackend so the server still starts in degraded mode.
func Open(ctx context.Context, opts Options) (Backend, error) {
	var primary Backend
	switch opts.Kind {
	case KindMemory, "":
		logging.Warn().Msg("Storage backend is in-memory; strokes and activities will not survive a restart")
		return NewMemory(), nil
	case KindRedis:
		r, err := NewRedis(ctx, opts.Redis)
		if err != nil {
			logging.Error().Err(err).Str("addr", opts.Redis.Addr).
				Msg("Redis unreachable at startup, running on in-memory storage")
			return NewMemory(), nil
		}
		primary = r
	case KindBadger:
		b, err := OpenBadger(opts.BadgerDir, opts.BadgerInMemory)
		if err != nil {
			logging.Error().Err(err).Str("dir", opts.BadgerDir).
				Msg("Badger could not be opened, running on in-memory storage")
			return NewMemory(), nil
		}
		primary = b
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", opts.Kind)
	}

	logging.Info().Str("backend", primary.Name()).Msg("Storage backend ready")
	return NewFailover(primary, NewMemory(), opts.Failover), nil
}
