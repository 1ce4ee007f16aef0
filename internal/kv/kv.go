// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

// Package kv is the storage layer under the chunk store, geo index and
// activity store.
//
// Backend exposes the Redis-shaped primitives those stores are written
// against: strings, hashes, sets, sorted sets, key expiry and glob scans.
// Every implementation gives each primitive atomic semantics, so stores can
// rely on add-to-set and increment instead of read-modify-write wherever a
// value is shared between server instances.
//
// Implementations:
//
//   - RedisBackend: shared durable store (go-redis v9)
//   - BadgerBackend: single-node durable store (badger v4)
//   - MemoryBackend: process-local, non-durable
//   - FailoverBackend: wraps a durable primary and a memory fallback behind a
//     circuit breaker; primary errors are logged and the call is replayed on
//     the fallback
//
// Open selects and wires the implementation named in Options.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNil is returned when a string key or hash field does not exist.
var ErrNil = errors.New("kv: nil")

// ErrBackendUnavailable wraps failures of a durable backend.
var ErrBackendUnavailable = errors.New("kv: backend unavailable")

// Backend is the key-value contract shared by all storage implementations.
//
// Sorted-set ranges follow Redis ZRANGE semantics: start and stop are
// inclusive ranks in ascending score order (ties broken by member), negative
// values count from the end.
type Backend interface {
	Name() string
	Ping(ctx context.Context) error
	Close() error

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HMGet(ctx context.Context, key string, fields ...string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZCard(ctx context.Context, key string) (int64, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Expire sets a TTL on an existing key. Missing keys are left alone.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Scan returns every live key matching a glob pattern (path.Match syntax).
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// rankRange converts Redis-style inclusive ranks to a [lo, hi) slice range.
func rankRange(n, start, stop int64) (lo, hi int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0
	}
	return start, stop + 1
}
