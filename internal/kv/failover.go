// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/metrics"
)

// FailoverConfig tunes the circuit breaker in front of the primary.
type FailoverConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial calls allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultFailoverConfig returns the production breaker settings.
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{FailureThreshold: 5, OpenTimeout: 30 * time.Second, HalfOpenRequests: 1}
}

// FailoverBackend sends every call to a durable primary and replays it on an
// in-memory fallback when the primary fails or its breaker is open. The
// fallback is a degraded standalone copy, not a replica: data written while
// degraded is not copied back.
type FailoverBackend struct {
	primary  Backend
	fallback Backend
	cb       *gobreaker.CircuitBreaker[interface{}]
}

// NewFailover wraps primary with fallback.
func NewFailover(primary, fallback Backend, cfg FailoverConfig) *FailoverBackend {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}

	name := primary.Name()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNil) ||
				errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBackendBreakerState(name, int(to))
			logging.Warn().
				Str("backend", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Storage circuit breaker state changed")
		},
	}
	metrics.SetBackendBreakerState(name, int(gobreaker.StateClosed))

	return &FailoverBackend{
		primary:  primary,
		fallback: fallback,
		cb:       gobreaker.NewCircuitBreaker[interface{}](settings),
	}
}

// State returns the breaker state: closed, half-open or open.
func (f *FailoverBackend) State() string {
	return f.cb.State().String()
}

// Degraded reports whether calls currently bypass the primary.
func (f *FailoverBackend) Degraded() bool {
	return f.cb.State() == gobreaker.StateOpen
}

// do runs fn on the primary through the breaker and replays it on the
// fallback when the primary fails. ErrNil and context errors are returned
// as-is.
func do[T any](ctx context.Context, f *FailoverBackend, op string, fn func(Backend) (T, error)) (T, error) {
	res, err := f.cb.Execute(func() (interface{}, error) {
		return fn(f.primary)
	})
	if err == nil {
		return res.(T), nil
	}
	if errors.Is(err, ErrNil) {
		var zero T
		return zero, err
	}
	if ctx.Err() != nil {
		var zero T
		return zero, ctx.Err()
	}

	metrics.RecordBackendFallback(op)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		logging.Debug().Str("op", op).Str("backend", f.primary.Name()).Msg("Breaker open, writing to memory fallback")
	} else {
		logging.Warn().Err(err).Str("op", op).Str("backend", f.primary.Name()).
			Msg("Durable backend failed, falling back to memory")
	}

	out, ferr := fn(f.fallback)
	if ferr != nil && !errors.Is(ferr, ErrNil) {
		return out, fmt.Errorf("%w: %s: primary: %v, fallback: %v", ErrBackendUnavailable, op, err, ferr)
	}
	return out, ferr
}

func doErr(ctx context.Context, f *FailoverBackend, op string, fn func(Backend) error) error {
	_, err := do(ctx, f, op, func(b Backend) (struct{}, error) {
		return struct{}{}, fn(b)
	})
	return err
}

// Name implements Backend.
func (f *FailoverBackend) Name() string {
	return "failover(" + f.primary.Name() + ")"
}

// Ping checks the primary only.
func (f *FailoverBackend) Ping(ctx context.Context) error {
	return f.primary.Ping(ctx)
}

// Close closes both backends.
func (f *FailoverBackend) Close() error {
	return errors.Join(f.primary.Close(), f.fallback.Close())
}

// Get implements Backend.
func (f *FailoverBackend) Get(ctx context.Context, key string) (string, error) {
	return do(ctx, f, "get", func(b Backend) (string, error) { return b.Get(ctx, key) })
}

// Set implements Backend.
func (f *FailoverBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return doErr(ctx, f, "set", func(b Backend) error { return b.Set(ctx, key, value, ttl) })
}

// SetNX implements Backend.
func (f *FailoverBackend) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return do(ctx, f, "setnx", func(b Backend) (bool, error) { return b.SetNX(ctx, key, value, ttl) })
}

// Del implements Backend.
func (f *FailoverBackend) Del(ctx context.Context, keys ...string) error {
	return doErr(ctx, f, "del", func(b Backend) error { return b.Del(ctx, keys...) })
}

// HSet implements Backend.
func (f *FailoverBackend) HSet(ctx context.Context, key, field, value string) error {
	return doErr(ctx, f, "hset", func(b Backend) error { return b.HSet(ctx, key, field, value) })
}

// HGet implements Backend.
func (f *FailoverBackend) HGet(ctx context.Context, key, field string) (string, error) {
	return do(ctx, f, "hget", func(b Backend) (string, error) { return b.HGet(ctx, key, field) })
}

// HMGet implements Backend.
func (f *FailoverBackend) HMGet(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	return do(ctx, f, "hmget", func(b Backend) (map[string]string, error) { return b.HMGet(ctx, key, fields...) })
}

// HDel implements Backend.
func (f *FailoverBackend) HDel(ctx context.Context, key string, fields ...string) error {
	return doErr(ctx, f, "hdel", func(b Backend) error { return b.HDel(ctx, key, fields...) })
}

// HIncrBy implements Backend.
func (f *FailoverBackend) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return do(ctx, f, "hincrby", func(b Backend) (int64, error) { return b.HIncrBy(ctx, key, field, delta) })
}

// HGetAll implements Backend.
func (f *FailoverBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return do(ctx, f, "hgetall", func(b Backend) (map[string]string, error) { return b.HGetAll(ctx, key) })
}

// SAdd implements Backend.
func (f *FailoverBackend) SAdd(ctx context.Context, key string, members ...string) error {
	return doErr(ctx, f, "sadd", func(b Backend) error { return b.SAdd(ctx, key, members...) })
}

// SRem implements Backend.
func (f *FailoverBackend) SRem(ctx context.Context, key string, members ...string) error {
	return doErr(ctx, f, "srem", func(b Backend) error { return b.SRem(ctx, key, members...) })
}

// SMembers implements Backend.
func (f *FailoverBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	return do(ctx, f, "smembers", func(b Backend) ([]string, error) { return b.SMembers(ctx, key) })
}

// SCard implements Backend.
func (f *FailoverBackend) SCard(ctx context.Context, key string) (int64, error) {
	return do(ctx, f, "scard", func(b Backend) (int64, error) { return b.SCard(ctx, key) })
}

// ZAdd implements Backend.
func (f *FailoverBackend) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return doErr(ctx, f, "zadd", func(b Backend) error { return b.ZAdd(ctx, key, score, member) })
}

// ZRem implements Backend.
func (f *FailoverBackend) ZRem(ctx context.Context, key string, members ...string) error {
	return doErr(ctx, f, "zrem", func(b Backend) error { return b.ZRem(ctx, key, members...) })
}

// ZCard implements Backend.
func (f *FailoverBackend) ZCard(ctx context.Context, key string) (int64, error) {
	return do(ctx, f, "zcard", func(b Backend) (int64, error) { return b.ZCard(ctx, key) })
}

// ZRange implements Backend.
func (f *FailoverBackend) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return do(ctx, f, "zrange", func(b Backend) ([]string, error) { return b.ZRange(ctx, key, start, stop) })
}

// Expire implements Backend.
func (f *FailoverBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return doErr(ctx, f, "expire", func(b Backend) error { return b.Expire(ctx, key, ttl) })
}

// Scan implements Backend.
func (f *FailoverBackend) Scan(ctx context.Context, pattern string) ([]string, error) {
	return do(ctx, f, "scan", func(b Backend) ([]string, error) { return b.Scan(ctx, pattern) })
}
