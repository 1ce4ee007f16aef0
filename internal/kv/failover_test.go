// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package kv_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/geocanvas/internal/kv"
	"github.com/tomtom215/geocanvas/internal/metrics"
)

var errDown = errors.New("connection refused")

// flakyBackend fails every call while fail is set.
type flakyBackend struct {
	kv.Backend
	fail  atomic.Bool
	calls atomic.Int64
}

func (f *flakyBackend) check() error {
	f.calls.Add(1)
	if f.fail.Load() {
		return errDown
	}
	return nil
}

func (f *flakyBackend) Name() string { return "flaky" }

func (f *flakyBackend) Get(ctx context.Context, key string) (string, error) {
	if err := f.check(); err != nil {
		return "", err
	}
	return f.Backend.Get(ctx, key)
}

func (f *flakyBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.Backend.Set(ctx, key, value, ttl)
}

func (f *flakyBackend) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	return f.Backend.SetNX(ctx, key, value, ttl)
}

func (f *flakyBackend) Del(ctx context.Context, keys ...string) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.Backend.Del(ctx, keys...)
}

func (f *flakyBackend) HSet(ctx context.Context, key, field, value string) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.Backend.HSet(ctx, key, field, value)
}

func (f *flakyBackend) HGet(ctx context.Context, key, field string) (string, error) {
	if err := f.check(); err != nil {
		return "", err
	}
	return f.Backend.HGet(ctx, key, field)
}

func (f *flakyBackend) HMGet(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.Backend.HMGet(ctx, key, fields...)
}

func (f *flakyBackend) HDel(ctx context.Context, key string, fields ...string) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.Backend.HDel(ctx, key, fields...)
}

func (f *flakyBackend) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	return f.Backend.HIncrBy(ctx, key, field, delta)
}

func (f *flakyBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.Backend.HGetAll(ctx, key)
}

func (f *flakyBackend) SAdd(ctx context.Context, key string, members ...string) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.Backend.SAdd(ctx, key, members...)
}

func (f *flakyBackend) SRem(ctx context.Context, key string, members ...string) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.Backend.SRem(ctx, key, members...)
}

func (f *flakyBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.Backend.SMembers(ctx, key)
}

func (f *flakyBackend) SCard(ctx context.Context, key string) (int64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	return f.Backend.SCard(ctx, key)
}

func (f *flakyBackend) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.Backend.ZAdd(ctx, key, score, member)
}

func (f *flakyBackend) ZRem(ctx context.Context, key string, members ...string) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.Backend.ZRem(ctx, key, members...)
}

func (f *flakyBackend) ZCard(ctx context.Context, key string) (int64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	return f.Backend.ZCard(ctx, key)
}

func (f *flakyBackend) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.Backend.ZRange(ctx, key, start, stop)
}

func (f *flakyBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.Backend.Expire(ctx, key, ttl)
}

func (f *flakyBackend) Scan(ctx context.Context, pattern string) ([]string, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.Backend.Scan(ctx, pattern)
}

func TestFailoverWritesToFallbackWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	primary := &flakyBackend{Backend: kv.NewMemory()}
	fallback := kv.NewMemory()
	f := kv.NewFailover(primary, fallback, kv.DefaultFailoverConfig())

	before := testutil.ToFloat64(metrics.BackendFallbacks.WithLabelValues("hset"))

	primary.fail.Store(true)
	if err := f.HSet(ctx, "drawings", "p1", "stroke"); err != nil {
		t.Fatalf("HSet during outage = %v, want nil", err)
	}
	if v, err := fallback.HGet(ctx, "drawings", "p1"); err != nil || v != "stroke" {
		t.Errorf("fallback HGet = %q, %v; want stroke", v, err)
	}
	// Other parallel tests also fall back, so only a lower bound holds.
	if got := testutil.ToFloat64(metrics.BackendFallbacks.WithLabelValues("hset")) - before; got < 1 {
		t.Errorf("fallback counter delta = %v, want >= 1", got)
	}

	primary.fail.Store(false)
	if err := f.HSet(ctx, "drawings", "p2", "stroke2"); err != nil {
		t.Fatalf("HSet after recovery: %v", err)
	}
	if _, err := primary.Backend.HGet(ctx, "drawings", "p2"); err != nil {
		t.Errorf("primary should receive writes after recovery: %v", err)
	}
}

func TestFailoverBreakerOpens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	primary := &flakyBackend{Backend: kv.NewMemory()}
	primary.fail.Store(true)
	f := kv.NewFailover(primary, kv.NewMemory(), kv.FailoverConfig{
		FailureThreshold: 3,
		OpenTimeout:      time.Hour,
	})

	for i := 0; i < 10; i++ {
		if err := f.SAdd(ctx, "s", "m"); err != nil {
			t.Fatalf("SAdd #%d: %v", i, err)
		}
	}
	if got := primary.calls.Load(); got != 3 {
		t.Errorf("primary calls = %d, want 3 (breaker should stop further calls)", got)
	}
	if !f.Degraded() || f.State() != "open" {
		t.Errorf("State() = %s, want open", f.State())
	}
}

func TestFailoverNilIsNotAFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	primary := &flakyBackend{Backend: kv.NewMemory()}
	f := kv.NewFailover(primary, kv.NewMemory(), kv.FailoverConfig{FailureThreshold: 1, OpenTimeout: time.Hour})

	for i := 0; i < 5; i++ {
		if _, err := f.Get(ctx, "missing"); !errors.Is(err, kv.ErrNil) {
			t.Fatalf("Get(missing) = %v, want ErrNil", err)
		}
	}
	if f.Degraded() {
		t.Error("ErrNil must not trip the breaker")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	b, err := kv.Open(ctx, kv.Options{Kind: kv.KindMemory})
	if err != nil || b.Name() != "memory" {
		t.Fatalf("Open(memory) = %v, %v", b, err)
	}

	b, err = kv.Open(ctx, kv.Options{Kind: kv.KindBadger, BadgerInMemory: true})
	if err != nil {
		t.Fatalf("Open(badger): %v", err)
	}
	defer b.Close()
	if b.Name() != "failover(badger)" {
		t.Errorf("Name() = %q, want failover(badger)", b.Name())
	}

	if _, err := kv.Open(ctx, kv.Options{Kind: "etcd"}); err == nil {
		t.Error("Open(etcd) should fail")
	}
}

func TestOpenRedisUnreachableDegradesToMemory(t *testing.T) {
	t.Parallel()

	b, err := kv.Open(context.Background(), kv.Options{
		Kind:  kv.KindRedis,
		Redis: kv.RedisOptions{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b.Name() != "memory" {
		t.Errorf("Name() = %q, want memory", b.Name())
	}
}
