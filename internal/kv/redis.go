// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// RedisBackend is a Backend on a shared Redis server.
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedis connects and pings. The client is closed if the ping fails.
func NewRedis(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis %s: %v", ErrBackendUnavailable, opts.Addr, err)
	}
	return &RedisBackend{rdb: rdb}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func redisErr(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrNil
	}
	return err
}

// Name implements Backend.
func (r *RedisBackend) Name() string { return "redis" }

// Ping implements Backend.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close implements Backend.
func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}

// Get implements Backend.
func (r *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	return v, redisErr(err)
}

// Set implements Backend.
func (r *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// SetNX implements Backend.
func (r *RedisBackend) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, key, value, ttl).Result()
}

// Del implements Backend.
func (r *RedisBackend) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}

// HSet implements Backend.
func (r *RedisBackend) HSet(ctx context.Context, key, field, value string) error {
	return r.rdb.HSet(ctx, key, field, value).Err()
}

// HGet implements Backend.
func (r *RedisBackend) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := r.rdb.HGet(ctx, key, field).Result()
	return v, redisErr(err)
}

// HMGet implements Backend.
func (r *RedisBackend) HMGet(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	if len(fields) == 0 {
		return out, nil
	}
	vals, err := r.rdb.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[fields[i]] = s
		}
	}
	return out, nil
}

// HDel implements Backend.
func (r *RedisBackend) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return r.rdb.HDel(ctx, key, fields...).Err()
}

// HIncrBy implements Backend.
func (r *RedisBackend) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return r.rdb.HIncrBy(ctx, key, field, delta).Result()
}

// HGetAll implements Backend.
func (r *RedisBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.rdb.HGetAll(ctx, key).Result()
}

// SAdd implements Backend.
func (r *RedisBackend) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return r.rdb.SAdd(ctx, key, toArgs(members)...).Err()
}

// SRem implements Backend.
func (r *RedisBackend) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return r.rdb.SRem(ctx, key, toArgs(members)...).Err()
}

// SMembers implements Backend. Members are sorted to match the other backends.
func (r *RedisBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := r.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}

// SCard implements Backend.
func (r *RedisBackend) SCard(ctx context.Context, key string) (int64, error) {
	return r.rdb.SCard(ctx, key).Result()
}

// ZAdd implements Backend.
func (r *RedisBackend) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return r.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// ZRem implements Backend.
func (r *RedisBackend) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return r.rdb.ZRem(ctx, key, toArgs(members)...).Err()
}

// ZCard implements Backend.
func (r *RedisBackend) ZCard(ctx context.Context, key string) (int64, error) {
	return r.rdb.ZCard(ctx, key).Result()
}

// ZRange implements Backend.
func (r *RedisBackend) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.rdb.ZRange(ctx, key, start, stop).Result()
}

// Expire implements Backend.
func (r *RedisBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return r.rdb.Del(ctx, key).Err()
	}
	return r.rdb.Expire(ctx, key, ttl).Err()
}

// Scan implements Backend using SCAN, never KEYS.
func (r *RedisBackend) Scan(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	iter := r.rdb.Scan(ctx, 0, pattern, 500).Iterator()
	for iter.Next(ctx) {
		seen[iter.Val()] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func toArgs(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
