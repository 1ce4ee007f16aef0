// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

//go:build integration

package kv_test

import (
	"context"
	"testing"

	"github.com/tomtom215/geocanvas/internal/kv"
	"github.com/tomtom215/geocanvas/internal/kv/kvtest"
	"github.com/tomtom215/geocanvas/internal/testinfra"
)

func TestRedisBackendConformance(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx := context.Background()
	redisC, err := testinfra.NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, redisC.Container)

	db := 0
	kvtest.Run(t, func(t *testing.T) kv.Backend {
		// Each subtest gets its own logical database.
		db++
		b, err := kv.NewRedis(ctx, kv.RedisOptions{Addr: redisC.Addr, DB: db})
		if err != nil {
			t.Fatalf("NewRedis: %v", err)
		}
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}
