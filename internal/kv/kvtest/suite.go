// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

// Package kvtest holds the behavior suite every kv.Backend must pass.
package kvtest

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/tomtom215/geocanvas/internal/kv"
)

// Factory returns a fresh, empty backend for one subtest.
type Factory func(t *testing.T) kv.Backend

// Run executes the conformance suite against backends built by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, ctx context.Context, b kv.Backend)
	}{
		{"Strings", testStrings},
		{"SetNX", testSetNX},
		{"Hashes", testHashes},
		{"HIncrBy", testHIncrBy},
		{"Sets", testSets},
		{"SortedSets", testSortedSets},
		{"ZRangeRanks", testZRangeRanks},
		{"Expire", testExpire},
		{"Scan", testScan},
		{"Del", testDel},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := newBackend(t)
			c.fn(t, context.Background(), b)
		})
	}
}

func testStrings(t *testing.T, ctx context.Context, b kv.Backend) {
	if _, err := b.Get(ctx, "missing"); !errors.Is(err, kv.ErrNil) {
		t.Fatalf("Get(missing) err = %v, want ErrNil", err)
	}
	if err := b.Set(ctx, "activity:1", `{"id":"1"}`, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := b.Get(ctx, "activity:1")
	if err != nil || got != `{"id":"1"}` {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if err := b.Set(ctx, "activity:1", "v2", 0); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if got, _ := b.Get(ctx, "activity:1"); got != "v2" {
		t.Errorf("Get after overwrite = %q, want v2", got)
	}
}

func testSetNX(t *testing.T, ctx context.Context, b kv.Backend) {
	ok, err := b.SetNX(ctx, "activity:default:dr5reg", "a1", 0)
	if err != nil || !ok {
		t.Fatalf("first SetNX = %v, %v; want true", ok, err)
	}
	ok, err = b.SetNX(ctx, "activity:default:dr5reg", "a2", 0)
	if err != nil || ok {
		t.Fatalf("second SetNX = %v, %v; want false", ok, err)
	}
	if got, _ := b.Get(ctx, "activity:default:dr5reg"); got != "a1" {
		t.Errorf("value = %q, want a1", got)
	}
}

func testHashes(t *testing.T, ctx context.Context, b kv.Backend) {
	if _, err := b.HGet(ctx, "drawings", "nope"); !errors.Is(err, kv.ErrNil) {
		t.Fatalf("HGet(missing) err = %v, want ErrNil", err)
	}
	for _, f := range []string{"p1", "p2", "p3"} {
		if err := b.HSet(ctx, "drawings", f, "data-"+f); err != nil {
			t.Fatalf("HSet: %v", err)
		}
	}
	got, err := b.HMGet(ctx, "drawings", "p1", "p3", "p9")
	if err != nil {
		t.Fatalf("HMGet: %v", err)
	}
	want := map[string]string{"p1": "data-p1", "p3": "data-p3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("HMGet = %v, want %v", got, want)
	}
	if err := b.HDel(ctx, "drawings", "p2"); err != nil {
		t.Fatalf("HDel: %v", err)
	}
	all, err := b.HGetAll(ctx, "drawings")
	if err != nil {
		t.Fatalf("HGetAll: %v", err)
	}
	if !reflect.DeepEqual(all, want) {
		t.Errorf("HGetAll = %v, want %v", all, want)
	}
	empty, err := b.HGetAll(ctx, "nothing")
	if err != nil || len(empty) != 0 {
		t.Errorf("HGetAll(missing) = %v, %v; want empty", empty, err)
	}
}

func testHIncrBy(t *testing.T, ctx context.Context, b kv.Backend) {
	for i := 1; i <= 3; i++ {
		n, err := b.HIncrBy(ctx, "geo:stats", "totalPaths", 1)
		if err != nil {
			t.Fatalf("HIncrBy: %v", err)
		}
		if n != int64(i) {
			t.Errorf("HIncrBy #%d = %d", i, n)
		}
	}
	n, _ := b.HIncrBy(ctx, "geo:stats", "totalPaths", -2)
	if n != 1 {
		t.Errorf("HIncrBy(-2) = %d, want 1", n)
	}
	if v, _ := b.HGet(ctx, "geo:stats", "totalPaths"); v != "1" {
		t.Errorf("stored value = %q, want 1", v)
	}
}

func testSets(t *testing.T, ctx context.Context, b kv.Backend) {
	if err := b.SAdd(ctx, "geo:geohash:gcp", "b", "a", "c", "a"); err != nil {
		t.Fatalf("SAdd: %v", err)
	}
	members, err := b.SMembers(ctx, "geo:geohash:gcp")
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	sort.Strings(members)
	if !reflect.DeepEqual(members, []string{"a", "b", "c"}) {
		t.Errorf("SMembers = %v", members)
	}
	if n, _ := b.SCard(ctx, "geo:geohash:gcp"); n != 3 {
		t.Errorf("SCard = %d, want 3", n)
	}
	if err := b.SRem(ctx, "geo:geohash:gcp", "a", "zz"); err != nil {
		t.Fatalf("SRem: %v", err)
	}
	if n, _ := b.SCard(ctx, "geo:geohash:gcp"); n != 2 {
		t.Errorf("SCard after SRem = %d, want 2", n)
	}
	if m, err := b.SMembers(ctx, "geo:geohash:none"); err != nil || len(m) != 0 {
		t.Errorf("SMembers(missing) = %v, %v", m, err)
	}
}

func testSortedSets(t *testing.T, ctx context.Context, b kv.Backend) {
	key := "chunk:0:0"
	_ = b.ZAdd(ctx, key, 300, "late")
	_ = b.ZAdd(ctx, key, 100, "early")
	_ = b.ZAdd(ctx, key, 200, "middle")
	if n, _ := b.ZCard(ctx, key); n != 3 {
		t.Fatalf("ZCard = %d, want 3", n)
	}
	all, err := b.ZRange(ctx, key, 0, -1)
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	if !reflect.DeepEqual(all, []string{"early", "middle", "late"}) {
		t.Errorf("ZRange(0,-1) = %v", all)
	}

	// Re-adding updates the score.
	_ = b.ZAdd(ctx, key, 50, "late")
	first, _ := b.ZRange(ctx, key, 0, 0)
	if !reflect.DeepEqual(first, []string{"late"}) {
		t.Errorf("ZRange(0,0) after rescore = %v, want [late]", first)
	}

	_ = b.ZRem(ctx, key, "late", "ghost")
	if n, _ := b.ZCard(ctx, key); n != 2 {
		t.Errorf("ZCard after ZRem = %d, want 2", n)
	}
}

func testZRangeRanks(t *testing.T, ctx context.Context, b kv.Backend) {
	key := "chunk:1:1"
	for i, m := range []string{"a", "b", "c", "d", "e"} {
		_ = b.ZAdd(ctx, key, float64(i), m)
	}
	tests := []struct {
		start, stop int64
		want        []string
	}{
		{0, 1, []string{"a", "b"}},
		{-2, -1, []string{"d", "e"}},
		{3, 100, []string{"d", "e"}},
		{4, 2, []string{}},
		{10, 20, []string{}},
	}
	for _, tt := range tests {
		got, err := b.ZRange(ctx, key, tt.start, tt.stop)
		if err != nil {
			t.Fatalf("ZRange(%d,%d): %v", tt.start, tt.stop, err)
		}
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ZRange(%d,%d) = %v, want %v", tt.start, tt.stop, got, tt.want)
		}
	}
}

func testExpire(t *testing.T, ctx context.Context, b kv.Backend) {
	// Expire on a missing key is a no-op.
	if err := b.Expire(ctx, "ghost", time.Second); err != nil {
		t.Fatalf("Expire(missing): %v", err)
	}

	_ = b.SAdd(ctx, "activity:geo:dr5r", "a1")
	_ = b.Set(ctx, "activity:a1", "{}", 0)
	if err := b.Expire(ctx, "activity:geo:dr5r", time.Second); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	// Members added after Expire share the key's deadline.
	_ = b.SAdd(ctx, "activity:geo:dr5r", "a2")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		n, err := b.SCard(ctx, "activity:geo:dr5r")
		if err != nil {
			t.Fatalf("SCard: %v", err)
		}
		if n == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if n, _ := b.SCard(ctx, "activity:geo:dr5r"); n != 0 {
		t.Errorf("SCard after expiry = %d, want 0", n)
	}
	if _, err := b.Get(ctx, "activity:a1"); err != nil {
		t.Errorf("keys without TTL must survive: %v", err)
	}
}

func testScan(t *testing.T, ctx context.Context, b kv.Backend) {
	_ = b.Set(ctx, "activity:a1", "{}", 0)
	_ = b.Set(ctx, "activity:a2", "{}", 0)
	_ = b.Set(ctx, "activity:canvas:a1", "blob", 0)
	_ = b.SAdd(ctx, "activity:geo:dr5r", "a1")
	_ = b.HSet(ctx, "activity:stats", "total", "2")
	_ = b.SAdd(ctx, "geo:geohash:gcpv", "p1")
	_ = b.SAdd(ctx, "geo:geohash:gcpvj", "p1")

	got, err := b.Scan(ctx, "activity:*")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	sort.Strings(got)
	want := []string{"activity:a1", "activity:a2", "activity:canvas:a1", "activity:geo:dr5r", "activity:stats"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Scan(activity:*) = %v, want %v", got, want)
	}

	got, _ = b.Scan(ctx, "geo:geohash:????")
	if !reflect.DeepEqual(got, []string{"geo:geohash:gcpv"}) {
		t.Errorf("Scan(geo:geohash:????) = %v", got)
	}
}

func testDel(t *testing.T, ctx context.Context, b kv.Backend) {
	_ = b.Set(ctx, "k1", "v", 0)
	_ = b.HSet(ctx, "k2", "f", "v")
	_ = b.ZAdd(ctx, "k3", 1, "m")
	if err := b.Del(ctx, "k1", "k2", "k3", "k4"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := b.Get(ctx, "k1"); !errors.Is(err, kv.ErrNil) {
		t.Errorf("k1 still present")
	}
	if m, _ := b.HGetAll(ctx, "k2"); len(m) != 0 {
		t.Errorf("k2 still present: %v", m)
	}
	if n, _ := b.ZCard(ctx, "k3"); n != 0 {
		t.Errorf("k3 still present")
	}
	// SetNX succeeds again once the key is gone.
	if ok, _ := b.SetNX(ctx, "k1", "again", 0); !ok {
		t.Error("SetNX after Del = false")
	}
}
