// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package geoindex

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/tomtom215/geocanvas/internal/geo"
	"github.com/tomtom215/geocanvas/internal/kv"
	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b kv.Backend)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		fn(t, kv.NewMemory())
	})
	t.Run("badger", func(t *testing.T) {
		t.Parallel()
		b, err := kv.OpenBadger("", true)
		if err != nil {
			t.Fatalf("OpenBadger: %v", err)
		}
		t.Cleanup(func() { _ = b.Close() })
		fn(t, b)
	})
}

func path(id string, pts ...geo.Point) *models.GeoPath {
	return &models.GeoPath{ID: id, Color: "#ff0000", Width: 3, Points: pts}
}

func around(p geo.Point, d float64) geo.Bounds {
	return geo.Bounds{MinLat: p.Lat - d, MinLng: p.Lng - d, MaxLat: p.Lat + d, MaxLng: p.Lng + d}
}

func ids(paths []*models.GeoPath) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.ID
	}
	return out
}

func TestQueryFindsPathAtCoarseAndFinePrecision(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b kv.Backend) {
		ctx := context.Background()
		ix := New(b, DefaultConfig())
		london := geo.Point{Lat: 51.5, Lng: -0.1}

		p := path("", london, geo.Point{Lat: 51.5002, Lng: -0.1003})
		if err := ix.Save(ctx, p); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if p.ID == "" || p.Geohash != "gcpuvxr" {
			t.Fatalf("Save did not fill id/geohash: id=%q geohash=%q", p.ID, p.Geohash)
		}

		tests := []struct {
			name      string
			bounds    geo.Bounds
			precision int
		}{
			{"precision 5", around(london, 0.05), 5},
			{"precision 7", around(london, 0.001), 7},
			{"auto", around(london, 0.01), 0},
		}
		for _, tt := range tests {
			got, err := ix.Query(ctx, tt.bounds, tt.precision, 0)
			if err != nil {
				t.Fatalf("%s: Query: %v", tt.name, err)
			}
			if len(got) != 1 || got[0].ID != p.ID {
				t.Errorf("%s: Query = %v, want [%s]", tt.name, ids(got), p.ID)
			}
		}
	})
}

func TestQueryPrecisionNeverExceedsExactCoverage(t *testing.T) {
	t.Parallel()

	ix := New(kv.NewMemory(), DefaultConfig())
	wide := geo.Bounds{MinLat: 40, MinLng: -80, MaxLat: 50, MaxLng: -70}
	if got := ix.QueryPrecision(wide, 7); got >= 7 {
		t.Errorf("QueryPrecision(wide, 7) = %d, want coarser than 7", got)
	}
	if got := ix.QueryPrecision(around(geo.Point{Lat: 1, Lng: 1}, 0.0005), 7); got != 7 {
		t.Errorf("QueryPrecision(tiny, 7) = %d, want 7", got)
	}
	if got := ix.QueryPrecision(wide, 12); got > ix.Config().MaxPrecision {
		t.Errorf("QueryPrecision clamps to max precision, got %d", got)
	}
}

func TestQueryFiltersByGeometry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b kv.Backend) {
		ctx := context.Background()
		ix := New(b, DefaultConfig())

		// Same precision-5 cell, only "inside" is in the small box.
		inside := path("inside", geo.Point{Lat: 51.5, Lng: -0.1})
		outside := path("outside", geo.Point{Lat: 51.51, Lng: -0.12})
		for _, p := range []*models.GeoPath{inside, outside} {
			if err := ix.Save(ctx, p); err != nil {
				t.Fatal(err)
			}
		}

		got, err := ix.Query(ctx, around(geo.Point{Lat: 51.5, Lng: -0.1}, 0.002), 5, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].ID != "inside" {
			t.Errorf("Query = %v, want [inside]", ids(got))
		}
	})
}

func TestQueryLimitAndOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b kv.Backend) {
		ctx := context.Background()
		ix := New(b, DefaultConfig())
		for i, id := range []string{"c", "a", "b"} {
			p := path(id, geo.Point{Lat: 10, Lng: 10})
			p.CreatedAt = int64(3 - i)
			if err := ix.Save(ctx, p); err != nil {
				t.Fatal(err)
			}
		}

		all, err := ix.Query(ctx, around(geo.Point{Lat: 10, Lng: 10}, 0.01), 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		if got := ids(all); len(got) != 3 || got[0] != "b" || got[1] != "a" || got[2] != "c" {
			t.Errorf("Query order = %v, want [b a c]", got)
		}

		limited, err := ix.Query(ctx, around(geo.Point{Lat: 10, Lng: 10}, 0.01), 0, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(limited) != 2 {
			t.Errorf("len(Query limit 2) = %d, want 2", len(limited))
		}
	})
}

func TestQueryEmptyArea(t *testing.T) {
	t.Parallel()

	got, err := New(kv.NewMemory(), DefaultConfig()).Query(context.Background(), around(geo.Point{Lat: -33.9, Lng: 151.2}, 0.1), 5, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Query = %v, want empty", ids(got))
	}
}

func TestQueryRejectsInvalidBounds(t *testing.T) {
	t.Parallel()

	_, err := New(kv.NewMemory(), DefaultConfig()).Query(context.Background(), geo.Bounds{MinLat: 10, MaxLat: 5}, 5, 10)
	if !models.IsValidationError(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestSaveRejectsInvalidPaths(t *testing.T) {
	t.Parallel()

	ix := New(kv.NewMemory(), DefaultConfig())
	tests := []struct {
		name string
		p    *models.GeoPath
	}{
		{"nil", nil},
		{"no points", path("p")},
		{"latitude out of range", path("p", geo.Point{Lat: 91, Lng: 0})},
		{"longitude out of range", path("p", geo.Point{Lat: 0, Lng: -181})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ix.Save(context.Background(), tt.p); !models.IsValidationError(err) {
				t.Errorf("Save err = %v, want ValidationError", err)
			}
		})
	}
}

func TestSaveIndexesEveryPrecision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := kv.NewMemory()
	ix := New(b, DefaultConfig())
	if err := ix.Save(ctx, path("p", geo.Point{Lat: 51.5, Lng: -0.1})); err != nil {
		t.Fatal(err)
	}

	for _, prefix := range []string{"gcp", "gcpu", "gcpuv", "gcpuvx", "gcpuvxr"} {
		members, err := b.SMembers(ctx, BucketKey(prefix))
		if err != nil || len(members) != 1 || members[0] != "p" {
			t.Errorf("bucket %s = %v, %v; want [p]", prefix, members, err)
		}
		if ttl := b.TTL(BucketKey(prefix)); ttl <= 0 {
			t.Errorf("bucket %s has no ttl", prefix)
		}
	}
	if members, _ := b.SMembers(ctx, BucketKey("gc")); len(members) != 0 {
		t.Errorf("precision 2 bucket should not exist, got %v", members)
	}
}

func TestHeatmap(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b kv.Backend) {
		ctx := context.Background()
		ix := New(b, DefaultConfig())

		pts := []geo.Point{
			{Lat: 51.5, Lng: -0.1},
			{Lat: 51.5001, Lng: -0.1001},
			{Lat: 51.501, Lng: -0.1002},
			{Lat: 40.7128, Lng: -74.006},
		}
		for _, p := range pts {
			if err := ix.Save(ctx, path("", p)); err != nil {
				t.Fatal(err)
			}
		}

		cells, err := ix.Heatmap(ctx)
		if err != nil {
			t.Fatalf("Heatmap: %v", err)
		}
		if len(cells) != 2 {
			t.Fatalf("len(Heatmap) = %d, want 2: %+v", len(cells), cells)
		}
		if cells[0].Geohash != "gcpu" || cells[0].Count != 3 {
			t.Errorf("cells[0] = %+v, want gcpu x3", cells[0])
		}
		if cells[1].Geohash != "dr5r" || cells[1].Count != 1 {
			t.Errorf("cells[1] = %+v, want dr5r x1", cells[1])
		}
		if !around(geo.Point{Lat: 51.5, Lng: -0.1}, 0.5).Contains(geo.Point{Lat: cells[0].Lat, Lng: cells[0].Lng}) {
			t.Errorf("heatmap center %v,%v is not near London", cells[0].Lat, cells[0].Lng)
		}
	})
}

func TestStats(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b kv.Backend) {
		ctx := context.Background()
		ix := New(b, DefaultConfig())

		for _, region := range []string{"uk", "uk", "", "us"} {
			p := path("", geo.Point{Lat: 1, Lng: 1})
			p.Region = region
			if err := ix.Save(ctx, p); err != nil {
				t.Fatal(err)
			}
		}

		stats, err := ix.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if stats.TotalPaths != 4 {
			t.Errorf("TotalPaths = %d, want 4", stats.TotalPaths)
		}
		if stats.Regions["uk"] != 2 || stats.Regions["us"] != 1 || len(stats.Regions) != 2 {
			t.Errorf("Regions = %v, want uk:2 us:1", stats.Regions)
		}
	})
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()
	if _, err := New(kv.NewMemory(), DefaultConfig()).Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
