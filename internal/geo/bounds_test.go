// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package geo

import (
	"errors"
	"math"
	"testing"
)

func TestCoveringHashesContainsEveryOverlappedCell(t *testing.T) {
	t.Parallel()

	b := Bounds{MinLat: 51.40, MinLng: -0.30, MaxLat: 51.60, MaxLng: 0.05}
	for _, precision := range []int{3, 4, 5} {
		got := make(map[string]bool)
		for _, h := range CoveringHashes(b, precision, 3) {
			got[h] = true
		}

		// Walk the box at a step far finer than any cell; every hash seen must be covered.
		cellLat, cellLng := CellSize(precision)
		stepLat, stepLng := cellLat/4, cellLng/4
		for lat := b.MinLat; lat <= b.MaxLat; lat += math.Min(stepLat, (b.MaxLat-b.MinLat)/50) {
			for lng := b.MinLng; lng <= b.MaxLng; lng += math.Min(stepLng, (b.MaxLng-b.MinLng)/50) {
				h := Encode(lat, lng, precision)
				if !got[h] {
					t.Fatalf("precision %d: cell %q containing (%v,%v) not covered", precision, h, lat, lng)
				}
			}
		}
	}
}

func TestCoveringHashesPointBox(t *testing.T) {
	t.Parallel()

	b := Bounds{MinLat: 51.5, MinLng: -0.1, MaxLat: 51.5, MaxLng: -0.1}
	got := CoveringHashes(b, 7, 4)
	if len(got) != 1 || got[0] != Encode(51.5, -0.1, 7) {
		t.Errorf("CoveringHashes(point) = %v, want [%s]", got, Encode(51.5, -0.1, 7))
	}
}

func TestAutoPrecision(t *testing.T) {
	t.Parallel()

	small := Bounds{MinLat: 51.499, MinLng: -0.101, MaxLat: 51.501, MaxLng: -0.099}
	if got := AutoPrecision(small, 3, 7, 4); got != 7 {
		t.Errorf("AutoPrecision(small) = %d, want 7", got)
	}
	city := Bounds{MinLat: 51.3, MinLng: -0.5, MaxLat: 51.7, MaxLng: 0.3}
	got := AutoPrecision(city, 3, 7, 4)
	if got < 3 || got > 5 {
		t.Errorf("AutoPrecision(city) = %d, want between 3 and 5", got)
	}
	if n := len(CoveringHashes(city, got, 4)); n > 16 {
		t.Errorf("auto precision produced %d hashes, want at most 16", n)
	}
}

func TestFitPrecision(t *testing.T) {
	t.Parallel()

	world := Bounds{MinLat: -60, MinLng: -170, MaxLat: 70, MaxLng: 170}
	if got := FitPrecision(world, 7, 3); got != 3 {
		t.Errorf("FitPrecision(world) = %d, want 3", got)
	}
	tiny := Bounds{MinLat: 1, MinLng: 1, MaxLat: 1.001, MaxLng: 1.001}
	if got := FitPrecision(tiny, 7, 3); got != 7 {
		t.Errorf("FitPrecision(tiny) = %d, want 7", got)
	}
}

func TestBoundsValidate(t *testing.T) {
	t.Parallel()

	bad := []Bounds{
		{MinLat: 10, MaxLat: 5, MinLng: 0, MaxLng: 1},
		{MinLat: 0, MaxLat: 1, MinLng: 5, MaxLng: 1},
		{MinLat: -91, MaxLat: 1, MinLng: 0, MaxLng: 1},
		{MinLat: math.NaN(), MaxLat: 1, MinLng: 0, MaxLng: 1},
		{MinLat: 0, MaxLat: 1, MinLng: 0, MaxLng: math.NaN()},
		{MinLat: 0, MaxLat: math.Inf(1), MinLng: 0, MaxLng: 1},
	}
	for _, b := range bad {
		if !errors.Is(b.Validate(), ErrInvalidBounds) {
			t.Errorf("Validate(%+v) should fail", b)
		}
	}
	if err := (Bounds{MinLat: -1, MaxLat: 1, MinLng: -1, MaxLng: 1}).Validate(); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
}

func TestIntersectsPath(t *testing.T) {
	t.Parallel()

	b := Bounds{MinLat: 0, MinLng: 0, MaxLat: 1, MaxLng: 1}
	tests := []struct {
		name string
		path []Point
		want bool
	}{
		{"point inside", []Point{{Lat: 0.5, Lng: 0.5}}, true},
		{"point outside", []Point{{Lat: 2, Lng: 2}}, false},
		{"segment crossing", []Point{{Lat: 0.5, Lng: -1}, {Lat: 0.5, Lng: 2}}, true},
		{"segment passing by", []Point{{Lat: 2, Lng: -1}, {Lat: 2, Lng: 2}}, false},
		{"on edge", []Point{{Lat: 1, Lng: 1}}, true},
	}
	for _, tt := range tests {
		if got := b.IntersectsPath(tt.path); got != tt.want {
			t.Errorf("%s: IntersectsPath = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSegmentIntersectsRect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		x1, y1, x2, y2 float64
		want           bool
	}{
		{"diagonal through", -5, -5, 15, 15, true},
		{"fully inside", 2, 2, 3, 3, true},
		{"left of box", -5, 0, -1, 10, false},
		{"touches corner", -1, 1, 1, -1, true},
		{"vertical above", 5, 11, 5, 20, false},
	}
	for _, tt := range tests {
		if got := SegmentIntersectsRect(tt.x1, tt.y1, tt.x2, tt.y2, 0, 0, 10, 10); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHaversineAndRadius(t *testing.T) {
	t.Parallel()

	london := Point{Lat: 51.5074, Lng: -0.1278}
	paris := Point{Lat: 48.8566, Lng: 2.3522}
	d := Haversine(london, paris)
	if d < 340000 || d > 350000 {
		t.Errorf("Haversine(london, paris) = %.0fm, want ~343km", d)
	}

	near := Point{Lat: 40.0, Lng: -73.0}
	within := Point{Lat: 40.003, Lng: -73.0} // ~333m north
	far := Point{Lat: 40.01, Lng: -73.0}     // ~1.1km north
	if !IsWithinRadius(near, within, 0) {
		t.Error("333m should be within the default 500m radius")
	}
	if IsWithinRadius(near, far, 0) {
		t.Error("1.1km should not be within the default 500m radius")
	}
	if !IsWithinRadius(near, far, 2000) {
		t.Error("1.1km should be within a 2km radius")
	}
}

func TestCentroid(t *testing.T) {
	t.Parallel()

	c := Centroid([]Point{{Lat: 0, Lng: 0}, {Lat: 2, Lng: 4}})
	if c.Lat != 1 || c.Lng != 2 {
		t.Errorf("Centroid = %+v, want {1 2}", c)
	}
	if (Centroid(nil) != Point{}) {
		t.Error("Centroid(nil) should be zero")
	}
}
