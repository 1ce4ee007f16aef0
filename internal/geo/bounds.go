// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package geo

import (
	"errors"
	"math"
	"sort"
)

// DefaultSampleLattice is the minimum number of samples per axis used by
// CoveringHashes.
const DefaultSampleLattice = 4

// MaxSamplesPerAxis caps the lattice so a continent-sized box at a fine
// precision cannot produce millions of hashes.
const MaxSamplesPerAxis = 64

// ErrInvalidBounds is returned for boxes with min > max or out-of-range edges.
var ErrInvalidBounds = errors.New("geo: invalid bounds")

// Bounds is an axis-aligned lat/lng box. Boxes crossing the antimeridian are
// not supported; split them into two queries.
type Bounds struct {
	MinLat float64 `json:"minLat" validate:"gte=-90,lte=90"`
	MinLng float64 `json:"minLng" validate:"gte=-180,lte=180"`
	MaxLat float64 `json:"maxLat" validate:"gte=-90,lte=90,gtefield=MinLat"`
	MaxLng float64 `json:"maxLng" validate:"gte=-180,lte=180,gtefield=MinLng"`
}

// Validate checks edge ordering and ranges. NaN and infinite edges are
// rejected.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.MinLat, b.MinLng, b.MaxLat, b.MaxLng} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidBounds
		}
	}
	if b.MinLat > b.MaxLat || b.MinLng > b.MaxLng {
		return ErrInvalidBounds
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLng < -180 || b.MaxLng > 180 {
		return ErrInvalidBounds
	}
	return nil
}

// Contains reports whether p lies inside b, edges inclusive.
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// IntersectsPath reports whether any point of path lies in b or any segment
// of path crosses b.
func (b Bounds) IntersectsPath(path []Point) bool {
	for i, p := range path {
		if b.Contains(p) {
			return true
		}
		if i > 0 && segmentIntersectsRect(path[i-1].Lng, path[i-1].Lat, p.Lng, p.Lat,
			b.MinLng, b.MinLat, b.MaxLng, b.MaxLat) {
			return true
		}
	}
	return false
}

// BoundsAround returns the smallest box containing every point in pts.
func BoundsAround(pts []Point) Bounds {
	if len(pts) == 0 {
		return Bounds{}
	}
	b := Bounds{MinLat: pts[0].Lat, MaxLat: pts[0].Lat, MinLng: pts[0].Lng, MaxLng: pts[0].Lng}
	for _, p := range pts[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLng = math.Min(b.MinLng, p.Lng)
		b.MaxLng = math.Max(b.MaxLng, p.Lng)
	}
	return b
}

// CoveringHashes returns the sorted, de-duplicated geohashes at precision
// whose cells contain at least one point of a sample lattice laid over b.
//
// The lattice has at least lattice points per axis (DefaultSampleLattice when
// lattice < 2) and grows to one sample per cell width, capped at
// MaxSamplesPerAxis. Samples always include the four corners, so every cell
// the box overlaps is hit unless the cap is reached.
func CoveringHashes(b Bounds, precision, lattice int) []string {
	if lattice < 2 {
		lattice = DefaultSampleLattice
	}
	cellLat, cellLng := CellSize(precision)

	nLat := samplesFor(b.MaxLat-b.MinLat, cellLat, lattice)
	nLng := samplesFor(b.MaxLng-b.MinLng, cellLng, lattice)

	seen := make(map[string]struct{}, nLat*nLng)
	for i := 0; i < nLat; i++ {
		lat := lerp(b.MinLat, b.MaxLat, i, nLat)
		for j := 0; j < nLng; j++ {
			lng := lerp(b.MinLng, b.MaxLng, j, nLng)
			seen[Encode(lat, lng, precision)] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// AutoPrecision returns the finest precision in [minP, maxP] whose cells are
// at least one sample step wide for b, so a lattice-sized sampling covers b
// exactly. Degenerate (point) boxes return maxP.
func AutoPrecision(b Bounds, minP, maxP, lattice int) int {
	if lattice < 2 {
		lattice = DefaultSampleLattice
	}
	stepLat := (b.MaxLat - b.MinLat) / float64(lattice-1)
	stepLng := (b.MaxLng - b.MinLng) / float64(lattice-1)
	for p := maxP; p > minP; p-- {
		cellLat, cellLng := CellSize(p)
		if cellLat >= stepLat && cellLng >= stepLng {
			return p
		}
	}
	return minP
}

func samplesFor(span, cell float64, lattice int) int {
	if span <= 0 {
		return 1
	}
	n := int(math.Ceil(span/cell)) + 1
	if n < lattice {
		n = lattice
	}
	if n > MaxSamplesPerAxis {
		n = MaxSamplesPerAxis
	}
	return n
}

func lerp(lo, hi float64, i, n int) float64 {
	if n <= 1 {
		return lo
	}
	if i == n-1 {
		return hi
	}
	return lo + (hi-lo)*float64(i)/float64(n-1)
}

// FitPrecision returns the finest precision in [minP, requested] at which
// CoveringHashes for b stays under MaxSamplesPerAxis, i.e. still samples
// every overlapped cell. Returns minP when no level fits.
func FitPrecision(b Bounds, requested, minP int) int {
	for p := requested; p > minP; p-- {
		cellLat, cellLng := CellSize(p)
		if math.Ceil((b.MaxLat-b.MinLat)/cellLat)+1 <= MaxSamplesPerAxis &&
			math.Ceil((b.MaxLng-b.MinLng)/cellLng)+1 <= MaxSamplesPerAxis {
			return p
		}
	}
	return minP
}
