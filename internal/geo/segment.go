// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package geo

// SegmentIntersectsRect reports whether the segment (x1,y1)-(x2,y2) touches
// the closed rectangle [minX,maxX] x [minY,maxY]. Shared by the pixel-space
// chunk store and the geo index.
func SegmentIntersectsRect(x1, y1, x2, y2, minX, minY, maxX, maxY float64) bool {
	return segmentIntersectsRect(x1, y1, x2, y2, minX, minY, maxX, maxY)
}

// Liang-Barsky clipping.
func segmentIntersectsRect(x1, y1, x2, y2, minX, minY, maxX, maxY float64) bool {
	dx, dy := x2-x1, y2-y1
	t0, t1 := 0.0, 1.0

	clip := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return false
			}
			if r > t0 {
				t0 = r
			}
		} else {
			if r < t0 {
				return false
			}
			if r < t1 {
				t1 = r
			}
		}
		return true
	}

	return clip(-dx, x1-minX) &&
		clip(dx, maxX-x1) &&
		clip(-dy, y1-minY) &&
		clip(dy, maxY-y1) &&
		t0 <= t1
}
