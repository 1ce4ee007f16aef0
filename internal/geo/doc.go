// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

// Package geo implements the geohash codec and the small amount of spherical
// geometry GeoCanvas needs.
//
// Geohashes interleave longitude and latitude bisection bits, longitude first,
// and pack five bits per base-32 character. Precision 5 cells are roughly
// 4.9km x 4.9km and precision 7 cells roughly 153m x 153m. Strings that share a
// prefix are spatially close, which is what the bucket indexes in geoindex and
// activity rely on.
//
// CoveringHashes turns a bounding box into the set of geohash cells that
// cover it by sampling a lattice of points across the box. The lattice grows
// with the box so that every cell the box overlaps is sampled at least once
// (up to MaxSamplesPerAxis per axis, beyond which coverage becomes approximate).
package geo
