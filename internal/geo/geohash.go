// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package geo

import (
	"errors"
	"math"
	"strings"
)

const base32Alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// MaxPrecision is the longest geohash Encode produces.
const MaxPrecision = 12

// ErrInvalidGeohash is returned by Decode for empty strings or characters
// outside the geohash alphabet.
var ErrInvalidGeohash = errors.New("geo: invalid geohash")

var decodeTable = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(base32Alphabet); i++ {
		t[base32Alphabet[i]] = int8(i)
	}
	return t
}()

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Valid reports whether p is a finite coordinate within WGS84 ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Cell is the rectangle a geohash denotes.
type Cell struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Center returns the midpoint of the cell.
func (c Cell) Center() Point {
	return Point{Lat: (c.MinLat + c.MaxLat) / 2, Lng: (c.MinLng + c.MaxLng) / 2}
}

// Contains reports whether p lies in the cell. The max edges are inclusive
// only at the poles and the antimeridian, matching how Encode assigns points.
func (c Cell) Contains(p Point) bool {
	latOK := p.Lat >= c.MinLat && (p.Lat < c.MaxLat || (c.MaxLat == 90 && p.Lat == 90))
	lngOK := p.Lng >= c.MinLng && (p.Lng < c.MaxLng || (c.MaxLng == 180 && p.Lng == 180))
	return latOK && lngOK
}

// Encode returns the geohash of (lat, lng) with precision characters.
// Precision is clamped to [1, MaxPrecision]; coordinates are clamped to the
// valid range.
func Encode(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = 1
	}
	if precision > MaxPrecision {
		precision = MaxPrecision
	}
	lat = clamp(lat, -90, 90)
	lng = clamp(lng, -180, 180)

	latLo, latHi := -90.0, 90.0
	lngLo, lngHi := -180.0, 180.0

	var sb strings.Builder
	sb.Grow(precision)

	even := true
	bit, ch := 0, 0
	for sb.Len() < precision {
		if even {
			mid := (lngLo + lngHi) / 2
			if lng >= mid {
				ch = ch<<1 | 1
				lngLo = mid
			} else {
				ch <<= 1
				lngHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if lat >= mid {
				ch = ch<<1 | 1
				latLo = mid
			} else {
				ch <<= 1
				latHi = mid
			}
		}
		even = !even

		bit++
		if bit == 5 {
			sb.WriteByte(base32Alphabet[ch])
			bit, ch = 0, 0
		}
	}
	return sb.String()
}

// DecodeCell returns the rectangle hash denotes.
func DecodeCell(hash string) (Cell, error) {
	if hash == "" {
		return Cell{}, ErrInvalidGeohash
	}
	c := Cell{MinLat: -90, MaxLat: 90, MinLng: -180, MaxLng: 180}

	even := true
	for i := 0; i < len(hash); i++ {
		v := decodeTable[hash[i]]
		if v < 0 {
			return Cell{}, ErrInvalidGeohash
		}
		for mask := 16; mask > 0; mask >>= 1 {
			on := int(v)&mask != 0
			if even {
				mid := (c.MinLng + c.MaxLng) / 2
				if on {
					c.MinLng = mid
				} else {
					c.MaxLng = mid
				}
			} else {
				mid := (c.MinLat + c.MaxLat) / 2
				if on {
					c.MinLat = mid
				} else {
					c.MaxLat = mid
				}
			}
			even = !even
		}
	}
	return c, nil
}

// Decode returns the center point of hash.
func Decode(hash string) (Point, error) {
	c, err := DecodeCell(hash)
	if err != nil {
		return Point{}, err
	}
	return c.Center(), nil
}

// CellSize returns the latitude and longitude extent, in degrees, of a cell
// at precision.
func CellSize(precision int) (latDeg, lngDeg float64) {
	bits := 5 * precision
	lngBits := (bits + 1) / 2
	latBits := bits / 2
	return 180 / math.Pow(2, float64(latBits)), 360 / math.Pow(2, float64(lngBits))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
