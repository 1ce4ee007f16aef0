// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package models

import (
	"github.com/tomtom215/geocanvas/internal/geo"
)

// GeoPath is a stroke anchored to real-world coordinates.
type GeoPath struct {
	ID         string      `json:"id"`
	ClientID   string      `json:"clientId,omitempty"`
	OwnerID    string      `json:"ownerId,omitempty"`
	ActivityID string      `json:"activityId,omitempty"`
	Color      string      `json:"color"`
	Width      float64     `json:"width"`
	Points     []geo.Point `json:"points"`
	Region     string      `json:"region,omitempty"`
	Geohash    string      `json:"geohash"`
	CreatedAt  int64       `json:"createdAt"`
}

// HeatmapCell is one density sample of the geo canvas.
type HeatmapCell struct {
	Geohash string  `json:"geohash"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Count   int64   `json:"count"`
}

// GeoStats are the global GeoIndex counters.
type GeoStats struct {
	TotalPaths int64            `json:"totalPaths"`
	Regions    map[string]int64 `json:"regions"`
}
