// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Point is a pixel-space coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned pixel-space rectangle. Edges are inclusive.
type Rect struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

// Expand grows r by margin on every side.
func (r Rect) Expand(margin float64) Rect {
	return Rect{MinX: r.MinX - margin, MinY: r.MinY - margin, MaxX: r.MaxX + margin, MaxY: r.MaxY + margin}
}

// StrokePath is a completed stroke in pixel space. It is never mutated
// after creation.
type StrokePath struct {
	ID            string  `json:"id"`
	OwnerClientID string  `json:"ownerClientId"`
	Color         string  `json:"color"`
	StrokeWidth   float64 `json:"strokeWidth"`
	Tool          string  `json:"tool,omitempty"`
	Points        []Point `json:"points"`
	CreatedAt     int64   `json:"createdAt"`
}

// NewStrokePath assigns an id and creation time to a stroke.
func NewStrokePath(owner, color string, width float64, tool string, pts []Point) *StrokePath {
	return &StrokePath{
		ID:            uuid.NewString(),
		OwnerClientID: owner,
		Color:         color,
		StrokeWidth:   width,
		Tool:          tool,
		Points:        pts,
		CreatedAt:     NowMillis(),
	}
}

// Bounds returns the axis-aligned bounding box of the stroke's points.
// ok is false for a stroke without points.
func (s *StrokePath) Bounds() (r Rect, ok bool) {
	if len(s.Points) == 0 {
		return Rect{}, false
	}
	r = Rect{MinX: s.Points[0].X, MinY: s.Points[0].Y, MaxX: s.Points[0].X, MaxY: s.Points[0].Y}
	for _, p := range s.Points[1:] {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	return r, true
}

// Viewport is the world-space rectangle a client currently shows. Zoom is
// informational and does not rescale the rectangle.
type Viewport struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width" validate:"gte=0,lte=1000000"`
	Height float64 `json:"height" validate:"gte=0,lte=1000000"`
	Zoom   float64 `json:"zoom,omitempty" validate:"gte=0"`
}

// Rect returns the viewport as a rectangle.
func (v Viewport) Rect() Rect {
	return Rect{MinX: v.X, MinY: v.Y, MaxX: v.X + v.Width, MaxY: v.Y + v.Height}
}

// Contains reports whether (x, y) lies in the viewport, edges inclusive.
func (v Viewport) Contains(x, y float64) bool {
	return v.Rect().Contains(Point{X: x, Y: y})
}

// NowMillis returns the current Unix time in milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
