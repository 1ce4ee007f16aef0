// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/geocanvas/internal/activity"
	"github.com/tomtom215/geocanvas/internal/auth"
	"github.com/tomtom215/geocanvas/internal/canvas"
	"github.com/tomtom215/geocanvas/internal/chunkstore"
	"github.com/tomtom215/geocanvas/internal/geoindex"
	"github.com/tomtom215/geocanvas/internal/kv"
	"github.com/tomtom215/geocanvas/internal/room"
)

// Deps are the stores and services the handlers read from.
type Deps struct {
	Canvas     *canvas.Service
	Rooms      *room.Registry
	Chunks     *chunkstore.Store
	Geo        *geoindex.Index
	Activities *activity.Store
	Backend    kv.Backend
	// Version is reported by /status.
	Version string
}

// Handler serves the REST API.
type Handler struct {
	Deps
	startTime time.Time
}

// NewHandler creates a handler over deps.
func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps, startTime: time.Now()}
}

// identity returns the caller identity stored by auth.Resolver.
func identity(r *http.Request) string {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return ""
	}
	return id.ID
}

// degradable is implemented by backends that can fall back to memory.
type degradable interface {
	Degraded() bool
}
