// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/geocanvas/internal/models"
)

// Rooms lists live rooms.
func (h *Handler) Rooms(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rooms := h.Deps.Rooms.List()
	respondSuccess(w, http.StatusOK, rooms, len(rooms), start)
}

// Strokes returns the strokes of a pixel viewport: x, y, w, h.
func (h *Handler) Strokes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	vp := models.Viewport{}
	var err error
	if vp.X, err = floatParam(r, "x"); err != nil {
		respondDomainError(w, err)
		return
	}
	if vp.Y, err = floatParam(r, "y"); err != nil {
		respondDomainError(w, err)
		return
	}
	if vp.Width, err = floatParam(r, "w"); err != nil {
		respondDomainError(w, err)
		return
	}
	if vp.Height, err = floatParam(r, "h"); err != nil {
		respondDomainError(w, err)
		return
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		respondDomainError(w, models.NewValidationError("w", "width and height must be positive"))
		return
	}

	paths, err := h.Chunks.LoadViewport(r.Context(), vp.X, vp.Y, vp.Width, vp.Height)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, paths, len(paths), start)
}
