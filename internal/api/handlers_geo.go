// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package api

import (
	"net/http"
	"time"
)

// GeoPaths returns geo paths inside the bounds query. precision=0 picks
// the precision from the size of the box.
func (h *Handler) GeoPaths(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	b, err := boundsParams(r, false)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	paths, err := h.Geo.Query(r.Context(), b, getIntParam(r, "precision", 0), getIntParam(r, "limit", 0))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, paths, len(paths), start)
}

// GeoHeatmap returns per-cell path counts.
func (h *Handler) GeoHeatmap(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cells, err := h.Geo.Heatmap(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, cells, len(cells), start)
}

// GeoStats returns path totals per region.
func (h *Handler) GeoStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	stats, err := h.Geo.Stats(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, stats, 0, start)
}
