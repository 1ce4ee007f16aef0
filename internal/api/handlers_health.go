// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/geocanvas/internal/models"
)

// healthTimeout bounds the backend ping of a health check.
const healthTimeout = 2 * time.Second

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Backend  string `json:"backend"`
	Degraded bool   `json:"degraded"`
	Uptime   string `json:"uptime"`
}

// StatusResponse is the body of /status.
type StatusResponse struct {
	Version           string `json:"version,omitempty"`
	Uptime            string `json:"uptime"`
	UptimeSeconds     int64  `json:"uptimeSeconds"`
	Backend           string `json:"backend"`
	Degraded          bool   `json:"degraded"`
	Clients           int    `json:"clients"`
	Rooms             int    `json:"rooms"`
	Strokes           int64  `json:"strokes"`
	GeoPaths          int64  `json:"geoPaths"`
	Activities        int64  `json:"activities"`
	DefaultActivities int64  `json:"defaultActivities"`
}

func (h *Handler) degraded() bool {
	d, ok := h.Backend.(degradable)
	return ok && d.Degraded()
}

// Health pings the storage backend. A degraded backend still answers 200
// because the server keeps serving from memory; an unreachable one is 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	resp := HealthResponse{
		Status:   "healthy",
		Backend:  h.Backend.Name(),
		Degraded: h.degraded(),
		Uptime:   time.Since(h.startTime).Round(time.Second).String(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := h.Backend.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status:   "error",
			Data:     resp,
			Metadata: models.Metadata{Timestamp: time.Now(), QueryTimeMS: time.Since(start).Milliseconds()},
			Error:    &models.APIError{Code: ErrCodeUnavailable, Message: "storage backend unreachable"},
		})
		return
	}
	if resp.Degraded {
		resp.Status = "degraded"
	}
	respondSuccess(w, http.StatusOK, resp, 0, start)
}

// Status reports live counters and store sizes.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	uptime := time.Since(h.startTime)

	resp := StatusResponse{
		Version:       h.Version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		Backend:       h.Backend.Name(),
		Degraded:      h.degraded(),
	}

	stats := h.Canvas.Stats()
	resp.Clients = stats.Clients
	resp.Rooms = stats.Rooms

	strokes, err := h.Chunks.Count(ctx)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	resp.Strokes = strokes

	geoStats, err := h.Geo.Stats(ctx)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	resp.GeoPaths = geoStats.TotalPaths

	activityStats, err := h.Activities.Stats(ctx)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	resp.Activities = activityStats.TotalActivities
	resp.DefaultActivities = activityStats.DefaultActivities

	respondSuccess(w, http.StatusOK, resp, 0, start)
}
