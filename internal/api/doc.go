// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

/*
Package api serves the GeoCanvas REST API and mounts the websocket endpoint.

Routing uses go-chi/chi with go-chi/cors and go-chi/httprate. Every request
passes through request ID logging, panic recovery, CORS and identity
resolution (auth.Resolver) before reaching a handler.

Endpoints:

	GET   /api/v1/health                             backend ping
	GET   /api/v1/status                             live counters and store sizes
	GET   /api/v1/rooms                              live rooms
	GET   /api/v1/canvas/strokes?x&y&w&h             strokes in a pixel viewport
	GET   /api/v1/geo/paths?minLat&minLng&maxLat&maxLng[&precision][&limit]
	GET   /api/v1/geo/heatmap                        path counts per cell
	GET   /api/v1/geo/stats                          path totals per region
	POST  /api/v1/activities                         create, owned by the caller
	POST  /api/v1/activities/default                 find or create at a location
	GET   /api/v1/activities?bounds                  most recently active first
	GET   /api/v1/activities/streets?bounds          grouped by street
	GET   /api/v1/activities/mine                    owned by the caller
	GET   /api/v1/activities/{id}
	PATCH /api/v1/activities/{id}/permissions        owner or moderators
	POST  /api/v1/activities/{id}/contributors/request
	GET   /api/v1/activities/{id}/canvas
	PUT   /api/v1/activities/{id}/canvas             contributors only
	GET   /metrics                                   Prometheus
	GET   /ws                                        websocket upgrade

Responses:

Every endpoint answers with models.APIResponse:

	{"status":"success","data":{...},"metadata":{"timestamp":"...","query_time_ms":1}}
	{"status":"error","error":{"code":"NOT_FOUND","message":"..."},"metadata":{...}}

Store errors map to statuses in respondDomainError: validation failures are
400 VALIDATION_ERROR, unknown ids 404 NOT_FOUND, permission refusals 403
FORBIDDEN, anything else 500 INTERNAL_ERROR with the cause logged only.

Rate Limits:

The API group uses the configured per-IP limit. Writes have a stricter
limit, health checks a looser one, and websocket upgrades their own.
Rejections are counted in geocanvas_api_rate_limit_hits_total{surface="http"}.
*/
package api
