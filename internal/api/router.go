// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/geocanvas/internal/auth"
	"github.com/tomtom215/geocanvas/internal/middleware"
)

// Router wires handlers, middleware and the websocket endpoint.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	resolver      *auth.Resolver
	ws            http.Handler
}

// NewRouter creates a router. ws serves /ws and may be nil.
func NewRouter(handler *Handler, mw *ChiMiddleware, resolver *auth.Resolver, ws http.Handler) *Router {
	return &Router{handler: handler, chiMiddleware: mw, resolver: resolver, ws: ws}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(router.resolver.Middleware)

	// ========================
	// Health Endpoints
	// ========================
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitHealth))
		r.Use(APISecurityHeaders())
		r.Get("/", router.handler.Health)
	})

	// ========================
	// Core API Endpoints
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics)
		r.Use(middleware.Compress(middleware.DefaultMinCompressSize))

		r.Get("/status", router.handler.Status)
		r.Get("/rooms", router.handler.Rooms)
		r.Get("/canvas/strokes", router.handler.Strokes)

		r.Route("/geo", func(r chi.Router) {
			r.Get("/paths", router.handler.GeoPaths)
			r.Get("/heatmap", router.handler.GeoHeatmap)
			r.Get("/stats", router.handler.GeoStats)
		})

		r.Route("/activities", func(r chi.Router) {
			r.Get("/", router.handler.QueryActivities)
			r.Get("/streets", router.handler.ActivityStreets)
			r.Get("/mine", router.handler.MyActivities)
			r.Get("/{id}", router.handler.GetActivity)
			r.Get("/{id}/canvas", router.handler.GetCanvas)

			r.Group(func(r chi.Router) {
				r.Use(router.chiMiddleware.RateLimitCustom(RateLimitWrite))
				r.Post("/", router.handler.CreateActivity)
				r.Post("/default", router.handler.DefaultActivity)
				r.Patch("/{id}/permissions", router.handler.UpdatePermissions)
				r.Post("/{id}/contributors/request", router.handler.RequestContribution)
				r.Put("/{id}/canvas", router.handler.PutCanvas)
			})
		})
	})

	// ========================
	// Metrics and WebSocket
	// ========================
	r.Handle("/metrics", promhttp.Handler())
	if router.ws != nil {
		r.With(router.chiMiddleware.RateLimitCustom(RateLimitWebSocket)).Get("/ws", router.ws.ServeHTTP)
	}

	return r
}
