// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocanvas_api_requests_total",
			Help: "Total number of REST API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geocanvas_api_request_duration_seconds",
			Help:    "REST API request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geocanvas_api_active_requests",
			Help: "Number of REST API requests currently being served",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocanvas_api_rate_limit_hits_total",
			Help: "Total number of requests rejected by a rate limiter",
		},
		[]string{"surface"}, // "http", "websocket"
	)

	// Storage Metrics
	StorageOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geocanvas_storage_operation_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	StorageOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocanvas_storage_operation_errors_total",
			Help: "Total number of failed store operations",
		},
		[]string{"store", "operation"},
	)

	// BackendBreakerState is 0=closed, 1=half-open, 2=open.
	BackendBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geocanvas_backend_breaker_state",
			Help: "Circuit breaker state of the durable storage backend (0=closed, 1=half-open, 2=open)",
		},
		[]string{"backend"},
	)

	BackendFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocanvas_backend_fallback_total",
			Help: "Total number of storage calls served by the in-memory fallback",
		},
		[]string{"operation"},
	)

	// Drawing Metrics
	StrokesSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geocanvas_strokes_saved_total",
			Help: "Total number of strokes persisted to the chunk store",
		},
	)

	StrokesEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geocanvas_strokes_evicted_total",
			Help: "Total number of strokes evicted from full chunks",
		},
	)

	StrokesLoaded = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geocanvas_viewport_strokes_loaded",
			Help:    "Number of strokes returned per viewport load",
			Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000},
		},
	)

	GeoPathsSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geocanvas_geo_paths_saved_total",
			Help: "Total number of geo-anchored paths persisted",
		},
	)

	GeoQueryCells = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geocanvas_geo_query_cells",
			Help:    "Number of geohash cells scanned per bounds query",
			Buckets: []float64{1, 4, 16, 64, 256, 1024, 4096},
		},
	)

	// Activity Metrics
	ActivitiesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocanvas_activities_created_total",
			Help: "Total number of activities created",
		},
		[]string{"kind"}, // "default", "user"
	)

	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocanvas_permission_checks_total",
			Help: "Total number of contribution permission checks by outcome",
		},
		[]string{"result"}, // "allowed", "denied"
	)

	PermissionFailOpen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geocanvas_permission_fail_open_total",
			Help: "Total number of permission checks allowed because the activity could not be read",
		},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocanvas_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocanvas_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geocanvas_cache_entries",
			Help: "Current number of cache entries",
		},
		[]string{"cache"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geocanvas_websocket_connections",
			Help: "Current number of open WebSocket connections",
		},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocanvas_websocket_messages_received_total",
			Help: "Total number of inbound WebSocket messages by type",
		},
		[]string{"type"},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geocanvas_websocket_messages_sent_total",
			Help: "Total number of outbound WebSocket frames",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geocanvas_websocket_messages_dropped_total",
			Help: "Total number of outbound frames dropped because a client buffer was full",
		},
	)

	WSMalformedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geocanvas_websocket_malformed_messages_total",
			Help: "Total number of inbound messages that failed to decode or validate",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocanvas_websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	BroadcastFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geocanvas_broadcast_fanout",
			Help:    "Number of recipients per broadcast",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 500},
		},
	)

	// Room Metrics
	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geocanvas_rooms_active",
			Help: "Current number of rooms held in memory",
		},
	)

	RoomMembers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geocanvas_room_members",
			Help: "Current number of room memberships across all rooms",
		},
	)

	RoomsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geocanvas_rooms_expired_total",
			Help: "Total number of idle empty rooms removed by the sweeper",
		},
	)

	// Relay Metrics
	RelayPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geocanvas_relay_published_total",
			Help: "Total number of events published to peer instances",
		},
	)

	RelayReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geocanvas_relay_received_total",
			Help: "Total number of events received from peer instances",
		},
	)

	RelayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocanvas_relay_errors_total",
			Help: "Total number of relay failures",
		},
		[]string{"stage"}, // "publish", "decode"
	)

	// Application Info
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geocanvas_app_info",
			Help: "Application build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geocanvas_app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordRateLimitHit counts a request rejected by a limiter on surface.
func RecordRateLimitHit(surface string) {
	APIRateLimitHits.WithLabelValues(surface).Inc()
}

// RecordStorageOp records the latency and outcome of a store operation.
func RecordStorageOp(store, operation string, duration time.Duration, err error) {
	StorageOpDuration.WithLabelValues(store, operation).Observe(duration.Seconds())
	if err != nil {
		StorageOpErrors.WithLabelValues(store, operation).Inc()
	}
}

// SetBackendBreakerState exports the gobreaker state ordinal for backend.
func SetBackendBreakerState(backend string, state int) {
	BackendBreakerState.WithLabelValues(backend).Set(float64(state))
}

// RecordBackendFallback counts a storage call replayed on the memory fallback.
func RecordBackendFallback(operation string) {
	BackendFallbacks.WithLabelValues(operation).Inc()
}

// RecordStrokeSaved counts one persisted stroke and the strokes it evicted.
func RecordStrokeSaved(evicted int) {
	StrokesSaved.Inc()
	if evicted > 0 {
		StrokesEvicted.Add(float64(evicted))
	}
}

// RecordPermissionCheck records a contribution check outcome.
func RecordPermissionCheck(allowed, failOpen bool) {
	if failOpen {
		PermissionFailOpen.Inc()
	}
	if allowed {
		PermissionChecks.WithLabelValues("allowed").Inc()
	} else {
		PermissionChecks.WithLabelValues("denied").Inc()
	}
}

// RecordCacheLookup records a hit or miss on the named cache.
func RecordCacheLookup(cache string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cache).Inc()
	} else {
		CacheMisses.WithLabelValues(cache).Inc()
	}
}

// RecordWSMessage counts an inbound message. Unknown types are folded into
// "unknown" so clients cannot grow the label set.
func RecordWSMessage(msgType string) {
	switch msgType {
	case "join", "leave", "draw", "cursor", "clear", "ping", "viewport", "geoPath":
	default:
		msgType = "unknown"
	}
	WSMessagesReceived.WithLabelValues(msgType).Inc()
}

// RecordWSError counts a websocket failure, classified from its message.
func RecordWSError(err error) {
	if err == nil {
		return
	}
	errorType := "other"
	msg := err.Error()
	switch {
	case strings.Contains(msg, "close"):
		errorType = "closed"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		errorType = "timeout"
	case strings.Contains(msg, "upgrade"), strings.Contains(msg, "handshake"):
		errorType = "upgrade"
	}
	WSErrors.WithLabelValues(errorType).Inc()
}

// RecordBroadcast observes the fan-out of one broadcast.
func RecordBroadcast(recipients int) {
	BroadcastFanout.Observe(float64(recipients))
}

// SetRoomGauges publishes the current room and membership counts.
func SetRoomGauges(rooms, members int) {
	ActiveRooms.Set(float64(rooms))
	RoomMembers.Set(float64(members))
}
