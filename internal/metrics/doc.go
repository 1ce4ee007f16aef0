// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

/*
Package metrics provides Prometheus instrumentation for the GeoCanvas server.

All collectors are registered on the default registry through promauto and
exposed by the API router at /metrics:

	curl http://localhost:8080/metrics

# Available Metrics

HTTP:
  - geocanvas_api_requests_total (method, endpoint, status)
  - geocanvas_api_request_duration_seconds (method, endpoint)
  - geocanvas_api_active_requests
  - geocanvas_api_rate_limit_hits_total (surface)

Storage:
  - geocanvas_storage_operation_duration_seconds (store, operation)
  - geocanvas_storage_operation_errors_total (store, operation)
  - geocanvas_backend_breaker_state (backend): 0=closed, 1=half-open, 2=open
  - geocanvas_backend_fallback_total (operation)

Drawing:
  - geocanvas_strokes_saved_total, geocanvas_strokes_evicted_total
  - geocanvas_viewport_strokes_loaded
  - geocanvas_geo_paths_saved_total, geocanvas_geo_query_cells

Activities:
  - geocanvas_activities_created_total (kind)
  - geocanvas_permission_checks_total (result)
  - geocanvas_permission_fail_open_total

Realtime:
  - geocanvas_websocket_connections
  - geocanvas_websocket_messages_received_total (type)
  - geocanvas_websocket_messages_sent_total, geocanvas_websocket_messages_dropped_total
  - geocanvas_websocket_malformed_messages_total
  - geocanvas_broadcast_fanout
  - geocanvas_rooms_active, geocanvas_room_members, geocanvas_rooms_expired_total
  - geocanvas_relay_published_total, geocanvas_relay_received_total, geocanvas_relay_errors_total (stage)

# Alerting

The fail-open counter should stay at zero in a healthy deployment. A
non-zero rate means activity records could not be read and contributions
were allowed without a permission check:

	rate(geocanvas_permission_fail_open_total[5m]) > 0

A breaker stuck open means writes are landing in the memory fallback and
will be lost on restart:

	geocanvas_backend_breaker_state == 2
*/
package metrics
