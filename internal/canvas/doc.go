// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

/*
Package canvas is the event-processing core of the server.

The transport hands every decoded connection event to a Service, which
routes it to the components that own the state:

	join, leave      -> room.Registry
	draw             -> room.Registry (history + fan-out), chunkstore.Store
	cursor, clear    -> room.Registry
	viewport         -> viewport.Index, chunkstore.Store (chunk reply)
	geoPath          -> activity.Store (permission), geoindex.Index, room.Registry
	ping             -> pong to the sender

Draw and cursor broadcasts are culled through the viewport index when
ViewportCulling is on. Pixel-mode draws persist one two-point stroke per
segment; segmented draws (drawType start, draw, end) accumulate points per
connection and persist the stroke on end.

When a Publisher is configured, local draw, cursor, clear and geoPath events
are relayed to other instances and ApplyRemote applies theirs.
*/
package canvas
