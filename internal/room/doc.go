// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

/*
Package room owns the active drawing rooms: membership, a bounded history
of recent draw operations, last known cursors, and the broadcast primitive.

# Lifecycle

A room is created by its first Join and is active while it has members.
When the last member leaves it becomes idle. Sweep, run periodically by
Serve, reaps rooms that have been idle for IdleTimeout (default 1 hour).
A Join to an idle room reactivates it with its history intact.

# Ordering

Every mutation of a room and its broadcast happen under that room's lock,
so the draw operations of one client reach the other members in the order
they were recorded. There is no ordering across clients.

# Delivery

Broadcasts go through Sender.Send, which never blocks. A dropped frame is
counted in geocanvas_websocket_messages_dropped_total and is not retried; clients
recover missed strokes from the init snapshot or a viewport reload.
*/
package room
