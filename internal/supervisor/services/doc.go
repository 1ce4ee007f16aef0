// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

/*
Package services adapts components whose lifecycle is not already
Serve(ctx) error to suture.Service.

HTTPServerService runs an http.Server with a bounded graceful shutdown.
ShutdownService owns a component that is started eagerly and only needs
stopping when the tree stops, such as the embedded NATS server.

The room registry, websocket hub, NATS relay and permission cache implement
suture.Service themselves and are added to the tree directly.
*/
package services
