// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

/*
Package models defines the data structures shared across GeoCanvas.

Categories:

 1. Canvas geometry: Point, StrokePath, Viewport. Pixel-space strokes are
    immutable once created and addressed by id.
 2. Geo-anchored data: GeoPath, Activity, Permissions.
 3. Wire protocol: the Inbound tagged union decoded from client frames and
    the outbound event structs sent back. DecodeInbound is the only way
    frames enter the system; unknown or invalid frames yield
    ErrMalformedMessage.
 4. REST envelope: APIResponse, APIError, Metadata.
 5. Errors: ValidationError for rejected input.

Timestamps on the wire and in storage are Unix milliseconds.
*/
package models
