// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

// Package middleware holds transport-level HTTP middleware shared by the
// REST router.
//
// Compress gzips JSON responses once they pass a size threshold, so small
// envelopes such as health checks are sent as is.
package middleware
