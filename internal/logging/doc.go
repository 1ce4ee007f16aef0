// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

// Package logging provides the zerolog-based structured logger used across GeoCanvas.
//
// A single global logger is configured once at startup and reached through
// package-level helpers, so hot paths such as stroke fan-out never have to
// thread a logger through their call chain.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("room", roomID).Msg("Room created")
//	logging.Warn().Err(err).Str("op", "zadd").Msg("Durable backend failed, using memory fallback")
//	logging.Ctx(ctx).Info().Msg("Request processed") // adds request_id / correlation_id
//
// # Output Formats
//
// JSON (default) for production:
//
//	{"level":"info","time":"2026-01-02T15:04:05Z","room":"default","message":"Room created"}
//
// Console for local development:
//
//	15:04:05 INF Room created room=default
//
// # Audit Events
//
// Permission changes on activities (bans, contributor approvals, fail-open
// decisions) go through AuditLogger so they share one component tag and a
// stable field layout that log pipelines can alert on.
//
// # slog Bridge
//
// The suture supervisor logs through sutureslog, which requires *slog.Logger.
// NewSlogLogger returns an slog.Logger whose records are written by zerolog.
package logging
