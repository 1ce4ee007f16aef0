// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// AuditEvent describes a permission-relevant change on an activity.
type AuditEvent struct {
	// Event is the action name, e.g. "ban", "approve_contributor", "fail_open".
	Event string
	// ActivityID is the activity the change applies to.
	ActivityID string
	// Actor is the identity performing the change ("system" for automatic decisions).
	Actor string
	// Subject is the identity the change applies to, if any.
	Subject string
	// Success is false when the change was refused.
	Success bool
	// Reason carries the refusal or fail-open cause.
	Reason string
}

// AuditLogger writes activity permission events under component=audit.
type AuditLogger struct {
	logger zerolog.Logger
}

// NewAuditLogger builds an AuditLogger on the global logger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{logger: WithComponent("audit")}
}

// NewAuditLoggerWithLogger builds an AuditLogger on l.
//
//nolint:gocritic // zerolog.Logger is passed by value by design
func NewAuditLoggerWithLogger(l zerolog.Logger) *AuditLogger {
	return &AuditLogger{logger: l.With().Str("component", "audit").Logger()}
}

// Log writes ev. Refused changes and fail-open decisions log at warn.
func (a *AuditLogger) Log(ev AuditEvent) {
	var e *zerolog.Event
	if !ev.Success || ev.Event == "fail_open" {
		e = a.logger.Warn()
	} else {
		e = a.logger.Info()
	}

	e = e.Str("event", ev.Event).
		Str("activity_id", ev.ActivityID).
		Bool("success", ev.Success)
	if ev.Actor != "" {
		e = e.Str("actor", sanitizeIdentity(ev.Actor))
	}
	if ev.Subject != "" {
		e = e.Str("subject", sanitizeIdentity(ev.Subject))
	}
	if ev.Reason != "" {
		e = e.Str("reason", truncate(ev.Reason, 200))
	}
	e.Msg("activity permission event")
}

// sanitizeIdentity strips control characters and caps length so
// client-supplied identities cannot forge log lines.
func sanitizeIdentity(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return truncate(s, 128)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
