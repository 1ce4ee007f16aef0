// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package models

import "time"

// APIResponse is the envelope of every REST response.
//
//	{"status":"success","data":{...},"metadata":{"timestamp":"...","query_time_ms":3}}
//	{"status":"error","error":{"code":"VALIDATION_ERROR","message":"ownerId is required"},"metadata":{...}}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response timing.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms"`
	Count       int       `json:"count,omitempty"`
}

// APIError is the error body of a failed request.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RoomInfo is the REST view of a room.
type RoomInfo struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	Members       int    `json:"members"`
	HistoryLength int    `json:"historyLength"`
	LastActivity  int64  `json:"lastActivity"`
}

// ServerStats is the counter block sent in welcome events and /status.
type ServerStats struct {
	Clients int `json:"clients"`
	Rooms   int `json:"rooms"`
}
