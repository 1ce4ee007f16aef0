// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/geocanvas/internal/activity"
	"github.com/tomtom215/geocanvas/internal/chunkstore"
	"github.com/tomtom215/geocanvas/internal/geo"
	"github.com/tomtom215/geocanvas/internal/geoindex"
	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/models"
	"github.com/tomtom215/geocanvas/internal/validation"
)

// Error codes for API responses
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS"
	ErrCodeInternalError   = "INTERNAL_ERROR"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
	ErrCodeValidation      = models.ErrCodeInvalidInput
)

// maxBodyBytes bounds JSON request bodies other than canvas snapshots.
const maxBodyBytes = 1 << 20

// sanitizeLogValue replaces control characters so request data cannot forge log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// respondJSON sends a JSON response with proper headers
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondSuccess wraps data in a success envelope.
func respondSuccess(w http.ResponseWriter, status int, data interface{}, count int, start time.Time) {
	respondJSON(w, status, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
			Count:       count,
		},
	})
}

// respondError sends an error response. err is logged, never returned to the client.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", sanitizeLogValue(code)).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error:    &models.APIError{Code: code, Message: message},
	})
}

// respondDomainError maps store errors to HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{
			Status:   "error",
			Metadata: models.Metadata{Timestamp: time.Now()},
			Error: &models.APIError{
				Code:    ErrCodeValidation,
				Message: ve.Error(),
				Details: map[string]interface{}{"field": ve.Field},
			},
		})
	case errors.Is(err, activity.ErrNotFound), errors.Is(err, geoindex.ErrNotFound), errors.Is(err, chunkstore.ErrNotFound):
		respondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), nil)
	case errors.Is(err, activity.ErrForbidden):
		respondError(w, http.StatusForbidden, ErrCodeForbidden, "not permitted", nil)
	case errors.Is(err, geo.ErrInvalidBounds):
		respondError(w, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
	default:
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error", err)
	}
}

// validateRequest validates v with go-playground/validator and shapes the
// failure as a VALIDATION_ERROR body.
func validateRequest(v interface{}) *models.APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}
	apiErr := validationErr.ToAPIError()
	return &models.APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}

// respondValidation sends a 400 with the given validation body.
func respondValidation(w http.ResponseWriter, apiErr *models.APIError) {
	respondJSON(w, http.StatusBadRequest, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error:    apiErr,
	})
}

// decodeJSON reads a bounded JSON body into v and validates it. It writes
// the error response and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large", nil)
			return false
		}
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body", nil)
		return false
	}
	if apiErr := validateRequest(v); apiErr != nil {
		respondValidation(w, apiErr)
		return false
	}
	return true
}

// getIntParam extracts an integer query parameter with a default value
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// floatParam parses a required float query parameter.
func floatParam(r *http.Request, key string) (float64, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, models.NewValidationError(key, "is required")
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, models.NewValidationError(key, "must be a finite number")
	}
	return f, nil
}

// boundsParams reads minLat, minLng, maxLat and maxLng. When none is given
// and optional is true, the whole world is returned.
func boundsParams(r *http.Request, optional bool) (geo.Bounds, error) {
	q := r.URL.Query()
	if optional && q.Get("minLat") == "" && q.Get("minLng") == "" && q.Get("maxLat") == "" && q.Get("maxLng") == "" {
		return geo.Bounds{MinLat: -90, MinLng: -180, MaxLat: 90, MaxLng: 180}, nil
	}

	var b geo.Bounds
	var err error
	if b.MinLat, err = floatParam(r, "minLat"); err != nil {
		return b, err
	}
	if b.MinLng, err = floatParam(r, "minLng"); err != nil {
		return b, err
	}
	if b.MaxLat, err = floatParam(r, "maxLat"); err != nil {
		return b, err
	}
	if b.MaxLng, err = floatParam(r, "maxLng"); err != nil {
		return b, err
	}
	if err := b.Validate(); err != nil {
		return b, err
	}
	return b, nil
}
