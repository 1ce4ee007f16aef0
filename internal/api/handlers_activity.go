// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/geocanvas/internal/activity"
	"github.com/tomtom215/geocanvas/internal/geo"
	"github.com/tomtom215/geocanvas/internal/models"
)

// DefaultActivityRequest locates the default activity to find or create.
type DefaultActivityRequest struct {
	Location geo.Point `json:"location"`
}

// DefaultActivityResponse reports whether the default activity is new.
type DefaultActivityResponse struct {
	Activity *models.Activity `json:"activity"`
	Created  bool             `json:"created"`
}

// CanvasRequest carries an opaque canvas snapshot.
type CanvasRequest struct {
	Data json.RawMessage `json:"data" validate:"required"`
}

// CanvasResponse returns a stored canvas snapshot.
type CanvasResponse struct {
	ActivityID string          `json:"activityId"`
	Data       json.RawMessage `json:"data"`
}

// CreateActivity creates an activity owned by the caller.
func (h *Handler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var in activity.CreateInput
	if !decodeJSON(w, r, maxBodyBytes, &in) {
		return
	}
	in.OwnerID = identity(r)
	in.CreatorID = in.OwnerID

	a, err := h.Activities.Create(r.Context(), in)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusCreated, a, 0, start)
}

// DefaultActivity finds or creates the shared activity at a location.
func (h *Handler) DefaultActivity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req DefaultActivityRequest
	if !decodeJSON(w, r, maxBodyBytes, &req) {
		return
	}

	a, created, err := h.Activities.FindOrCreateDefault(r.Context(), req.Location)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondSuccess(w, status, DefaultActivityResponse{Activity: a, Created: created}, 0, start)
}

// QueryActivities lists activities in the bounds query, most recently active first.
func (h *Handler) QueryActivities(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	b, err := boundsParams(r, false)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	list, err := h.Activities.Query(r.Context(), b, getIntParam(r, "precision", 0), getIntParam(r, "limit", 0))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, list, len(list), start)
}

// ActivityStreets groups activities in the bounds query by street.
func (h *Handler) ActivityStreets(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	b, err := boundsParams(r, false)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	groups, err := h.Activities.GroupByStreet(r.Context(), b)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, groups, len(groups), start)
}

// MyActivities lists the activities the caller owns.
func (h *Handler) MyActivities(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner := identity(r)
	if owner == "" {
		respondDomainError(w, models.NewValidationError("identity", "is required"))
		return
	}

	list, err := h.Activities.FindByOwner(r.Context(), owner)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, list, len(list), start)
}

// GetActivity returns one activity.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	a, err := h.Activities.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, a, 0, start)
}

// UpdatePermissions applies a permission batch on behalf of the caller.
func (h *Handler) UpdatePermissions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var upd activity.PermissionUpdate
	if !decodeJSON(w, r, maxBodyBytes, &upd) {
		return
	}

	a, err := h.Activities.UpdatePermissions(r.Context(), chi.URLParam(r, "id"), identity(r), upd)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, a, 0, start)
}

// RequestContribution files a contribution request for the caller.
func (h *Handler) RequestContribution(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	a, err := h.Activities.RequestContribution(r.Context(), chi.URLParam(r, "id"), identity(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusAccepted, a, 0, start)
}

// GetCanvas returns the stored canvas snapshot of an activity.
func (h *Handler) GetCanvas(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")
	data, err := h.Activities.LoadCanvas(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, CanvasResponse{ActivityID: id, Data: data}, 0, start)
}

// PutCanvas stores a canvas snapshot. The caller must be allowed to contribute.
func (h *Handler) PutCanvas(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req CanvasRequest
	limit := int64(h.Activities.Config().MaxCanvasBytes) + 1024
	if !decodeJSON(w, r, limit, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.Activities.SaveCanvas(r.Context(), id, identity(r), req.Data); err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, CanvasResponse{ActivityID: id, Data: req.Data}, 0, start)
}
