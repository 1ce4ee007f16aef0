// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package models

import (
	"sort"

	"github.com/tomtom215/geocanvas/internal/geo"
)

// SystemOwner owns implicitly created default activities.
const SystemOwner = "system"

// UnknownStreet labels activities without a street in street groupings.
const UnknownStreet = "Unknown Street"

// Activity is a location-scoped, permissioned shared canvas.
type Activity struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Description      string      `json:"description,omitempty"`
	OwnerID          string      `json:"ownerId"`
	CreatorID        string      `json:"creatorId,omitempty"`
	Location         geo.Point   `json:"location"`
	Geohash          string      `json:"geohash"`
	Address          string      `json:"address,omitempty"`
	Street           string      `json:"street,omitempty"`
	CreatedAt        int64       `json:"createdAt"`
	LastActive       int64       `json:"lastActive"`
	ParticipantCount int64       `json:"participantCount"`
	DrawingCount     int64       `json:"drawingCount"`
	IsDefault        bool        `json:"isDefault"`
	Permissions      Permissions `json:"permissions"`
}

// Permissions is the owner/contributor/banned/moderator role set of an
// activity. The set fields are kept sorted and free of duplicates.
type Permissions struct {
	AllowContributions   bool     `json:"allowContributions"`
	ContributorRequests  []string `json:"contributorRequests"`
	ApprovedContributors []string `json:"approvedContributors"`
	BannedUsers          []string `json:"bannedUsers"`
	Moderators           []string `json:"moderators"`
}

// NewPermissions returns the initial permissions for an activity owned by owner.
func NewPermissions(owner string) Permissions {
	return Permissions{
		ContributorRequests:  []string{},
		ApprovedContributors: []string{owner},
		BannedUsers:          []string{},
		Moderators:           []string{},
	}
}

// IsBanned reports whether identity is banned.
func (p *Permissions) IsBanned(identity string) bool {
	return containsSorted(p.BannedUsers, identity)
}

// IsModerator reports whether identity moderates the activity.
func (p *Permissions) IsModerator(identity string) bool {
	return containsSorted(p.Moderators, identity)
}

// IsApproved reports whether identity is an approved contributor.
func (p *Permissions) IsApproved(identity string) bool {
	return containsSorted(p.ApprovedContributors, identity)
}

// HasRequested reports whether identity has a pending contribution request.
func (p *Permissions) HasRequested(identity string) bool {
	return containsSorted(p.ContributorRequests, identity)
}

// AddSorted inserts v into the sorted set s.
func AddSorted(s []string, v string) []string {
	i := sort.SearchStrings(s, v)
	if i < len(s) && s[i] == v {
		return s
	}
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// RemoveSorted deletes v from the sorted set s.
func RemoveSorted(s []string, v string) []string {
	i := sort.SearchStrings(s, v)
	if i < len(s) && s[i] == v {
		return append(s[:i], s[i+1:]...)
	}
	return s
}

func containsSorted(s []string, v string) bool {
	i := sort.SearchStrings(s, v)
	return i < len(s) && s[i] == v
}

// StreetGroup is a set of activities sharing a street label.
type StreetGroup struct {
	Street     string      `json:"street"`
	Centroid   geo.Point   `json:"centroid"`
	Count      int         `json:"count"`
	Activities []*Activity `json:"activities"`
}

// ActivityStats are the global ActivityStore counters.
type ActivityStats struct {
	TotalActivities   int64 `json:"totalActivities"`
	DefaultActivities int64 `json:"defaultActivities"`
}
