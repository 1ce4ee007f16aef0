// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/metrics"
	"github.com/tomtom215/geocanvas/internal/models"
)

// permSnapshot is the cached subset of an activity that permission checks
// read.
type permSnapshot struct {
	ownerID string
	perms   models.Permissions
}

func (s *Store) snapshot(ctx context.Context, id string) (*permSnapshot, error) {
	if snap, ok := s.perms.Get(id); ok {
		return snap, nil
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := &permSnapshot{ownerID: a.OwnerID, perms: a.Permissions}
	if s.cfg.PermissionCacheTTL > 0 {
		s.perms.Set(id, snap)
	}
	return snap, nil
}

// CanContribute reports whether identity may draw on activity id.
//
// The owner always may. Anyone else may when contributions are enabled and
// they are not banned. If the activity cannot be read, for any reason, the
// check fails open: the contribution is allowed, the decision is written to
// the audit log at warn and geocanvas_permission_fail_open_total is
// incremented.
func (s *Store) CanContribute(ctx context.Context, id, identity string) bool {
	snap, err := s.snapshot(ctx, id)
	if err != nil {
		reason := "lookup failed: " + err.Error()
		if errors.Is(err, ErrNotFound) {
			reason = "activity not found"
		}
		s.audit.Log(logging.AuditEvent{
			Event:      "fail_open",
			ActivityID: id,
			Actor:      models.SystemOwner,
			Subject:    identity,
			Success:    true,
			Reason:     reason,
		})
		metrics.RecordPermissionCheck(true, true)
		return true
	}

	allowed := decide(snap, identity)
	metrics.RecordPermissionCheck(allowed, false)
	return allowed
}

func decide(snap *permSnapshot, identity string) bool {
	if identity != "" && identity == snap.ownerID {
		return true
	}
	if !snap.perms.AllowContributions {
		return false
	}
	return !snap.perms.IsBanned(identity)
}

// PermissionUpdate is a batch of permission changes. Nil and empty fields
// are left unchanged. Changes are applied in field order.
type PermissionUpdate struct {
	AllowContributions *bool    `json:"allowContributions,omitempty"`
	Approve            []string `json:"approve,omitempty" validate:"omitempty,dive,required,max=128"`
	Revoke             []string `json:"revoke,omitempty" validate:"omitempty,dive,required,max=128"`
	RejectRequests     []string `json:"rejectRequests,omitempty" validate:"omitempty,dive,required,max=128"`
	Ban                []string `json:"ban,omitempty" validate:"omitempty,dive,required,max=128"`
	Unban              []string `json:"unban,omitempty" validate:"omitempty,dive,required,max=128"`
	AddModerators      []string `json:"addModerators,omitempty" validate:"omitempty,dive,required,max=128"`
	RemoveModerators   []string `json:"removeModerators,omitempty" validate:"omitempty,dive,required,max=128"`
}

// UpdatePermissions applies upd on behalf of actor.
//
// The owner and moderators may toggle contributions, approve, revoke, reject,
// ban and unban. Only the owner may change moderators or ban a moderator. The
// owner can never be banned or revoked. Banning also drops the identity from
// approved contributors, moderators and pending requests. Approving a banned
// identity is refused; unban first.
func (s *Store) UpdatePermissions(ctx context.Context, id, actor string, upd PermissionUpdate) (*models.Activity, error) {
	var events []logging.AuditEvent
	a, err := s.mutate(ctx, id, func(a *models.Activity) error {
		p := &a.Permissions
		isOwner := actor != "" && actor == a.OwnerID
		if !isOwner && !p.IsModerator(actor) {
			s.refuse(id, actor, "", "update_permissions", "actor is neither owner nor moderator")
			return ErrForbidden
		}
		if (len(upd.AddModerators) > 0 || len(upd.RemoveModerators) > 0) && !isOwner {
			s.refuse(id, actor, "", "change_moderators", "only the owner may change moderators")
			return ErrForbidden
		}

		record := func(event, subject string) {
			events = append(events, logging.AuditEvent{Event: event, ActivityID: id, Actor: actor, Subject: subject, Success: true})
		}

		if upd.AllowContributions != nil && *upd.AllowContributions != p.AllowContributions {
			p.AllowContributions = *upd.AllowContributions
			if p.AllowContributions {
				record("enable_contributions", "")
			} else {
				record("disable_contributions", "")
			}
		}
		for _, u := range upd.Approve {
			if p.IsBanned(u) {
				s.refuse(id, actor, u, "approve_contributor", "identity is banned")
				return models.NewValidationError("approve", fmt.Sprintf("%s is banned", u))
			}
			p.ApprovedContributors = models.AddSorted(p.ApprovedContributors, u)
			p.ContributorRequests = models.RemoveSorted(p.ContributorRequests, u)
			record("approve_contributor", u)
		}
		for _, u := range upd.Revoke {
			if u == a.OwnerID {
				return models.NewValidationError("revoke", "the owner cannot be revoked")
			}
			p.ApprovedContributors = models.RemoveSorted(p.ApprovedContributors, u)
			record("revoke_contributor", u)
		}
		for _, u := range upd.RejectRequests {
			p.ContributorRequests = models.RemoveSorted(p.ContributorRequests, u)
			record("reject_request", u)
		}
		for _, u := range upd.Ban {
			if u == a.OwnerID {
				s.refuse(id, actor, u, "ban", "the owner cannot be banned")
				return models.NewValidationError("ban", "the owner cannot be banned")
			}
			if p.IsModerator(u) && !isOwner {
				s.refuse(id, actor, u, "ban", "only the owner may ban a moderator")
				return ErrForbidden
			}
			p.BannedUsers = models.AddSorted(p.BannedUsers, u)
			p.ApprovedContributors = models.RemoveSorted(p.ApprovedContributors, u)
			p.ContributorRequests = models.RemoveSorted(p.ContributorRequests, u)
			p.Moderators = models.RemoveSorted(p.Moderators, u)
			record("ban", u)
		}
		for _, u := range upd.Unban {
			p.BannedUsers = models.RemoveSorted(p.BannedUsers, u)
			record("unban", u)
		}
		for _, u := range upd.AddModerators {
			if p.IsBanned(u) {
				return models.NewValidationError("addModerators", fmt.Sprintf("%s is banned", u))
			}
			p.Moderators = models.AddSorted(p.Moderators, u)
			record("add_moderator", u)
		}
		for _, u := range upd.RemoveModerators {
			p.Moderators = models.RemoveSorted(p.Moderators, u)
			record("remove_moderator", u)
		}

		p.ApprovedContributors = models.AddSorted(p.ApprovedContributors, a.OwnerID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		s.audit.Log(ev)
	}
	return a, nil
}

func (s *Store) refuse(id, actor, subject, event, reason string) {
	s.audit.Log(logging.AuditEvent{Event: event, ActivityID: id, Actor: actor, Subject: subject, Success: false, Reason: reason})
}

// RequestContribution records identity's request to contribute. Banned
// identities are refused with ErrForbidden; the owner and identities that
// are already approved get the activity back unchanged.
func (s *Store) RequestContribution(ctx context.Context, id, identity string) (*models.Activity, error) {
	if identity == "" {
		return nil, models.NewValidationError("identity", "is required")
	}
	a, err := s.mutate(ctx, id, func(a *models.Activity) error {
		p := &a.Permissions
		switch {
		case p.IsBanned(identity):
			s.refuse(id, identity, identity, "request_contribution", "identity is banned")
			return ErrForbidden
		case identity == a.OwnerID, p.IsApproved(identity):
			return nil
		}
		p.ContributorRequests = models.AddSorted(p.ContributorRequests, identity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.Log(logging.AuditEvent{Event: "request_contribution", ActivityID: id, Actor: identity, Success: true})
	return a, nil
}
