// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package activity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/geocanvas/internal/geo"
	"github.com/tomtom215/geocanvas/internal/kv"
	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/metrics"
	"github.com/tomtom215/geocanvas/internal/models"
)

// queryPrecision resolves the bucket precision for b, as geoindex does.
func (s *Store) queryPrecision(b geo.Bounds, requested int) int {
	if requested <= 0 {
		return geo.AutoPrecision(b, s.cfg.MinPrecision, s.cfg.MaxPrecision, s.cfg.SampleLattice)
	}
	requested = min(max(requested, s.cfg.MinPrecision), s.cfg.MaxPrecision)
	return geo.FitPrecision(b, requested, s.cfg.MinPrecision)
}

// Query returns up to limit activities located inside b, most recently
// active first. precision 0 selects the bucket resolution automatically.
func (s *Store) Query(ctx context.Context, b geo.Bounds, precision, limit int) (out []*models.Activity, err error) {
	start := time.Now()
	defer func() { metrics.RecordStorageOp("activities", "query", time.Since(start), err) }()

	if err := b.Validate(); err != nil {
		return nil, models.NewValidationError("bounds", err.Error())
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	limit = min(limit, s.cfg.MaxLimit)

	hashes := geo.CoveringHashes(b, s.queryPrecision(b, precision), s.cfg.SampleLattice)
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = geoPrefix + h
	}
	ids, err := kv.Union(ctx, s.kv, keys...)
	if err != nil {
		return nil, err
	}

	out, err = s.loadMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	kept := out[:0]
	for _, a := range out {
		if b.Contains(a.Location) {
			kept = append(kept, a)
		}
	}
	sortByLastActive(kept)
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept, nil
}

// loadMany loads the activities with the given ids, skipping missing ones.
func (s *Store) loadMany(ctx context.Context, ids []string) ([]*models.Activity, error) {
	out := make([]*models.Activity, 0, len(ids))
	for _, id := range ids {
		a, err := s.Get(ctx, id)
		if err == nil {
			out = append(out, a)
			continue
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return nil, err
	}
	return out, nil
}

func sortByLastActive(as []*models.Activity) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].LastActive != as[j].LastActive {
			return as[i].LastActive > as[j].LastActive
		}
		return as[i].ID < as[j].ID
	})
}

func sortByCreatedDesc(as []*models.Activity) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].CreatedAt != as[j].CreatedAt {
			return as[i].CreatedAt > as[j].CreatedAt
		}
		return as[i].ID < as[j].ID
	})
}

// GroupByStreet runs Query over b and groups the results by street label.
// Activities without a street fall under models.UnknownStreet. Each group's
// centroid is the arithmetic mean of its members' locations. Groups are
// ordered by size, largest first.
func (s *Store) GroupByStreet(ctx context.Context, b geo.Bounds) ([]models.StreetGroup, error) {
	activities, err := s.Query(ctx, b, 0, s.cfg.MaxLimit)
	if err != nil {
		return nil, err
	}

	byStreet := make(map[string]*models.StreetGroup)
	var order []string
	for _, a := range activities {
		label := strings.TrimSpace(a.Street)
		if label == "" {
			label = models.UnknownStreet
		}
		g, ok := byStreet[label]
		if !ok {
			g = &models.StreetGroup{Street: label}
			byStreet[label] = g
			order = append(order, label)
		}
		g.Activities = append(g.Activities, a)
	}

	groups := make([]models.StreetGroup, 0, len(order))
	for _, label := range order {
		g := byStreet[label]
		pts := make([]geo.Point, len(g.Activities))
		for i, a := range g.Activities {
			pts[i] = a.Location
		}
		g.Centroid = geo.Centroid(pts)
		g.Count = len(g.Activities)
		groups = append(groups, *g)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Street < groups[j].Street
	})
	return groups, nil
}

// FindByStreet returns the activities indexed under street, most recently
// active first.
func (s *Store) FindByStreet(ctx context.Context, street string) ([]*models.Activity, error) {
	key := NormalizeStreet(street)
	if key == "" {
		return []*models.Activity{}, nil
	}
	ids, err := s.kv.SMembers(ctx, streetPrefix+key)
	if err != nil {
		return nil, fmt.Errorf("read street index: %w", err)
	}
	sort.Strings(ids)
	out, err := s.loadMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortByLastActive(out)
	return out, nil
}

// FindByOwner returns every activity owned by ownerID, newest first.
//
// It reads the owner index. When the index is empty, it falls back to a
// scan over all activity records, which is linear in the number of
// activities, and backfills the index with what it finds.
func (s *Store) FindByOwner(ctx context.Context, ownerID string) (out []*models.Activity, err error) {
	start := time.Now()
	defer func() { metrics.RecordStorageOp("activities", "find_by_owner", time.Since(start), err) }()

	if ownerID == "" {
		return []*models.Activity{}, nil
	}

	ids, err := s.kv.SMembers(ctx, ownerPrefix+ownerID)
	if err != nil {
		return nil, fmt.Errorf("read owner index: %w", err)
	}
	if len(ids) > 0 {
		sort.Strings(ids)
		out, err = s.loadMany(ctx, ids)
		if err != nil {
			return nil, err
		}
		kept := out[:0]
		for _, a := range out {
			if a.OwnerID == ownerID {
				kept = append(kept, a)
			}
		}
		sortByCreatedDesc(kept)
		return kept, nil
	}

	out, err = s.scanByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		found := make([]string, len(out))
		for i, a := range out {
			found[i] = a.ID
		}
		if err := s.kv.SAdd(ctx, ownerPrefix+ownerID, found...); err != nil {
			logging.Warn().Err(err).Msg("Failed to backfill owner index")
		}
	}
	return out, nil
}

// IsRecordKey reports whether key is an activity record ("activity:<id>")
// rather than one of the auxiliary keys sharing the prefix.
func IsRecordKey(key string) bool {
	id, ok := strings.CutPrefix(key, keyPrefix)
	return ok && id != "" && !strings.Contains(id, ":") && key != statsKey
}

func (s *Store) scanByOwner(ctx context.Context, ownerID string) ([]*models.Activity, error) {
	keys, err := s.kv.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan activities: %w", err)
	}
	out := make([]*models.Activity, 0)
	for _, key := range keys {
		if !IsRecordKey(key) {
			continue
		}
		id := strings.TrimPrefix(key, keyPrefix)
		a, err := s.Get(ctx, id)
		if err != nil {
			logging.Debug().Err(err).Str("key", key).Msg("Skipping unreadable activity during owner scan")
			continue
		}
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}
