// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

// Package geoindex stores geo-anchored paths and answers bounding-box
// queries over them.
//
// A path is keyed by the geohash of its first point. Its id is added to the
// bucket "geo:geohash:<prefix>" for every precision from MinPrecision to
// MaxPrecision, so a query can choose its resolution at runtime: coarse
// levels keep the candidate set of a large box small, fine levels keep the
// false-positive rate of a small box low. Buckets expire BucketTTL after
// their last write; path content does not expire.
package geoindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/geocanvas/internal/geo"
	"github.com/tomtom215/geocanvas/internal/kv"
	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/metrics"
	"github.com/tomtom215/geocanvas/internal/models"
)

const (
	pathsKey     = "geo:paths"
	statsKey     = "geo:stats"
	regionsKey   = "geo:regions"
	bucketPrefix = "geo:geohash:"
	statTotal    = "totalPaths"
)

// ErrNotFound is returned by Get for an unknown path id.
var ErrNotFound = errors.New("geo path not found")

// Config holds the indexing parameters.
type Config struct {
	MinPrecision     int
	MaxPrecision     int
	SampleLattice    int
	HeatmapPrecision int
	BucketTTL        time.Duration
	DefaultLimit     int
	MaxLimit         int
	MaxPoints        int
}

// DefaultConfig returns the production indexing parameters.
func DefaultConfig() Config {
	return Config{
		MinPrecision:     3,
		MaxPrecision:     7,
		SampleLattice:    geo.DefaultSampleLattice,
		HeatmapPrecision: 4,
		BucketTTL:        30 * 24 * time.Hour,
		DefaultLimit:     500,
		MaxLimit:         5000,
		MaxPoints:        10000,
	}
}

// Index is the geo path store.
type Index struct {
	kv  kv.Backend
	cfg Config
}

// New creates an Index on b. Zero fields of cfg take their defaults.
func New(b kv.Backend, cfg Config) *Index {
	def := DefaultConfig()
	if cfg.MinPrecision <= 0 {
		cfg.MinPrecision = def.MinPrecision
	}
	if cfg.MaxPrecision <= 0 {
		cfg.MaxPrecision = def.MaxPrecision
	}
	if cfg.MaxPrecision < cfg.MinPrecision {
		cfg.MaxPrecision = cfg.MinPrecision
	}
	if cfg.SampleLattice <= 1 {
		cfg.SampleLattice = def.SampleLattice
	}
	if cfg.HeatmapPrecision < cfg.MinPrecision || cfg.HeatmapPrecision > cfg.MaxPrecision {
		cfg.HeatmapPrecision = clamp(def.HeatmapPrecision, cfg.MinPrecision, cfg.MaxPrecision)
	}
	if cfg.BucketTTL <= 0 {
		cfg.BucketTTL = def.BucketTTL
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = def.MaxPoints
	}
	return &Index{kv: b, cfg: cfg}
}

// Config returns the effective configuration.
func (ix *Index) Config() Config {
	return ix.cfg
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BucketKey returns the backend key of the bucket for a geohash prefix.
func BucketKey(hash string) string {
	return bucketPrefix + hash
}

func (ix *Index) validate(p *models.GeoPath) error {
	if p == nil {
		return models.NewValidationError("path", "is required")
	}
	if len(p.Points) == 0 {
		return models.NewValidationError("points", "must contain at least one point")
	}
	if len(p.Points) > ix.cfg.MaxPoints {
		return models.NewValidationError("points", fmt.Sprintf("at most %d points allowed", ix.cfg.MaxPoints))
	}
	for _, pt := range p.Points {
		if !pt.Valid() {
			return models.NewValidationError("points", "coordinates out of range")
		}
	}
	return nil
}

// Save indexes p. A missing id and creation time are filled in, and
// p.Geohash is set to the full-precision hash of the first point.
func (ix *Index) Save(ctx context.Context, p *models.GeoPath) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStorageOp("geo", "save", time.Since(start), err) }()

	if err := ix.validate(p); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = models.NowMillis()
	}
	first := p.Points[0]
	p.Geohash = geo.Encode(first.Lat, first.Lng, ix.cfg.MaxPrecision)

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode geo path %s: %w", p.ID, err)
	}
	if err := ix.kv.HSet(ctx, pathsKey, p.ID, string(data)); err != nil {
		return fmt.Errorf("store geo path %s: %w", p.ID, err)
	}

	for prec := ix.cfg.MinPrecision; prec <= ix.cfg.MaxPrecision; prec++ {
		key := BucketKey(p.Geohash[:prec])
		if err := ix.kv.SAdd(ctx, key, p.ID); err != nil {
			return fmt.Errorf("index geo path %s in %s: %w", p.ID, key, err)
		}
		if err := ix.kv.Expire(ctx, key, ix.cfg.BucketTTL); err != nil {
			return fmt.Errorf("refresh ttl of %s: %w", key, err)
		}
	}

	if _, err := ix.kv.HIncrBy(ctx, statsKey, statTotal, 1); err != nil {
		logging.Warn().Err(err).Msg("Failed to update geo path counter")
	}
	if p.Region != "" {
		if _, err := ix.kv.HIncrBy(ctx, regionsKey, p.Region, 1); err != nil {
			logging.Warn().Err(err).Str("region", p.Region).Msg("Failed to update region counter")
		}
	}

	metrics.GeoPathsSaved.Inc()
	return nil
}

// Get loads one path.
func (ix *Index) Get(ctx context.Context, id string) (*models.GeoPath, error) {
	raw, err := ix.kv.HGet(ctx, pathsKey, id)
	if errors.Is(err, kv.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load geo path %s: %w", id, err)
	}
	var p models.GeoPath
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode geo path %s: %w", id, err)
	}
	return &p, nil
}

// QueryPrecision resolves the bucket precision used for b. A requested
// precision of 0 selects one automatically; any other value is clamped to
// the indexed range and coarsened until the covering lattice is exact.
func (ix *Index) QueryPrecision(b geo.Bounds, requested int) int {
	if requested <= 0 {
		return geo.AutoPrecision(b, ix.cfg.MinPrecision, ix.cfg.MaxPrecision, ix.cfg.SampleLattice)
	}
	requested = clamp(requested, ix.cfg.MinPrecision, ix.cfg.MaxPrecision)
	return geo.FitPrecision(b, requested, ix.cfg.MinPrecision)
}

// Query returns up to limit paths intersecting b, oldest first. It unions
// the buckets covering b at the resolved precision and keeps the candidates
// whose geometry really intersects b. limit <= 0 selects DefaultLimit.
func (ix *Index) Query(ctx context.Context, b geo.Bounds, precision, limit int) (paths []*models.GeoPath, err error) {
	start := time.Now()
	defer func() { metrics.RecordStorageOp("geo", "query", time.Since(start), err) }()

	if err := b.Validate(); err != nil {
		return nil, models.NewValidationError("bounds", err.Error())
	}
	if limit <= 0 {
		limit = ix.cfg.DefaultLimit
	}
	if limit > ix.cfg.MaxLimit {
		limit = ix.cfg.MaxLimit
	}

	prec := ix.QueryPrecision(b, precision)
	hashes := geo.CoveringHashes(b, prec, ix.cfg.SampleLattice)
	metrics.GeoQueryCells.Observe(float64(len(hashes)))

	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = BucketKey(h)
	}
	ids, err := kv.Union(ctx, ix.kv, keys...)
	if err != nil {
		return nil, err
	}

	paths = make([]*models.GeoPath, 0)
	err = kv.EachHashValue(ctx, ix.kv, pathsKey, ids, func(id, raw string) bool {
		var p models.GeoPath
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			logging.Warn().Err(err).Str("path_id", id).Msg("Skipping undecodable geo path")
			return true
		}
		if b.IntersectsPath(p.Points) {
			paths = append(paths, &p)
		}
		return len(paths) < limit
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(paths, func(i, j int) bool {
		if paths[i].CreatedAt != paths[j].CreatedAt {
			return paths[i].CreatedAt < paths[j].CreatedAt
		}
		return paths[i].ID < paths[j].ID
	})
	return paths, nil
}

// Heatmap returns the member count of every live bucket at
// HeatmapPrecision, densest first, with each bucket's center as location.
func (ix *Index) Heatmap(ctx context.Context) (cells []models.HeatmapCell, err error) {
	start := time.Now()
	defer func() { metrics.RecordStorageOp("geo", "heatmap", time.Since(start), err) }()

	keys, err := ix.kv.Scan(ctx, bucketPrefix+strings.Repeat("?", ix.cfg.HeatmapPrecision))
	if err != nil {
		return nil, fmt.Errorf("scan heatmap buckets: %w", err)
	}

	cells = make([]models.HeatmapCell, 0, len(keys))
	for _, key := range keys {
		hash := strings.TrimPrefix(key, bucketPrefix)
		center, err := geo.Decode(hash)
		if err != nil {
			continue
		}
		n, err := ix.kv.SCard(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", key, err)
		}
		if n == 0 {
			continue
		}
		cells = append(cells, models.HeatmapCell{Geohash: hash, Lat: center.Lat, Lng: center.Lng, Count: n})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Count != cells[j].Count {
			return cells[i].Count > cells[j].Count
		}
		return cells[i].Geohash < cells[j].Geohash
	})
	return cells, nil
}

// Stats returns the global path counter and per-region counters.
func (ix *Index) Stats(ctx context.Context) (*models.GeoStats, error) {
	stats := &models.GeoStats{Regions: map[string]int64{}}

	raw, err := ix.kv.HGet(ctx, statsKey, statTotal)
	switch {
	case errors.Is(err, kv.ErrNil):
	case err != nil:
		return nil, fmt.Errorf("load geo stats: %w", err)
	default:
		stats.TotalPaths, _ = strconv.ParseInt(raw, 10, 64)
	}

	regions, err := ix.kv.HGetAll(ctx, regionsKey)
	if err != nil {
		return nil, fmt.Errorf("load region stats: %w", err)
	}
	for region, v := range regions {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		stats.Regions[region] = n
	}
	return stats, nil
}
