// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

// Package chunkstore persists pixel-space strokes partitioned into square
// chunks.
//
// Stroke content lives in the "drawings" hash keyed by stroke id. Each chunk
// is a sorted set "chunk:<cx>:<cy>" of stroke ids scored by creation time, so
// the oldest members of an overflowing chunk are a rank range. A stroke is
// registered in every chunk its bounding box overlaps. Chunk keys carry a
// rolling TTL refreshed on every write; stroke content does not expire.
package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/geocanvas/internal/geo"
	"github.com/tomtom215/geocanvas/internal/kv"
	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/metrics"
	"github.com/tomtom215/geocanvas/internal/models"
)

const (
	drawingsKey = "drawings"
	statsKey    = "canvas:stats"
	statStrokes = "strokes"
)

// Config holds the chunking parameters.
type Config struct {
	// ChunkSize is the side of a square chunk in pixels.
	ChunkSize float64
	// MaxPerChunk caps the number of strokes one chunk references.
	MaxPerChunk int
	// ChunkTTL is refreshed on every write touching a chunk.
	ChunkTTL time.Duration
	// ViewportMargin pads viewport loads so strokes on the edge are not clipped.
	ViewportMargin float64
	// MaxChunksPerOp bounds how many chunks one stroke or load may touch.
	MaxChunksPerOp int
}

// DefaultConfig returns the production chunking parameters.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      1000,
		MaxPerChunk:    1000,
		ChunkTTL:       7 * 24 * time.Hour,
		ViewportMargin: 100,
		MaxChunksPerOp: 1024,
	}
}

// ChunkKey identifies a chunk by integer grid coordinates.
type ChunkKey struct {
	X int64
	Y int64
}

// String returns the backend key of the chunk.
func (k ChunkKey) String() string {
	return "chunk:" + strconv.FormatInt(k.X, 10) + ":" + strconv.FormatInt(k.Y, 10)
}

// Store is the chunk-partitioned stroke store.
type Store struct {
	kv  kv.Backend
	cfg Config
}

// New creates a Store on b. Zero fields of cfg take their defaults.
func New(b kv.Backend, cfg Config) *Store {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.MaxPerChunk <= 0 {
		cfg.MaxPerChunk = def.MaxPerChunk
	}
	if cfg.ChunkTTL <= 0 {
		cfg.ChunkTTL = def.ChunkTTL
	}
	if cfg.ViewportMargin < 0 {
		cfg.ViewportMargin = 0
	}
	if cfg.MaxChunksPerOp <= 0 {
		cfg.MaxChunksPerOp = def.MaxChunksPerOp
	}
	return &Store{kv: b, cfg: cfg}
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.cfg
}

func (s *Store) cell(v float64) int64 {
	return int64(math.Floor(v / s.cfg.ChunkSize))
}

// chunksInRect enumerates the chunks overlapping r in row-major order.
func (s *Store) chunksInRect(r models.Rect) ([]ChunkKey, error) {
	x0, x1 := s.cell(r.MinX), s.cell(r.MaxX)
	y0, y1 := s.cell(r.MinY), s.cell(r.MaxY)
	if n := (x1 - x0 + 1) * (y1 - y0 + 1); n > int64(s.cfg.MaxChunksPerOp) || n <= 0 {
		return nil, models.NewValidationError("bounds", fmt.Sprintf("spans %d chunks, limit is %d", n, s.cfg.MaxChunksPerOp))
	}
	keys := make([]ChunkKey, 0, (x1-x0+1)*(y1-y0+1))
	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			keys = append(keys, ChunkKey{X: cx, Y: cy})
		}
	}
	return keys, nil
}

// ChunkKeysFor returns every chunk overlapped by the bounding box of p.
// A stroke without points belongs to no chunk. A stroke spanning more than
// MaxChunksPerOp chunks is a ValidationError.
func (s *Store) ChunkKeysFor(p *models.StrokePath) ([]ChunkKey, error) {
	r, ok := p.Bounds()
	if !ok {
		return nil, nil
	}
	return s.chunksInRect(r)
}

// Check reports whether Save would accept p, without touching the backend.
func (s *Store) Check(p *models.StrokePath) error {
	if err := validateStroke(p); err != nil {
		return err
	}
	_, err := s.ChunkKeysFor(p)
	return err
}

func validateStroke(p *models.StrokePath) error {
	if p == nil {
		return models.NewValidationError("stroke", "is required")
	}
	if p.ID == "" {
		return models.NewValidationError("id", "is required")
	}
	if len(p.Points) == 0 {
		return models.NewValidationError("points", "must contain at least one point")
	}
	for _, pt := range p.Points {
		if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
			return models.NewValidationError("points", "must be finite")
		}
	}
	return nil
}

// Save persists p and registers it in every chunk it overlaps. Chunks that
// grow past MaxPerChunk evict their oldest strokes; an evicted stroke is
// removed from all of its chunks and its content is deleted. Save returns
// the number of strokes evicted.
func (s *Store) Save(ctx context.Context, p *models.StrokePath) (evicted int, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStorageOp("chunks", "save", time.Since(start), err)
		if err == nil {
			metrics.RecordStrokeSaved(evicted)
		}
	}()

	if err := validateStroke(p); err != nil {
		return 0, err
	}
	keys, err := s.ChunkKeysFor(p)
	if err != nil {
		return 0, err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("encode stroke %s: %w", p.ID, err)
	}
	if err := s.kv.HSet(ctx, drawingsKey, p.ID, string(data)); err != nil {
		return 0, fmt.Errorf("store stroke %s: %w", p.ID, err)
	}
	if _, err := s.kv.HIncrBy(ctx, statsKey, statStrokes, 1); err != nil {
		logging.Debug().Err(err).Msg("Failed to update stroke counter")
	}

	for _, key := range keys {
		victims, err := s.addToChunk(ctx, key.String(), p)
		if err != nil {
			return evicted, err
		}
		evicted += len(victims)
		// A backdated stroke can be the oldest member of a full chunk.
		if slices.Contains(victims, p.ID) {
			break
		}
	}
	return evicted, nil
}

// addToChunk registers p in one chunk, trims it back to capacity and
// returns the evicted ids.
func (s *Store) addToChunk(ctx context.Context, key string, p *models.StrokePath) ([]string, error) {
	if err := s.kv.ZAdd(ctx, key, float64(p.CreatedAt), p.ID); err != nil {
		return nil, fmt.Errorf("index stroke %s in %s: %w", p.ID, key, err)
	}
	if err := s.kv.Expire(ctx, key, s.cfg.ChunkTTL); err != nil {
		return nil, fmt.Errorf("refresh ttl of %s: %w", key, err)
	}

	n, err := s.kv.ZCard(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", key, err)
	}
	over := n - int64(s.cfg.MaxPerChunk)
	if over <= 0 {
		return nil, nil
	}

	victims, err := s.kv.ZRange(ctx, key, 0, over-1)
	if err != nil {
		return nil, fmt.Errorf("list oldest in %s: %w", key, err)
	}
	for _, id := range victims {
		if err := s.evict(ctx, key, id); err != nil {
			return nil, err
		}
	}
	logging.Debug().Str("chunk", key).Int("evicted", len(victims)).Msg("Chunk over capacity, evicted oldest strokes")
	return victims, nil
}

// evict removes id from every chunk it was registered in and deletes its
// content. from is always cleared, even if the content is already gone.
func (s *Store) evict(ctx context.Context, from, id string) error {
	keys := []string{from}
	if p, err := s.Get(ctx, id); err == nil {
		others, err := s.ChunkKeysFor(p)
		if err != nil {
			// Saved under a larger MaxChunksPerOp; other chunks keep a
			// dangling id until their TTL runs out.
			logging.Warn().Err(err).Str("stroke_id", id).Msg("Cannot enumerate chunks of evicted stroke")
		}
		for _, k := range others {
			if ks := k.String(); ks != from {
				keys = append(keys, ks)
			}
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	for _, k := range keys {
		if err := s.kv.ZRem(ctx, k, id); err != nil {
			return fmt.Errorf("unindex stroke %s from %s: %w", id, k, err)
		}
	}
	if err := s.kv.HDel(ctx, drawingsKey, id); err != nil {
		return fmt.Errorf("delete stroke %s: %w", id, err)
	}
	if _, err := s.kv.HIncrBy(ctx, statsKey, statStrokes, -1); err != nil {
		logging.Debug().Err(err).Msg("Failed to update stroke counter")
	}
	return nil
}

// ErrNotFound is returned by Get for an unknown stroke id.
var ErrNotFound = errors.New("stroke not found")

// Get loads one stroke.
func (s *Store) Get(ctx context.Context, id string) (*models.StrokePath, error) {
	raw, err := s.kv.HGet(ctx, drawingsKey, id)
	if errors.Is(err, kv.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load stroke %s: %w", id, err)
	}
	var p models.StrokePath
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode stroke %s: %w", id, err)
	}
	return &p, nil
}

// ChunkMembers returns the stroke ids in a chunk, oldest first.
func (s *Store) ChunkMembers(ctx context.Context, key ChunkKey) ([]string, error) {
	return s.kv.ZRange(ctx, key.String(), 0, -1)
}

// LoadViewport returns the strokes intersecting the rectangle (x, y, w, h)
// padded by ViewportMargin, oldest first.
func (s *Store) LoadViewport(ctx context.Context, x, y, width, height float64) (paths []*models.StrokePath, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStorageOp("chunks", "load_viewport", time.Since(start), err)
		if err == nil {
			metrics.StrokesLoaded.Observe(float64(len(paths)))
		}
	}()

	for _, v := range []float64{x, y, width, height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, models.NewValidationError("viewport", "must be finite")
		}
	}
	if width < 0 || height < 0 {
		return nil, models.NewValidationError("viewport", "width and height must not be negative")
	}
	area := models.Rect{MinX: x, MinY: y, MaxX: x + width, MaxY: y + height}.Expand(s.cfg.ViewportMargin)
	keys, err := s.chunksInRect(area)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, k := range keys {
		members, err := s.kv.ZRange(ctx, k.String(), 0, -1)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", k, err)
		}
		for _, id := range members {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []*models.StrokePath{}, nil
	}

	raw, err := s.kv.HMGet(ctx, drawingsKey, ids...)
	if err != nil {
		return nil, fmt.Errorf("load strokes: %w", err)
	}

	paths = make([]*models.StrokePath, 0, len(raw))
	for _, id := range ids {
		data, ok := raw[id]
		if !ok {
			continue
		}
		var p models.StrokePath
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			logging.Warn().Err(err).Str("stroke_id", id).Msg("Skipping undecodable stroke")
			continue
		}
		if intersects(&p, area) {
			paths = append(paths, &p)
		}
	}

	sort.Slice(paths, func(i, j int) bool {
		if paths[i].CreatedAt != paths[j].CreatedAt {
			return paths[i].CreatedAt < paths[j].CreatedAt
		}
		return paths[i].ID < paths[j].ID
	})
	return paths, nil
}

// intersects reports whether the polyline of p touches r.
func intersects(p *models.StrokePath, r models.Rect) bool {
	pts := p.Points
	if len(pts) == 1 {
		return r.Contains(pts[0])
	}
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		if geo.SegmentIntersectsRect(a.X, a.Y, b.X, b.Y, r.MinX, r.MinY, r.MaxX, r.MaxY) {
			return true
		}
	}
	return false
}

// Count returns the number of stored strokes as tracked by the store's
// counter.
func (s *Store) Count(ctx context.Context) (int64, error) {
	raw, err := s.kv.HGet(ctx, statsKey, statStrokes)
	if errors.Is(err, kv.ErrNil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}
