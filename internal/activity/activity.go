// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

// Package activity stores location-scoped shared canvases ("activities")
// and enforces their contribution permissions.
//
// Key layout:
//
//	activity:<id>                 activity JSON, no expiry
//	activity:geo:<hash>           ids per geohash prefix, precisions 4..7
//	activity:street:<street>      ids per normalized street name
//	activity:owner:<owner>        ids per owner identity
//	activity:default:<geohash6>   id of the shared default activity of an area
//	activity:canvas:<id>          opaque canvas snapshot
//	activity:stats                counters
//
// Record updates are read-modify-write of the JSON value, serialized per id
// within a process. Index and counter updates use the backend's atomic set
// and increment primitives.
package activity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/geocanvas/internal/cache"
	"github.com/tomtom215/geocanvas/internal/geo"
	"github.com/tomtom215/geocanvas/internal/kv"
	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/metrics"
	"github.com/tomtom215/geocanvas/internal/models"
	"github.com/tomtom215/geocanvas/internal/validation"
)

const (
	keyPrefix     = "activity:"
	geoPrefix     = "activity:geo:"
	streetPrefix  = "activity:street:"
	ownerPrefix   = "activity:owner:"
	defaultPrefix = "activity:default:"
	canvasPrefix  = "activity:canvas:"
	statsKey      = "activity:stats"

	statTotal    = "total"
	statDefaults = "defaults"

	defaultTitle     = "Untitled Activity"
	defaultAreaTitle = "Community Canvas"

	// defaultAttempts bounds FindOrCreateDefault's read-claim loop.
	defaultAttempts  = 10
	defaultRetryWait = 5 * time.Millisecond
)

var (
	// ErrNotFound is returned for an unknown activity or canvas.
	ErrNotFound = errors.New("activity not found")
	// ErrForbidden is returned when the actor lacks the role an operation needs.
	ErrForbidden = errors.New("forbidden")
)

// Config holds the activity store parameters.
type Config struct {
	MinPrecision        int
	MaxPrecision        int
	DefaultKeyPrecision int
	SampleLattice       int
	ProximityMeters     float64
	BucketTTL           time.Duration
	DefaultLimit        int
	MaxLimit            int
	PermissionCacheTTL  time.Duration
	PermissionCacheSize int
	MaxCanvasBytes      int
}

// DefaultConfig returns the production parameters.
func DefaultConfig() Config {
	return Config{
		MinPrecision:        4,
		MaxPrecision:        7,
		DefaultKeyPrecision: 6,
		SampleLattice:       geo.DefaultSampleLattice,
		ProximityMeters:     geo.DefaultProximityMeters,
		BucketTTL:           90 * 24 * time.Hour,
		DefaultLimit:        200,
		MaxLimit:            1000,
		PermissionCacheTTL:  5 * time.Second,
		PermissionCacheSize: 10000,
		MaxCanvasBytes:      5 << 20,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MinPrecision <= 0 {
		c.MinPrecision = def.MinPrecision
	}
	if c.MaxPrecision < c.MinPrecision {
		c.MaxPrecision = max(def.MaxPrecision, c.MinPrecision)
	}
	if c.DefaultKeyPrecision <= 0 {
		c.DefaultKeyPrecision = def.DefaultKeyPrecision
	}
	if c.SampleLattice <= 1 {
		c.SampleLattice = def.SampleLattice
	}
	if c.ProximityMeters <= 0 {
		c.ProximityMeters = def.ProximityMeters
	}
	if c.BucketTTL <= 0 {
		c.BucketTTL = def.BucketTTL
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = def.DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = def.MaxLimit
	}
	if c.PermissionCacheTTL < 0 {
		c.PermissionCacheTTL = 0
	}
	if c.PermissionCacheSize <= 0 {
		c.PermissionCacheSize = def.PermissionCacheSize
	}
	if c.MaxCanvasBytes <= 0 {
		c.MaxCanvasBytes = def.MaxCanvasBytes
	}
}

// Store is the activity store.
type Store struct {
	kv    kv.Backend
	cfg   Config
	perms *cache.Cache[*permSnapshot]
	audit *logging.AuditLogger
	locks keyLocks
}

// New creates a Store on b. Zero fields of cfg take their defaults; a zero
// PermissionCacheTTL disables the permission cache.
func New(b kv.Backend, cfg Config) *Store {
	cfg.applyDefaults()
	return &Store{
		kv:    b,
		cfg:   cfg,
		perms: cache.New[*permSnapshot]("permissions", cfg.PermissionCacheTTL, cfg.PermissionCacheSize),
		audit: logging.NewAuditLogger(),
	}
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// Sweeper is a background task owned by the supervisor tree.
type Sweeper interface {
	Serve(ctx context.Context) error
	String() string
}

// CacheSweeper returns the expiry sweeper of the permission cache.
func (s *Store) CacheSweeper() Sweeper {
	return s.perms
}

// keyLocks serializes read-modify-write cycles per activity id.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(id string) func() {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*keyLock)
	}
	l, ok := k.m[id]
	if !ok {
		l = &keyLock{}
		k.m[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, id)
		}
		k.mu.Unlock()
	}
}

// CreateInput describes an explicitly created activity.
type CreateInput struct {
	Title        string     `json:"title" validate:"max=120"`
	Description  string     `json:"description" validate:"max=2000"`
	Location     geo.Point  `json:"location"`
	UserLocation *geo.Point `json:"userLocation,omitempty"`
	Address      string     `json:"address" validate:"max=300"`
	Street       string     `json:"street" validate:"max=200"`

	// OwnerID is the durable identity of the owner. Required.
	OwnerID string `json:"-"`
	// CreatorID is the session that created the activity.
	CreatorID string `json:"-"`
}

// Create stores a new activity owned by in.OwnerID. When in.UserLocation is
// set, the creator must be within ProximityMeters of in.Location.
// Contributions start disabled and the owner is the only approved
// contributor.
func (s *Store) Create(ctx context.Context, in CreateInput) (a *models.Activity, err error) {
	start := time.Now()
	defer func() { metrics.RecordStorageOp("activities", "create", time.Since(start), err) }()

	if strings.TrimSpace(in.OwnerID) == "" {
		return nil, models.NewValidationError("ownerId", "is required")
	}
	if verr := validation.ValidateStruct(&in); verr != nil {
		return nil, models.NewValidationError(verr.FirstField(), verr.Error())
	}
	if !in.Location.Valid() {
		return nil, models.NewValidationError("location", "coordinates out of range")
	}
	if in.UserLocation != nil && !geo.IsWithinRadius(*in.UserLocation, in.Location, s.cfg.ProximityMeters) {
		return nil, models.NewValidationError("location",
			fmt.Sprintf("must be within %.0f m of your position", s.cfg.ProximityMeters))
	}

	now := models.NowMillis()
	a = &models.Activity{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		OwnerID:     in.OwnerID,
		CreatorID:   in.CreatorID,
		Location:    in.Location,
		Geohash:     geo.Encode(in.Location.Lat, in.Location.Lng, s.cfg.MaxPrecision),
		Address:     in.Address,
		Street:      in.Street,
		CreatedAt:   now,
		LastActive:  now,
		Permissions: models.NewPermissions(in.OwnerID),
	}
	if a.Title == "" {
		a.Title = defaultTitle
	}

	if err := s.put(ctx, a); err != nil {
		return nil, err
	}
	if err := s.index(ctx, a); err != nil {
		return nil, err
	}
	if _, err := s.kv.HIncrBy(ctx, statsKey, statTotal, 1); err != nil {
		logging.Warn().Err(err).Msg("Failed to update activity counter")
	}
	metrics.ActivitiesCreated.WithLabelValues("user").Inc()
	logging.Info().Str("activity_id", a.ID).Str("geohash", a.Geohash).Msg("Activity created")
	return a, nil
}

// FindOrCreateDefault returns the shared default activity of the area
// around location, creating it if needed. Requests anywhere in the same
// DefaultKeyPrecision cell converge on one record; concurrent creators race
// on SetNX and the losers adopt the winner's record. created reports whether
// this call created it.
func (s *Store) FindOrCreateDefault(ctx context.Context, location geo.Point) (a *models.Activity, created bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordStorageOp("activities", "find_or_create_default", time.Since(start), err) }()

	if !location.Valid() {
		return nil, false, models.NewValidationError("location", "coordinates out of range")
	}
	area := geo.Encode(location.Lat, location.Lng, s.cfg.DefaultKeyPrecision)
	pointer := defaultPrefix + area

	for attempt := 0; attempt < defaultAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(time.Duration(attempt) * defaultRetryWait):
			}
		}

		id, err := s.kv.Get(ctx, pointer)
		switch {
		case err == nil:
			existing, err := s.Get(ctx, id)
			if err == nil {
				return existing, false, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return nil, false, err
			}
			if err := s.clearDangling(ctx, pointer, id); err != nil {
				return nil, false, err
			}
			continue
		case !errors.Is(err, kv.ErrNil):
			return nil, false, fmt.Errorf("read %s: %w", pointer, err)
		}

		a, won, err := s.claimDefault(ctx, pointer, area)
		if err != nil {
			return nil, false, err
		}
		if won {
			return a, true, nil
		}
	}
	return nil, false, fmt.Errorf("claim default activity %s: pointer did not settle after %d attempts", area, defaultAttempts)
}

// clearDangling deletes a pointer whose activity no longer exists. Only the
// caller that claims the stale id deletes it, so a pointer set by a
// concurrent repairer is never removed.
func (s *Store) clearDangling(ctx context.Context, pointer, staleID string) error {
	claimed, err := s.kv.SetNX(ctx, pointer+":stale:"+staleID, "1", time.Minute)
	if err != nil {
		return fmt.Errorf("claim stale pointer %s: %w", pointer, err)
	}
	if !claimed {
		return nil
	}
	logging.Warn().Str("pointer", pointer).Str("stale_id", staleID).Msg("Default activity pointer was dangling, clearing it")
	if err := s.kv.Del(ctx, pointer); err != nil {
		return fmt.Errorf("clear %s: %w", pointer, err)
	}
	return nil
}

// claimDefault writes a new default activity for area and races for the
// pointer. The loser removes its record and reports won=false.
func (s *Store) claimDefault(ctx context.Context, pointer, area string) (*models.Activity, bool, error) {
	center, err := geo.Decode(area)
	if err != nil {
		return nil, false, err
	}
	now := models.NowMillis()
	a := &models.Activity{
		ID:          uuid.NewString(),
		Title:       defaultAreaTitle,
		OwnerID:     models.SystemOwner,
		CreatorID:   models.SystemOwner,
		Location:    center,
		Geohash:     geo.Encode(center.Lat, center.Lng, s.cfg.MaxPrecision),
		CreatedAt:   now,
		LastActive:  now,
		IsDefault:   true,
		Permissions: models.NewPermissions(models.SystemOwner),
	}
	a.Permissions.AllowContributions = true

	// The record is written before the pointer so a winner's id always
	// resolves for the losers.
	if err := s.put(ctx, a); err != nil {
		return nil, false, err
	}
	won, err := s.kv.SetNX(ctx, pointer, a.ID, 0)
	if err != nil {
		return nil, false, fmt.Errorf("claim default activity %s: %w", area, err)
	}
	if !won {
		if err := s.kv.Del(ctx, keyPrefix+a.ID); err != nil {
			logging.Warn().Err(err).Str("activity_id", a.ID).Msg("Failed to remove losing default activity")
		}
		return nil, false, nil
	}

	if err := s.index(ctx, a); err != nil {
		return nil, false, err
	}
	if _, err := s.kv.HIncrBy(ctx, statsKey, statTotal, 1); err != nil {
		logging.Warn().Err(err).Msg("Failed to update activity counter")
	}
	if _, err := s.kv.HIncrBy(ctx, statsKey, statDefaults, 1); err != nil {
		logging.Warn().Err(err).Msg("Failed to update default activity counter")
	}
	metrics.ActivitiesCreated.WithLabelValues("default").Inc()
	logging.Info().Str("activity_id", a.ID).Str("area", area).Msg("Default activity created")
	return a, true, nil
}

// Get loads one activity.
func (s *Store) Get(ctx context.Context, id string) (*models.Activity, error) {
	if id == "" || strings.Contains(id, ":") {
		return nil, ErrNotFound
	}
	raw, err := s.kv.Get(ctx, keyPrefix+id)
	if errors.Is(err, kv.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load activity %s: %w", id, err)
	}
	return decode(id, raw)
}

func decode(id, raw string) (*models.Activity, error) {
	var a models.Activity
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("decode activity %s: %w", id, err)
	}
	return &a, nil
}

func (s *Store) put(ctx context.Context, a *models.Activity) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode activity %s: %w", a.ID, err)
	}
	if err := s.kv.Set(ctx, keyPrefix+a.ID, string(data), 0); err != nil {
		return fmt.Errorf("store activity %s: %w", a.ID, err)
	}
	return nil
}

// index adds a to its geohash, street and owner indexes.
func (s *Store) index(ctx context.Context, a *models.Activity) error {
	for p := s.cfg.MinPrecision; p <= s.cfg.MaxPrecision && p <= len(a.Geohash); p++ {
		key := geoPrefix + a.Geohash[:p]
		if err := s.kv.SAdd(ctx, key, a.ID); err != nil {
			return fmt.Errorf("index activity %s in %s: %w", a.ID, key, err)
		}
		if err := s.kv.Expire(ctx, key, s.cfg.BucketTTL); err != nil {
			return fmt.Errorf("refresh ttl of %s: %w", key, err)
		}
	}
	if street := NormalizeStreet(a.Street); street != "" {
		if err := s.kv.SAdd(ctx, streetPrefix+street, a.ID); err != nil {
			return fmt.Errorf("index activity %s by street: %w", a.ID, err)
		}
	}
	if err := s.kv.SAdd(ctx, ownerPrefix+a.OwnerID, a.ID); err != nil {
		return fmt.Errorf("index activity %s by owner: %w", a.ID, err)
	}
	return nil
}

// StatsUpdate is a partial update of an activity's counters. Nil fields are
// left unchanged.
type StatsUpdate struct {
	ParticipantCount *int64 `json:"participantCount,omitempty" validate:"omitempty,gte=0"`
	DrawingCount     *int64 `json:"drawingCount,omitempty" validate:"omitempty,gte=0"`
}

// UpdateStats merges upd into the activity and refreshes LastActive.
func (s *Store) UpdateStats(ctx context.Context, id string, upd StatsUpdate) (*models.Activity, error) {
	return s.mutate(ctx, id, func(a *models.Activity) error {
		if upd.ParticipantCount != nil {
			a.ParticipantCount = max(*upd.ParticipantCount, 0)
		}
		if upd.DrawingCount != nil {
			a.DrawingCount = max(*upd.DrawingCount, 0)
		}
		return nil
	})
}

// AddDrawing increments the drawing count and refreshes LastActive.
func (s *Store) AddDrawing(ctx context.Context, id string) (*models.Activity, error) {
	return s.mutate(ctx, id, func(a *models.Activity) error {
		a.DrawingCount++
		return nil
	})
}

// Touch refreshes LastActive.
func (s *Store) Touch(ctx context.Context, id string) (*models.Activity, error) {
	return s.mutate(ctx, id, func(*models.Activity) error { return nil })
}

// mutate applies fn to the stored activity under the per-id lock, refreshes
// LastActive and writes it back. fn returning an error aborts the write.
func (s *Store) mutate(ctx context.Context, id string, fn func(a *models.Activity) error) (a *models.Activity, err error) {
	start := time.Now()
	defer func() { metrics.RecordStorageOp("activities", "update", time.Since(start), err) }()

	unlock := s.locks.lock(id)
	defer unlock()

	a, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	a.LastActive = max(models.NowMillis(), a.LastActive)
	if err := s.put(ctx, a); err != nil {
		return nil, err
	}
	s.perms.Delete(id)
	return a, nil
}

// Stats returns the store counters.
func (s *Store) Stats(ctx context.Context) (*models.ActivityStats, error) {
	raw, err := s.kv.HGetAll(ctx, statsKey)
	if err != nil {
		return nil, fmt.Errorf("load activity stats: %w", err)
	}
	stats := &models.ActivityStats{}
	stats.TotalActivities, _ = strconv.ParseInt(raw[statTotal], 10, 64)
	stats.DefaultActivities, _ = strconv.ParseInt(raw[statDefaults], 10, 64)
	return stats, nil
}
