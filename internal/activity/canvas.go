// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/geocanvas/internal/kv"
	"github.com/tomtom215/geocanvas/internal/models"
)

// SaveCanvas stores an opaque canvas snapshot for activity id on behalf of
// identity, who must pass CanContribute.
func (s *Store) SaveCanvas(ctx context.Context, id, identity string, data []byte) error {
	if len(data) == 0 {
		return models.NewValidationError("canvas", "is required")
	}
	if len(data) > s.cfg.MaxCanvasBytes {
		return models.NewValidationError("canvas", fmt.Sprintf("exceeds %d bytes", s.cfg.MaxCanvasBytes))
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if !s.CanContribute(ctx, id, identity) {
		return ErrForbidden
	}
	if err := s.kv.Set(ctx, canvasPrefix+id, string(data), 0); err != nil {
		return fmt.Errorf("store canvas %s: %w", id, err)
	}
	_, err := s.Touch(ctx, id)
	return err
}

// LoadCanvas returns the canvas snapshot of activity id.
func (s *Store) LoadCanvas(ctx context.Context, id string) ([]byte, error) {
	raw, err := s.kv.Get(ctx, canvasPrefix+id)
	if errors.Is(err, kv.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load canvas %s: %w", id, err)
	}
	return []byte(raw), nil
}
