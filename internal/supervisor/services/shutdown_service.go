// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package services

import (
	"context"
	"sync"

	"github.com/tomtom215/geocanvas/internal/logging"
)

// Shutdowner is a component that is already running and stops on Shutdown.
// Satisfied by *relay.EmbeddedServer.
type Shutdowner interface {
	Shutdown()
}

// ShutdownService ties an eagerly started component to the tree: Serve
// blocks until the tree stops, then shuts the component down once.
type ShutdownService struct {
	target Shutdowner
	name   string
	once   sync.Once
}

// NewShutdownService wraps target under name.
func NewShutdownService(name string, target Shutdowner) *ShutdownService {
	return &ShutdownService{target: target, name: name}
}

// Serve implements suture.Service.
func (s *ShutdownService) Serve(ctx context.Context) error {
	<-ctx.Done()
	s.Shutdown()
	return ctx.Err()
}

// Shutdown stops the target. Later calls are no-ops.
func (s *ShutdownService) Shutdown() {
	s.once.Do(func() {
		logging.Info().Str("service", s.name).Msg("Shutting down")
		s.target.Shutdown()
	})
}

// String names the service in supervisor events.
func (s *ShutdownService) String() string {
	return s.name
}
