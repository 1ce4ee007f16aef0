// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/tomtom215/geocanvas/internal/activity"
	"github.com/tomtom215/geocanvas/internal/api"
	"github.com/tomtom215/geocanvas/internal/auth"
	"github.com/tomtom215/geocanvas/internal/canvas"
	"github.com/tomtom215/geocanvas/internal/chunkstore"
	"github.com/tomtom215/geocanvas/internal/config"
	"github.com/tomtom215/geocanvas/internal/geoindex"
	"github.com/tomtom215/geocanvas/internal/kv"
	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/relay"
	"github.com/tomtom215/geocanvas/internal/room"
	"github.com/tomtom215/geocanvas/internal/supervisor"
	"github.com/tomtom215/geocanvas/internal/supervisor/services"
	"github.com/tomtom215/geocanvas/internal/viewport"
	"github.com/tomtom215/geocanvas/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app is the wired server. Close releases what the supervisor tree does
// not own.
type app struct {
	cfg        *config.Config
	backend    kv.Backend
	rooms      *room.Registry
	activities *activity.Store
	service    *canvas.Service
	hub        *websocket.Hub
	relay      *relay.NATSRelay
	embedded   *relay.EmbeddedServer
	handler    http.Handler
	server     *http.Server
}

// newApp opens storage and builds every component from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	backend, err := kv.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a := &app{cfg: cfg, backend: backend}

	instanceID := cfg.Server.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	if err := a.connectRelay(instanceID); err != nil {
		a.Close()
		return nil, err
	}

	chunks := chunkstore.New(backend, cfg.ChunkStore())
	geo := geoindex.New(backend, cfg.GeoIndex())
	a.activities = activity.New(backend, cfg.ActivityStore())
	a.rooms = room.NewRegistry(cfg.RoomRegistry())

	deps := canvas.Deps{
		Rooms:      a.rooms,
		Viewports:  viewport.New(cfg.Canvas.ViewportGrid),
		Chunks:     chunks,
		Geo:        geo,
		Activities: a.activities,
		InstanceID: instanceID,
	}
	if a.relay != nil {
		deps.Publisher = a.relay
	}
	a.service = canvas.New(cfg.CanvasService(), deps)
	if a.relay != nil {
		a.relay.SetHandler(a.service.ApplyRemote)
	}
	a.hub = websocket.NewHub(cfg.Transport(), a.service)

	resolver, err := newResolver(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	handler := api.NewHandler(api.Deps{
		Canvas:     a.service,
		Rooms:      a.rooms,
		Chunks:     chunks,
		Geo:        geo,
		Activities: a.activities,
		Backend:    backend,
		Version:    version,
	})
	ws := a.hub.ServeWS(func(r *http.Request) string {
		id, _ := auth.FromContext(r.Context())
		return id.ID
	})
	router := api.NewRouter(handler, api.NewChiMiddleware(cfg.HTTPMiddleware()), resolver, ws)
	a.handler = router.Setup()

	a.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	logging.Info().
		Str("instance_id", instanceID).
		Str("backend", backend.Name()).
		Bool("relay", a.relay != nil).
		Bool("viewport_culling", cfg.Canvas.ViewportCulling).
		Msg("Components initialized")
	return a, nil
}

// connectRelay starts the embedded NATS server when configured and
// connects the relay.
func (a *app) connectRelay(instanceID string) error {
	if !a.cfg.Relay.Enabled {
		return nil
	}
	opts := a.cfg.RelayOptions()
	if a.cfg.Relay.EmbeddedServer {
		srv, err := relay.StartEmbedded("127.0.0.1", a.cfg.Relay.EmbeddedPort)
		if err != nil {
			return fmt.Errorf("start embedded NATS server: %w", err)
		}
		a.embedded = srv
		opts.URL = srv.ClientURL()
		logging.Info().Str("url", opts.URL).Msg("Embedded NATS server started")
	}

	rl, err := relay.Connect(opts, instanceID)
	if err != nil {
		return fmt.Errorf("connect relay: %w", err)
	}
	a.relay = rl
	return nil
}

// newResolver builds the identity resolver. Tokens are only accepted when
// a signing secret is configured.
func newResolver(cfg *config.Config) (*auth.Resolver, error) {
	prints, err := auth.NewFingerprinter(cfg.Security.AnonymousSalt)
	if err != nil {
		return nil, fmt.Errorf("anonymous identity: %w", err)
	}
	var tokens *auth.TokenVerifier
	if cfg.Security.JWTSecret != "" {
		tokens, err = auth.NewTokenVerifier(cfg.Security.JWTSecret, cfg.Security.SessionTimeout, cfg.Security.JWTIssuer)
		if err != nil {
			return nil, fmt.Errorf("token verifier: %w", err)
		}
	} else {
		logging.Warn().Msg("No JWT secret configured; every client gets an anonymous identity")
	}
	return auth.NewResolver(tokens, prints, cfg.Security.TrustProxy), nil
}

// register adds every long-lived component to tree.
func (a *app) register(tree *supervisor.SupervisorTree) {
	tree.AddDataService(a.activities.CacheSweeper())
	tree.AddDataService(a.rooms)

	tree.AddMessagingService(a.hub)
	if a.relay != nil {
		tree.AddMessagingService(a.relay)
	}
	if a.embedded != nil {
		tree.AddMessagingService(services.NewShutdownService("relay-server", a.embedded))
	}

	tree.AddAPIService(services.NewHTTPServerService(a.server, a.cfg.Server.ShutdownTimeout))
}

// Close releases the relay connection and storage. The embedded NATS
// server stops with the tree, or here when the tree never ran.
func (a *app) Close() {
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			logging.Warn().Err(err).Msg("Relay close failed")
		}
	}
	if a.embedded != nil {
		a.embedded.Shutdown()
	}
	if err := a.backend.Close(); err != nil {
		logging.Warn().Err(err).Msg("Storage close failed")
	}
}
