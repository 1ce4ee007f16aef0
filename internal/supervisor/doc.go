// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

/*
Package supervisor runs the long-lived geocanvas components under a suture v4
supervisor tree.

	geocanvas
	├── data-layer
	│   ├── activity permission cache sweeper
	│   └── room registry idle sweep
	├── messaging-layer
	│   ├── websocket hub
	│   ├── NATS relay (relay.enabled)
	│   └── embedded NATS server (relay.embedded_server)
	└── api-layer
	    └── HTTP server

Each layer restarts its own services with suture's backoff. Supervisor events
are logged through sutureslog into the zerolog-backed slog handler from
internal/logging.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(rooms)
	tree.AddMessagingService(hub)
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))
	err = tree.Serve(ctx)

Serve returns once ctx is canceled and every service stopped or the
shutdown timeout elapsed. UnstoppedServiceReport names the stragglers.
*/
package supervisor
