// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

/*
Package testinfra starts throwaway dependencies for integration tests with
testcontainers-go.

Everything here is behind the integration build tag:

	go test -tags integration ./...

Example:

	func TestSomethingAgainstRedis(t *testing.T) {
	    testinfra.SkipIfNoDocker(t)

	    ctx := context.Background()
	    redisC, err := testinfra.NewRedisContainer(ctx)
	    if err != nil {
	        t.Fatal(err)
	    }
	    defer testinfra.CleanupContainer(t, ctx, redisC.Container)

	    backend, err := kv.NewRedis(ctx, kv.RedisOptions{Addr: redisC.Addr})
	    ...
	}
*/
package testinfra
