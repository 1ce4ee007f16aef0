// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

/*
Package cache provides a small thread-safe TTL cache.

The activity store keeps a short-lived copy of each activity's permission
record here so that every draw on a geo-anchored canvas does not re-read the
activity from the backend. Entries are invalidated on permission changes made
through the same process; changes made by another server instance become
visible after the TTL.

Usage:

	c := cache.New[*models.Permissions]("permissions", 5*time.Second, 10000)
	c.Set(activityID, perms)
	if perms, ok := c.Get(activityID); ok {
	    // use perms
	}

Expired entries are removed lazily on Get. Serve runs a periodic sweep and
implements suture.Service so the supervisor tree can own it.

Metrics: geocanvas_cache_hits_total, geocanvas_cache_misses_total and
geocanvas_cache_entries, all labelled with the cache name.
*/
package cache
