// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package kv

import (
	"context"
	"fmt"
	"sort"
)

// HashBatchSize is the number of fields EachHashValue requests per HMGet.
const HashBatchSize = 256

// Union returns the sorted union of the sets stored at keys. Missing keys
// contribute nothing.
func Union(ctx context.Context, b Backend, keys ...string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, key := range keys {
		members, err := b.SMembers(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		for _, m := range members {
			seen[m] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// EachHashValue fetches the fields of the hash at key in batches and calls
// fn for every field that exists, in fields order, until fn returns false.
func EachHashValue(ctx context.Context, b Backend, key string, fields []string, fn func(field, value string) bool) error {
	for lo := 0; lo < len(fields); lo += HashBatchSize {
		batch := fields[lo:min(lo+HashBatchSize, len(fields))]
		values, err := b.HMGet(ctx, key, batch...)
		if err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}
		for _, f := range batch {
			v, ok := values[f]
			if !ok {
				continue
			}
			if !fn(f, v) {
				return nil
			}
		}
	}
	return nil
}
