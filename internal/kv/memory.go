// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package kv

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryBackend is a process-local Backend. Expired keys are purged lazily
// on access.
type MemoryBackend struct {
	mu      sync.Mutex
	strs    map[string]string
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]float64
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemory returns an empty MemoryBackend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{
		strs:    make(map[string]string),
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]struct{}),
		zsets:   make(map[string]map[string]float64),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return "memory" }

// Ping implements Backend.
func (m *MemoryBackend) Ping(context.Context) error { return nil }

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }

// purge drops key if its TTL elapsed. Caller holds mu.
func (m *MemoryBackend) purge(key string) {
	if exp, ok := m.expires[key]; ok && !m.now().Before(exp) {
		m.dropLocked(key)
	}
}

func (m *MemoryBackend) dropLocked(key string) {
	delete(m.strs, key)
	delete(m.hashes, key)
	delete(m.sets, key)
	delete(m.zsets, key)
	delete(m.expires, key)
}

func (m *MemoryBackend) existsLocked(key string) bool {
	if _, ok := m.strs[key]; ok {
		return true
	}
	if _, ok := m.hashes[key]; ok {
		return true
	}
	if _, ok := m.sets[key]; ok {
		return true
	}
	_, ok := m.zsets[key]
	return ok
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	v, ok := m.strs[key]
	if !ok {
		return "", ErrNil
	}
	return v, nil
}

// Set implements Backend. A zero ttl clears any previous expiry.
func (m *MemoryBackend) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked(key)
	m.strs[key] = value
	if ttl > 0 {
		m.expires[key] = m.now().Add(ttl)
	}
	return nil
}

// SetNX implements Backend.
func (m *MemoryBackend) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	if m.existsLocked(key) {
		return false, nil
	}
	m.strs[key] = value
	if ttl > 0 {
		m.expires[key] = m.now().Add(ttl)
	}
	return true, nil
}

// Del implements Backend.
func (m *MemoryBackend) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.dropLocked(k)
	}
	return nil
}

// HSet implements Backend.
func (m *MemoryBackend) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

// HGet implements Backend.
func (m *MemoryBackend) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	v, ok := m.hashes[key][field]
	if !ok {
		return "", ErrNil
	}
	return v, nil
}

// HMGet implements Backend. Missing fields are absent from the result.
func (m *MemoryBackend) HMGet(_ context.Context, key string, fields ...string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	out := make(map[string]string, len(fields))
	h := m.hashes[key]
	for _, f := range fields {
		if v, ok := h[f]; ok {
			out[f] = v
		}
	}
	return out, nil
}

// HDel implements Backend.
func (m *MemoryBackend) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	h, ok := m.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	if len(h) == 0 {
		m.dropLocked(key)
	}
	return nil
}

// HIncrBy implements Backend.
func (m *MemoryBackend) HIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	var cur int64
	if v, ok := h[field]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("kv: hash value is not an integer: %w", err)
		}
		cur = n
	}
	cur += delta
	h[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

// HGetAll implements Backend.
func (m *MemoryBackend) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	out := make(map[string]string, len(m.hashes[key]))
	for f, v := range m.hashes[key] {
		out[f] = v
	}
	return out, nil
}

// SAdd implements Backend.
func (m *MemoryBackend) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{}, len(members))
		m.sets[key] = s
	}
	for _, mem := range members {
		s[mem] = struct{}{}
	}
	return nil
}

// SRem implements Backend.
func (m *MemoryBackend) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	s, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, mem := range members {
		delete(s, mem)
	}
	if len(s) == 0 {
		m.dropLocked(key)
	}
	return nil
}

// SMembers implements Backend. Members are returned sorted.
func (m *MemoryBackend) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	out := make([]string, 0, len(m.sets[key]))
	for mem := range m.sets[key] {
		out = append(out, mem)
	}
	sort.Strings(out)
	return out, nil
}

// SCard implements Backend.
func (m *MemoryBackend) SCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	return int64(len(m.sets[key])), nil
}

// ZAdd implements Backend.
func (m *MemoryBackend) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	z, ok := m.zsets[key]
	if !ok {
		z = make(map[string]float64)
		m.zsets[key] = z
	}
	z[member] = score
	return nil
}

// ZRem implements Backend.
func (m *MemoryBackend) ZRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	z, ok := m.zsets[key]
	if !ok {
		return nil
	}
	for _, mem := range members {
		delete(z, mem)
	}
	if len(z) == 0 {
		m.dropLocked(key)
	}
	return nil
}

// ZCard implements Backend.
func (m *MemoryBackend) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	return int64(len(m.zsets[key])), nil
}

// ZRange implements Backend.
func (m *MemoryBackend) ZRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	return sortedMembers(m.zsets[key], start, stop), nil
}

func sortedMembers(z map[string]float64, start, stop int64) []string {
	members := make([]string, 0, len(z))
	for mem := range z {
		members = append(members, mem)
	}
	sort.Slice(members, func(i, j int) bool {
		si, sj := z[members[i]], z[members[j]]
		if si != sj {
			return si < sj
		}
		return members[i] < members[j]
	})
	lo, hi := rankRange(int64(len(members)), start, stop)
	return members[lo:hi]
}

// Expire implements Backend.
func (m *MemoryBackend) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	if !m.existsLocked(key) {
		return nil
	}
	if ttl <= 0 {
		m.dropLocked(key)
		return nil
	}
	m.expires[key] = m.now().Add(ttl)
	return nil
}

// Scan implements Backend. Keys are returned sorted.
func (m *MemoryBackend) Scan(_ context.Context, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("kv: bad scan pattern %q: %w", pattern, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	collect := func(k string) {
		if ok, _ := path.Match(pattern, k); ok {
			seen[k] = struct{}{}
		}
	}
	for k := range m.expires {
		m.purge(k)
	}
	for k := range m.strs {
		collect(k)
	}
	for k := range m.hashes {
		collect(k)
	}
	for k := range m.sets {
		collect(k)
	}
	for k := range m.zsets {
		collect(k)
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// TTL returns the remaining lifetime of key, 0 if it has no expiry and a
// negative duration if it does not exist.
func (m *MemoryBackend) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	if !m.existsLocked(key) {
		return -1
	}
	exp, ok := m.expires[key]
	if !ok {
		return 0
	}
	return exp.Sub(m.now())
}
