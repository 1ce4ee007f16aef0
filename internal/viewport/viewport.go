// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

// Package viewport tracks which clients can see which part of the canvas.
//
// The index is a uniform grid over pixel space. A client is registered in
// every cell its declared viewport spans, so finding the clients that can
// see a point is one map lookup followed by an exact containment check
// against each candidate's stored viewport. The grid is only a pre-filter:
// a client is never reported for a point outside its viewport.
//
// Time complexity:
//   - Update: O(c) where c = cells spanned by the old and new viewports
//   - ClientsVisibleAtPoint: O(k) where k = clients registered in one cell
//   - ClientsForPath: O(s*k) with s <= MaxPathSamples
//   - Remove: O(c)
package viewport

import (
	"math"
	"sort"
	"sync"

	"github.com/tomtom215/geocanvas/internal/models"
)

const (
	// DefaultCellSize is the grid cell edge in pixels.
	DefaultCellSize = 500
	// DefaultMaxCells bounds how many cells a single viewport is registered
	// in. Larger viewports are kept on a wide list checked on every lookup.
	DefaultMaxCells = 4096
	// MaxPathSamples is the number of points ClientsForPath inspects.
	MaxPathSamples = 10
)

type cellKey struct {
	X, Y int64
}

type entry struct {
	viewport models.Viewport
	cells    []cellKey
	wide     bool
}

// Index maps grid cells to the clients whose viewport covers them. It is
// safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	cellSize float64
	maxCells int
	cells    map[cellKey]map[string]struct{}
	clients  map[string]*entry
	wide     map[string]struct{}
}

// New creates an index with the given cell size in pixels. A non-positive
// size selects DefaultCellSize.
func New(cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &Index{
		cellSize: cellSize,
		maxCells: DefaultMaxCells,
		cells:    make(map[cellKey]map[string]struct{}),
		clients:  make(map[string]*entry),
		wide:     make(map[string]struct{}),
	}
}

// CellSize returns the grid cell edge in pixels.
func (ix *Index) CellSize() float64 {
	return ix.cellSize
}

func (ix *Index) cellOf(x, y float64) cellKey {
	return cellKey{
		X: int64(math.Floor(x / ix.cellSize)),
		Y: int64(math.Floor(y / ix.cellSize)),
	}
}

// Update replaces clientID's viewport. The client is removed from every
// cell it occupied and registered in the cells the new viewport spans.
func (ix *Index) Update(clientID string, vp models.Viewport) {
	vp.Width = math.Max(vp.Width, 0)
	vp.Height = math.Max(vp.Height, 0)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.clients[clientID]; ok {
		ix.unregisterLocked(clientID, old)
	}

	e := &entry{viewport: vp}
	lo := ix.cellOf(vp.X, vp.Y)
	hi := ix.cellOf(vp.X+vp.Width, vp.Y+vp.Height)
	span := (hi.X - lo.X + 1) * (hi.Y - lo.Y + 1)
	if span > int64(ix.maxCells) || span <= 0 {
		e.wide = true
		ix.wide[clientID] = struct{}{}
	} else {
		e.cells = make([]cellKey, 0, span)
		for cy := lo.Y; cy <= hi.Y; cy++ {
			for cx := lo.X; cx <= hi.X; cx++ {
				key := cellKey{X: cx, Y: cy}
				members, ok := ix.cells[key]
				if !ok {
					members = make(map[string]struct{}, 4)
					ix.cells[key] = members
				}
				members[clientID] = struct{}{}
				e.cells = append(e.cells, key)
			}
		}
	}
	ix.clients[clientID] = e
}

// Remove purges clientID from every cell and from the viewport map. It
// reports whether the client was known.
func (ix *Index) Remove(clientID string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e, ok := ix.clients[clientID]
	if !ok {
		return false
	}
	ix.unregisterLocked(clientID, e)
	delete(ix.clients, clientID)
	return true
}

// unregisterLocked removes the client from its cells (caller must hold lock).
func (ix *Index) unregisterLocked(clientID string, e *entry) {
	if e.wide {
		delete(ix.wide, clientID)
		return
	}
	for _, key := range e.cells {
		members := ix.cells[key]
		delete(members, clientID)
		if len(members) == 0 {
			delete(ix.cells, key)
		}
	}
}

// Viewport returns the stored viewport of clientID.
func (ix *Index) Viewport(clientID string) (models.Viewport, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.clients[clientID]
	if !ok {
		return models.Viewport{}, false
	}
	return e.viewport, true
}

// Has reports whether clientID has declared a viewport.
func (ix *Index) Has(clientID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.clients[clientID]
	return ok
}

// ClientsVisibleAtPoint returns the clients whose viewport contains (x, y).
func (ix *Index) ClientsVisibleAtPoint(x, y float64) Set {
	out := make(Set)
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ix.collectLocked(x, y, out)
	return out
}

// ClientsForPath returns the union of ClientsVisibleAtPoint over at most
// MaxPathSamples evenly spaced points of the path, first and last included.
// A client whose viewport only covers the path between two samples can be
// missed.
func (ix *Index) ClientsForPath(points []models.Point) Set {
	out := make(Set)
	if len(points) == 0 {
		return out
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, i := range sampleIndices(len(points), MaxPathSamples) {
		ix.collectLocked(points[i].X, points[i].Y, out)
	}
	return out
}

func (ix *Index) collectLocked(x, y float64, out Set) {
	for id := range ix.cells[ix.cellOf(x, y)] {
		if ix.clients[id].viewport.Contains(x, y) {
			out[id] = struct{}{}
		}
	}
	for id := range ix.wide {
		if ix.clients[id].viewport.Contains(x, y) {
			out[id] = struct{}{}
		}
	}
}

// sampleIndices returns up to k indices spread evenly over [0, n).
func sampleIndices(n, k int) []int {
	if n <= k {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i * (n - 1) / (k - 1)
	}
	return idx
}

// Stats describes the index size.
type Stats struct {
	Clients int `json:"clients"`
	Cells   int `json:"cells"`
	Wide    int `json:"wide"`
}

// Stats returns the current index size.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{Clients: len(ix.clients), Cells: len(ix.cells), Wide: len(ix.wide)}
}

// Set is a set of client ids.
type Set map[string]struct{}

// Contains reports whether id is in the set.
func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
