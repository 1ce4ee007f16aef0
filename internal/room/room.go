// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package room

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/metrics"
	"github.com/tomtom215/geocanvas/internal/models"
)

// Room states as reported by List.
const (
	StateActive = "active"
	StateIdle   = "idle"
)

// ErrNoRoom is returned for operations on a room that does not exist.
var ErrNoRoom = errors.New("room not found")

// ErrNotMember is returned when a client acts on a room it has not joined.
var ErrNotMember = errors.New("client is not in a room")

// Sender delivers an encoded frame to one connection. Send must not block;
// it returns false when the frame was dropped.
type Sender interface {
	ID() string
	Send(data []byte) bool
}

// Filter selects broadcast recipients. A nil Filter accepts everyone.
type Filter func(clientID string) bool

// Config holds registry parameters.
type Config struct {
	HistoryCap    int
	SnapshotSize  int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// DefaultConfig returns the production parameters.
func DefaultConfig() Config {
	return Config{
		HistoryCap:    10000,
		SnapshotSize:  1000,
		IdleTimeout:   time.Hour,
		SweepInterval: time.Minute,
	}
}

type member struct {
	sender   Sender
	username string
}

type room struct {
	mu           sync.Mutex
	id           string
	members      map[string]*member
	history      []json.RawMessage
	cursors      map[string]models.CursorEvent
	lastActivity time.Time
}

// Registry owns the active rooms and their membership. It is safe for
// concurrent use. The registry lock is always taken before a room lock.
type Registry struct {
	cfg Config

	mu      sync.RWMutex
	rooms   map[string]*room
	clients map[string]string

	now func() time.Time
}

// NewRegistry creates an empty registry. Zero config fields take defaults.
func NewRegistry(cfg Config) *Registry {
	def := DefaultConfig()
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = def.HistoryCap
	}
	if cfg.SnapshotSize <= 0 {
		cfg.SnapshotSize = def.SnapshotSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	return &Registry{
		cfg:     cfg,
		rooms:   make(map[string]*room),
		clients: make(map[string]string),
		now:     time.Now,
	}
}

// Config returns the registry parameters.
func (r *Registry) Config() Config {
	return r.cfg
}

// Join moves the sender into roomID, creating the room if needed. The
// sender leaves its previous room first. It receives an init snapshot of
// the most recent history and the current cursors, and the other members
// receive userJoined.
func (r *Registry) Join(s Sender, roomID, username string) int {
	clientID := s.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.clients[clientID]; ok {
		r.leaveLocked(clientID, prev)
	}

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{
			id:      roomID,
			members: make(map[string]*member),
			cursors: make(map[string]models.CursorEvent),
		}
		r.rooms[roomID] = rm
		logging.Debug().Str("room", roomID).Msg("Room created")
	}
	r.clients[clientID] = roomID

	rm.mu.Lock()
	rm.members[clientID] = &member{sender: s, username: username}
	rm.lastActivity = r.now()
	count := len(rm.members)

	history := rm.history
	if len(history) > r.cfg.SnapshotSize {
		history = history[len(history)-r.cfg.SnapshotSize:]
	}
	cursors := make(map[string]models.CursorEvent, len(rm.cursors))
	for id, c := range rm.cursors {
		cursors[id] = c
	}
	snapshot := &models.InitEvent{
		Type:    models.TypeInit,
		Room:    roomID,
		History: append([]json.RawMessage{}, history...),
		Cursors: cursors,
		Members: count,
	}
	deliver(s, models.MustEncode(snapshot))
	rm.broadcastLocked(models.MustEncode(&models.UserJoinedEvent{
		Type:     models.TypeUserJoined,
		ClientID: clientID,
		Username: username,
		Members:  count,
	}), clientID, nil)
	rm.mu.Unlock()

	r.publishGaugesLocked()
	logging.Info().Str("room", roomID).Str("client_id", clientID).Int("members", count).Msg("Client joined room")
	return count
}

// Leave removes clientID from its room, drops its cursor and broadcasts
// userLeft. It returns the room left, or "" when the client was in none.
// Calling it again is a no-op.
func (r *Registry) Leave(clientID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.clients[clientID]
	if !ok {
		return ""
	}
	r.leaveLocked(clientID, roomID)
	r.publishGaugesLocked()
	return roomID
}

func (r *Registry) leaveLocked(clientID, roomID string) {
	delete(r.clients, clientID)
	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.members, clientID)
	delete(rm.cursors, clientID)
	rm.lastActivity = r.now()
	rm.broadcastLocked(models.MustEncode(&models.UserLeftEvent{
		Type:     models.TypeUserLeft,
		ClientID: clientID,
		Members:  len(rm.members),
	}), clientID, nil)
	if len(rm.members) == 0 {
		logging.Debug().Str("room", roomID).Msg("Room is idle")
	}
}

// RoomOf returns the room clientID is in.
func (r *Registry) RoomOf(clientID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.clients[clientID]
	return id, ok
}

// Username returns the name clientID joined its room with.
func (r *Registry) Username(clientID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[r.clients[clientID]]
	if !ok {
		return ""
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if m, ok := rm.members[clientID]; ok {
		return m.username
	}
	return ""
}

func (r *Registry) lookup(roomID string) (*room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrNoRoom
	}
	return rm, nil
}

// RecordDraw stamps ev with the server time, appends it to the room
// history and broadcasts it to every member except exclude that passes
// visible. When the history exceeds HistoryCap it is trimmed to half of
// that, oldest entries first. It returns the number of recipients.
func (r *Registry) RecordDraw(roomID, exclude string, ev *models.DrawEvent, visible Filter) (int, error) {
	rm, err := r.lookup(roomID)
	if err != nil {
		return 0, err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	now := r.now()
	ev.Type = models.TypeDraw
	ev.Timestamp = now.UnixMilli()
	data, err := models.Encode(ev)
	if err != nil {
		return 0, err
	}
	rm.history = append(rm.history, data)
	if len(rm.history) > r.cfg.HistoryCap {
		keep := r.cfg.HistoryCap / 2
		trimmed := make([]json.RawMessage, keep)
		copy(trimmed, rm.history[len(rm.history)-keep:])
		rm.history = trimmed
	}
	rm.lastActivity = now
	return rm.broadcastLocked(data, exclude, visible), nil
}

// RecordCursor stores ev as the sender's last known cursor and broadcasts
// it to the other members that pass visible.
func (r *Registry) RecordCursor(roomID string, ev models.CursorEvent, visible Filter) (int, error) {
	rm, err := r.lookup(roomID)
	if err != nil {
		return 0, err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	ev.Type = models.TypeCursor
	if _, ok := rm.members[ev.ClientID]; ok {
		rm.cursors[ev.ClientID] = ev
	}
	rm.lastActivity = r.now()
	return rm.broadcastLocked(models.MustEncode(&ev), ev.ClientID, visible), nil
}

// Clear wipes the room history and tells every member, the requester
// included.
func (r *Registry) Clear(roomID, clientID string) (int, error) {
	rm, err := r.lookup(roomID)
	if err != nil {
		return 0, err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.history = nil
	rm.lastActivity = r.now()
	logging.Info().Str("room", roomID).Str("client_id", clientID).Msg("Room cleared")
	return rm.broadcastLocked(models.MustEncode(&models.ClearEvent{Type: models.TypeClear, ClientID: clientID}), "", nil), nil
}

// Broadcast sends data to every member of roomID except exclude that
// passes visible. Nothing is retained.
func (r *Registry) Broadcast(roomID string, data []byte, exclude string, visible Filter) (int, error) {
	rm, err := r.lookup(roomID)
	if err != nil {
		return 0, err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.lastActivity = r.now()
	return rm.broadcastLocked(data, exclude, visible), nil
}

// broadcastLocked fans data out in member id order (caller must hold rm.mu).
func (rm *room) broadcastLocked(data []byte, exclude string, visible Filter) int {
	ids := make([]string, 0, len(rm.members))
	for id := range rm.members {
		if id == exclude {
			continue
		}
		if visible != nil && !visible(id) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sent := 0
	for _, id := range ids {
		if deliver(rm.members[id].sender, data) {
			sent++
		}
	}
	metrics.RecordBroadcast(sent)
	return sent
}

func deliver(s Sender, data []byte) bool {
	if s.Send(data) {
		metrics.WSMessagesSent.Inc()
		return true
	}
	metrics.WSMessagesDropped.Inc()
	return false
}

// Sweep removes rooms that have had no members for at least IdleTimeout
// and returns their ids.
func (r *Registry) Sweep() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var reaped []string
	for id, rm := range r.rooms {
		rm.mu.Lock()
		idle := len(rm.members) == 0 && now.Sub(rm.lastActivity) >= r.cfg.IdleTimeout
		rm.mu.Unlock()
		if idle {
			delete(r.rooms, id)
			reaped = append(reaped, id)
		}
	}
	sort.Strings(reaped)

	if len(reaped) > 0 {
		metrics.RoomsExpired.Add(float64(len(reaped)))
		logging.Info().Int("rooms", len(reaped)).Msg("Reaped idle rooms")
	}
	r.publishGaugesLocked()
	return reaped
}

// Serve runs Sweep every SweepInterval until ctx is canceled.
func (r *Registry) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// String names the registry for the supervisor.
func (r *Registry) String() string {
	return "room-registry"
}

// List returns every room ordered by id.
func (r *Registry) List() []models.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.RoomInfo, 0, len(r.rooms))
	for id, rm := range r.rooms {
		rm.mu.Lock()
		info := models.RoomInfo{
			ID:            id,
			State:         StateActive,
			Members:       len(rm.members),
			HistoryLength: len(rm.history),
			LastActivity:  rm.lastActivity.UnixMilli(),
		}
		rm.mu.Unlock()
		if info.Members == 0 {
			info.State = StateIdle
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Members returns the ids of roomID's members in order.
func (r *Registry) Members(roomID string) []string {
	rm, err := r.lookup(roomID)
	if err != nil {
		return []string{}
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	ids := make([]string, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns the number of rooms and of clients in a room.
func (r *Registry) Stats() (rooms, clients int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.clients)
}

func (r *Registry) publishGaugesLocked() {
	metrics.SetRoomGauges(len(r.rooms), len(r.clients))
}
