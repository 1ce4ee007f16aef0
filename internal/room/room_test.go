// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package room

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

type fakeSender struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func newSender(id string) *fakeSender { return &fakeSender{id: id} }

func (f *fakeSender) ID() string { return f.id }

func (f *fakeSender) Send(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.frames = append(f.frames, data)
	return true
}

func (f *fakeSender) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(fr, &env)
		out = append(out, env.Type)
	}
	return out
}

func (f *fakeSender) last(t *testing.T, v interface{}) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		t.Fatalf("%s received nothing", f.id)
	}
	if err := json.Unmarshal(f.frames[len(f.frames)-1], v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(cfg Config) (*Registry, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	r := NewRegistry(cfg)
	r.now = clock.now
	return r, clock
}

func draw(x float64) *models.DrawEvent {
	return &models.DrawEvent{ClientID: "a", DrawMessage: &models.DrawMessage{X1: x, Y1: x, X2: x + 1, Y2: x + 1, Color: "#000000", Size: 2}}
}

func TestJoinSendsSnapshotAndAnnounces(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	a, b := newSender("a"), newSender("b")

	if n := r.Join(a, "lobby", "alice"); n != 1 {
		t.Errorf("Join(a) members = %d, want 1", n)
	}
	if _, err := r.RecordDraw("lobby", "a", draw(1), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RecordCursor("lobby", models.CursorEvent{ClientID: "a", X: 5, Y: 6}, nil); err != nil {
		t.Fatal(err)
	}

	if n := r.Join(b, "lobby", "bob"); n != 2 {
		t.Errorf("Join(b) members = %d, want 2", n)
	}

	var snap models.InitEvent
	b.last(t, &snap)
	if snap.Type != models.TypeInit || len(snap.History) != 1 || snap.Members != 2 {
		t.Errorf("init = %+v", snap)
	}
	if c, ok := snap.Cursors["a"]; !ok || c.X != 5 {
		t.Errorf("init cursors = %+v, want a at x=5", snap.Cursors)
	}

	var joined models.UserJoinedEvent
	a.last(t, &joined)
	if joined.Type != models.TypeUserJoined || joined.ClientID != "b" || joined.Username != "bob" {
		t.Errorf("a's last frame = %+v, want userJoined for b", joined)
	}
	if got := r.Username("b"); got != "bob" {
		t.Errorf("Username(b) = %q, want bob", got)
	}
}

func TestJoinLeavesPreviousRoom(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	a, b := newSender("a"), newSender("b")
	r.Join(a, "one", "")
	r.Join(b, "one", "")
	b.reset()

	r.Join(a, "two", "")
	var left models.UserLeftEvent
	b.last(t, &left)
	if left.Type != models.TypeUserLeft || left.ClientID != "a" || left.Members != 1 {
		t.Errorf("b's last frame = %+v, want userLeft for a", left)
	}
	if id, _ := r.RoomOf("a"); id != "two" {
		t.Errorf("RoomOf(a) = %q, want two", id)
	}
	if got := r.Members("one"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Members(one) = %v, want [b]", got)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	a := newSender("a")
	r.Join(a, "lobby", "")
	r.RecordCursor("lobby", models.CursorEvent{ClientID: "a", X: 1}, nil)

	if got := r.Leave("a"); got != "lobby" {
		t.Errorf("Leave = %q, want lobby", got)
	}
	if got := r.Leave("a"); got != "" {
		t.Errorf("second Leave = %q, want empty", got)
	}
	if rooms, clients := r.Stats(); rooms != 1 || clients != 0 {
		t.Errorf("Stats = %d rooms %d clients, want 1 idle room", rooms, clients)
	}

	b := newSender("b")
	r.Join(b, "lobby", "")
	var snap models.InitEvent
	b.last(t, &snap)
	if len(snap.Cursors) != 0 {
		t.Errorf("departed cursor still present: %+v", snap.Cursors)
	}
}

func TestRecordDrawExcludesSenderAndStamps(t *testing.T) {
	t.Parallel()

	r, clock := newTestRegistry(Config{})
	a, b, c := newSender("a"), newSender("b"), newSender("c")
	r.Join(a, "lobby", "")
	r.Join(b, "lobby", "")
	r.Join(c, "lobby", "")
	a.reset()
	b.reset()
	c.reset()

	n, err := r.RecordDraw("lobby", "a", draw(10), func(id string) bool { return id != "c" })
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("recipients = %d, want 1", n)
	}
	if len(a.types()) != 0 || len(c.types()) != 0 {
		t.Errorf("a got %v, c got %v; want nothing", a.types(), c.types())
	}
	var ev models.DrawEvent
	b.last(t, &ev)
	if ev.Type != models.TypeDraw || ev.Timestamp != clock.t.UnixMilli() || ev.X1 != 10 {
		t.Errorf("b got %+v", ev)
	}

	if _, err := r.RecordDraw("missing", "a", draw(1), nil); !errors.Is(err, ErrNoRoom) {
		t.Errorf("RecordDraw on missing room err = %v, want ErrNoRoom", err)
	}
}

func TestDrawOrderPerClient(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	a, b := newSender("a"), newSender("b")
	r.Join(a, "lobby", "")
	r.Join(b, "lobby", "")
	b.reset()

	for i := 0; i < 100; i++ {
		r.RecordDraw("lobby", "a", draw(float64(i)), nil)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, fr := range b.frames {
		var ev models.DrawEvent
		if err := json.Unmarshal(fr, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.X1 != float64(i) {
			t.Fatalf("frame %d has x1=%v, want %d", i, ev.X1, i)
		}
	}
}

func TestHistoryTrimsToHalf(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{HistoryCap: 10, SnapshotSize: 3})
	r.Join(newSender("a"), "lobby", "")
	for i := 0; i < 11; i++ {
		r.RecordDraw("lobby", "a", draw(float64(i)), nil)
	}
	if got := r.List()[0].HistoryLength; got != 5 {
		t.Errorf("HistoryLength = %d, want 5", got)
	}

	b := newSender("b")
	r.Join(b, "lobby", "")
	var snap models.InitEvent
	b.last(t, &snap)
	if len(snap.History) != 3 {
		t.Fatalf("snapshot has %d entries, want 3", len(snap.History))
	}
	var oldest models.DrawEvent
	if err := json.Unmarshal(snap.History[0], &oldest); err != nil {
		t.Fatal(err)
	}
	if oldest.X1 != 8 {
		t.Errorf("oldest snapshot entry x1=%v, want 8", oldest.X1)
	}
}

func TestClearReachesEveryone(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	a, b := newSender("a"), newSender("b")
	r.Join(a, "lobby", "")
	r.Join(b, "lobby", "")
	r.RecordDraw("lobby", "a", draw(1), nil)

	n, err := r.Clear("lobby", "a")
	if err != nil || n != 2 {
		t.Fatalf("Clear = %d, %v; want 2 recipients", n, err)
	}
	var ev models.ClearEvent
	a.last(t, &ev)
	if ev.Type != models.TypeClear || ev.ClientID != "a" {
		t.Errorf("a got %+v", ev)
	}
	if got := r.List()[0].HistoryLength; got != 0 {
		t.Errorf("HistoryLength = %d, want 0", got)
	}
}

func TestSweepReapsIdleRooms(t *testing.T) {
	t.Parallel()

	r, clock := newTestRegistry(Config{IdleTimeout: time.Hour})
	r.Join(newSender("a"), "busy", "")
	r.Join(newSender("b"), "quiet", "")
	r.Leave("b")

	clock.advance(59 * time.Minute)
	if got := r.Sweep(); len(got) != 0 {
		t.Errorf("early Sweep reaped %v", got)
	}
	list := r.List()
	if list[1].ID != "quiet" || list[1].State != StateIdle || list[0].State != StateActive {
		t.Errorf("List = %+v", list)
	}

	clock.advance(time.Minute)
	if got := r.Sweep(); !reflect.DeepEqual(got, []string{"quiet"}) {
		t.Errorf("Sweep = %v, want [quiet]", got)
	}
	if rooms, _ := r.Stats(); rooms != 1 {
		t.Errorf("rooms = %d, want 1", rooms)
	}
}

func TestDroppedFramesAreNotCounted(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	a, b := newSender("a"), newSender("b")
	r.Join(a, "lobby", "")
	r.Join(b, "lobby", "")
	b.mu.Lock()
	b.full = true
	b.mu.Unlock()

	n, err := r.Broadcast("lobby", []byte(`{"type":"pong"}`), "", nil)
	if err != nil || n != 1 {
		t.Errorf("Broadcast = %d, %v; want 1 delivered", n, err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Config{SweepInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Config{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := newSender(fmt.Sprintf("c%d", i))
			for j := 0; j < 50; j++ {
				room := fmt.Sprintf("room%d", j%3)
				r.Join(s, room, "")
				r.RecordDraw(room, s.ID(), draw(float64(j)), nil)
			}
			r.Leave(s.ID())
		}(i)
	}
	wg.Wait()

	if _, clients := r.Stats(); clients != 0 {
		t.Errorf("clients = %d, want 0", clients)
	}
	for _, info := range r.List() {
		if info.Members != 0 {
			t.Errorf("room %s still has %d members", info.ID, info.Members)
		}
	}
}
