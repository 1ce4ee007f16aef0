// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package canvas

import (
	"context"
	"errors"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/geocanvas/internal/activity"
	"github.com/tomtom215/geocanvas/internal/chunkstore"
	"github.com/tomtom215/geocanvas/internal/geoindex"
	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/metrics"
	"github.com/tomtom215/geocanvas/internal/models"
	"github.com/tomtom215/geocanvas/internal/relay"
	"github.com/tomtom215/geocanvas/internal/room"
	"github.com/tomtom215/geocanvas/internal/viewport"
)

// Client is one live connection as seen by the service.
type Client interface {
	room.Sender
	// Identity is the durable or anonymous identity used for permission
	// checks. It may be empty.
	Identity() string
}

// Publisher relays local room events to other instances.
type Publisher interface {
	Publish(ctx context.Context, env relay.Envelope) error
}

// Config holds service parameters.
type Config struct {
	// ViewportCulling restricts draw and cursor broadcasts to members whose
	// declared viewport shows the event. Members without a viewport always
	// receive everything.
	ViewportCulling bool
	// DefaultRoom is joined automatically on connect when non-empty.
	DefaultRoom string
	// MaxStrokePoints bounds a segmented stroke; longer strokes are
	// persisted in pieces.
	MaxStrokePoints int
}

// DefaultConfig returns the production parameters.
func DefaultConfig() Config {
	return Config{
		ViewportCulling: true,
		DefaultRoom:     "default",
		MaxStrokePoints: 5000,
	}
}

// Deps are the components the service routes events to. Publisher may be
// nil.
type Deps struct {
	Rooms      *room.Registry
	Viewports  *viewport.Index
	Chunks     *chunkstore.Store
	Geo        *geoindex.Index
	Activities *activity.Store
	Publisher  Publisher
	InstanceID string
}

type session struct {
	client Client

	mu     sync.Mutex
	stroke *models.StrokePath
}

// Service is the event-processing core. Transport code calls OnConnect,
// OnMessage and OnDisconnect; everything else happens here.
type Service struct {
	cfg Config
	Deps

	mu       sync.RWMutex
	sessions map[string]*session
}

// New creates a service.
func New(cfg Config, deps Deps) *Service {
	if cfg.MaxStrokePoints <= 1 {
		cfg.MaxStrokePoints = DefaultConfig().MaxStrokePoints
	}
	return &Service{cfg: cfg, Deps: deps, sessions: make(map[string]*session)}
}

// Stats returns the connection and room counts.
func (s *Service) Stats() models.ServerStats {
	s.mu.RLock()
	clients := len(s.sessions)
	s.mu.RUnlock()
	rooms, _ := s.Rooms.Stats()
	return models.ServerStats{Clients: clients, Rooms: rooms}
}

// OnConnect registers c, greets it and joins the default room.
func (s *Service) OnConnect(c Client) {
	s.mu.Lock()
	s.sessions[c.ID()] = &session{client: c}
	s.mu.Unlock()

	s.send(c, &models.WelcomeEvent{
		Type:       models.TypeWelcome,
		ClientID:   c.ID(),
		ServerTime: models.NowMillis(),
		Stats:      s.Stats(),
	})
	if s.cfg.DefaultRoom != "" {
		s.Rooms.Join(c, s.cfg.DefaultRoom, "")
	}
}

// OnDisconnect leaves the client's room and forgets its viewport. A stroke
// in progress is persisted as it stands. Calling it twice is harmless.
func (s *Service) OnDisconnect(ctx context.Context, clientID string) {
	s.mu.Lock()
	sess, ok := s.sessions[clientID]
	delete(s.sessions, clientID)
	s.mu.Unlock()

	if ok {
		s.flushStroke(ctx, sess)
	}
	s.Rooms.Leave(clientID)
	s.Viewports.Remove(clientID)
}

// flushStroke persists and forgets the session's open stroke, if any.
func (s *Service) flushStroke(ctx context.Context, sess *session) {
	if sess == nil {
		return
	}
	sess.mu.Lock()
	pending := sess.stroke
	sess.stroke = nil
	sess.mu.Unlock()
	if pending != nil {
		s.persistStroke(ctx, pending)
	}
}

func (s *Service) session(clientID string) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[clientID]
}

// OnMessage handles one inbound frame from c. Malformed frames are answered
// with an error event to c alone; the connection stays open.
func (s *Service) OnMessage(ctx context.Context, c Client, data []byte) {
	msg, err := models.DecodeInbound(data)
	if err != nil {
		metrics.WSMalformedMessages.Inc()
		metrics.RecordWSMessage("unknown")
		logging.Debug().Err(err).Str("client_id", c.ID()).Msg("Malformed message")
		s.sendError(c, models.ErrCodeMalformed, err.Error())
		return
	}
	metrics.RecordWSMessage(models.InboundType(msg))

	switch m := msg.(type) {
	case *models.JoinMessage:
		s.handleJoin(ctx, c, m)
	case *models.LeaveMessage:
		s.handleLeave(ctx, c)
	case *models.DrawMessage:
		s.handleDraw(ctx, c, m)
	case *models.CursorMessage:
		s.handleCursor(ctx, c, m)
	case *models.ClearMessage:
		s.handleClear(ctx, c)
	case *models.PingMessage:
		s.send(c, &models.PongEvent{Type: models.TypePong, Timestamp: m.Timestamp, ServerTime: models.NowMillis()})
	case *models.ViewportMessage:
		s.handleViewport(ctx, c, m)
	case *models.GeoPathMessage:
		s.handleGeoPath(ctx, c, m)
	default:
		s.sendError(c, models.ErrCodeMalformed, "unsupported message type")
	}
}

func (s *Service) handleJoin(ctx context.Context, c Client, m *models.JoinMessage) {
	s.flushStroke(ctx, s.session(c.ID()))
	s.Rooms.Join(c, m.Room, m.Username)
}

func (s *Service) handleLeave(ctx context.Context, c Client) {
	s.flushStroke(ctx, s.session(c.ID()))
	s.Rooms.Leave(c.ID())
}

func (s *Service) roomOf(c Client) (string, bool) {
	roomID, ok := s.Rooms.RoomOf(c.ID())
	if !ok {
		s.sendError(c, models.ErrCodeNotInRoom, "join a room first")
	}
	return roomID, ok
}

// visibleFilter restricts recipients to members whose viewport shows any
// of pts, plus members that never declared one.
func (s *Service) visibleFilter(pts []models.Point) room.Filter {
	if !s.cfg.ViewportCulling {
		return nil
	}
	visible := s.Viewports.ClientsForPath(pts)
	return func(id string) bool {
		return visible.Contains(id) || !s.Viewports.Has(id)
	}
}

func (s *Service) handleDraw(ctx context.Context, c Client, m *models.DrawMessage) {
	roomID, ok := s.roomOf(c)
	if !ok {
		return
	}

	var segment []models.Point
	var done []*models.StrokePath
	switch m.DrawType {
	case "":
		segment = []models.Point{{X: m.X1, Y: m.Y1}, {X: m.X2, Y: m.Y2}}
		p := models.NewStrokePath(c.ID(), m.Color, m.Size, m.Tool, segment)
		if err := s.Chunks.Check(p); err != nil {
			s.rejectDraw(c, err)
			return
		}
		done = []*models.StrokePath{p}
	default:
		var err error
		segment, done, err = s.extendStroke(c, m)
		if err != nil {
			s.rejectDraw(c, err)
			return
		}
	}

	ev := &models.DrawEvent{ClientID: c.ID(), Username: s.Rooms.Username(c.ID()), DrawMessage: m}
	if _, err := s.Rooms.RecordDraw(roomID, c.ID(), ev, s.visibleFilter(segment)); err != nil {
		logging.Warn().Err(err).Str("room", roomID).Msg("Failed to record draw")
	} else {
		s.publish(ctx, roomID, relay.KindDraw, c.ID(), ev)
	}

	for _, p := range done {
		s.persistStroke(ctx, p)
	}
}

// rejectDraw answers a draw that cannot be stored. Nothing is broadcast.
func (s *Service) rejectDraw(c Client, err error) {
	if models.IsValidationError(err) {
		s.sendError(c, models.ErrCodeInvalidInput, err.Error())
		return
	}
	logging.Err(err).Str("client_id", c.ID()).Msg("Failed to check stroke")
	s.sendError(c, models.ErrCodeInternal, "failed to accept stroke")
}

// extendStroke applies a segmented draw to the client's open stroke. It
// returns the segment to cull the broadcast by, and the strokes that are
// complete. A segment that would make the open stroke too wide to store
// closes it and starts a new stroke at that segment. A segment too wide on
// its own is rejected and leaves the open stroke as it was.
func (s *Service) extendStroke(c Client, m *models.DrawMessage) ([]models.Point, []*models.StrokePath, error) {
	pt := models.Point{X: m.X, Y: m.Y}
	sess := s.session(c.ID())
	if sess == nil {
		return []models.Point{pt}, nil, nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	var done []*models.StrokePath
	if m.DrawType == models.DrawStart || sess.stroke == nil {
		fresh := models.NewStrokePath(c.ID(), m.Color, m.Size, m.Tool, []models.Point{pt})
		if err := s.Chunks.Check(fresh); err != nil {
			return nil, nil, err
		}
		if sess.stroke != nil {
			done = append(done, sess.stroke)
		}
		sess.stroke = fresh
		if m.DrawType == models.DrawStart {
			return []models.Point{pt}, done, nil
		}
	}

	st := sess.stroke
	last := st.Points[len(st.Points)-1]
	segment := []models.Point{last, pt}
	if last != pt {
		if err := s.Chunks.Check(grownBy(st, pt)); err == nil {
			st.Points = append(st.Points, pt)
		} else {
			piece := models.NewStrokePath(c.ID(), st.Color, st.StrokeWidth, st.Tool, segment)
			if err := s.Chunks.Check(piece); err != nil {
				return nil, nil, err
			}
			done = append(done, st)
			sess.stroke = piece
			st = piece
		}
	}

	switch {
	case m.DrawType == models.DrawEnd:
		sess.stroke = nil
		done = append(done, st)
	case len(st.Points) >= s.cfg.MaxStrokePoints:
		sess.stroke = models.NewStrokePath(c.ID(), st.Color, st.StrokeWidth, st.Tool, []models.Point{pt})
		done = append(done, st)
	}
	return segment, done, nil
}

// grownBy returns a stroke spanning the bounding box st would have after
// appending pt.
func grownBy(st *models.StrokePath, pt models.Point) *models.StrokePath {
	r, _ := st.Bounds()
	return &models.StrokePath{
		ID:     st.ID,
		Points: []models.Point{{X: r.MinX, Y: r.MinY}, {X: r.MaxX, Y: r.MaxY}, pt},
	}
}

func (s *Service) persistStroke(ctx context.Context, p *models.StrokePath) {
	if _, err := s.Chunks.Save(ctx, p); err != nil {
		logging.Err(err).Str("stroke_id", p.ID).Msg("Failed to persist stroke")
	}
}

func (s *Service) handleCursor(ctx context.Context, c Client, m *models.CursorMessage) {
	roomID, ok := s.roomOf(c)
	if !ok {
		return
	}
	ev := models.CursorEvent{ClientID: c.ID(), X: m.X, Y: m.Y, Color: m.Color, Name: m.Name}
	if _, err := s.Rooms.RecordCursor(roomID, ev, s.visibleFilter([]models.Point{{X: m.X, Y: m.Y}})); err != nil {
		logging.Warn().Err(err).Str("room", roomID).Msg("Failed to record cursor")
		return
	}
	s.publish(ctx, roomID, relay.KindCursor, c.ID(), &ev)
}

func (s *Service) handleClear(ctx context.Context, c Client) {
	roomID, ok := s.roomOf(c)
	if !ok {
		return
	}
	if _, err := s.Rooms.Clear(roomID, c.ID()); err != nil {
		logging.Warn().Err(err).Str("room", roomID).Msg("Failed to clear room")
		return
	}
	s.publish(ctx, roomID, relay.KindClear, c.ID(), &models.ClearEvent{Type: models.TypeClear, ClientID: c.ID()})
}

func (s *Service) handleViewport(ctx context.Context, c Client, m *models.ViewportMessage) {
	s.Viewports.Update(c.ID(), m.Viewport)

	strokes, err := s.Chunks.LoadViewport(ctx, m.X, m.Y, m.Width, m.Height)
	if err != nil {
		if models.IsValidationError(err) {
			s.sendError(c, models.ErrCodeInvalidInput, err.Error())
			return
		}
		logging.Err(err).Str("client_id", c.ID()).Msg("Failed to load viewport")
		s.sendError(c, models.ErrCodeInternal, "failed to load strokes")
		return
	}
	s.send(c, &models.ChunkEvent{Type: models.TypeChunk, Viewport: m.Viewport, Strokes: strokes})
}

func (s *Service) handleGeoPath(ctx context.Context, c Client, m *models.GeoPathMessage) {
	identity := c.Identity()
	if m.ActivityID != "" && !s.Activities.CanContribute(ctx, m.ActivityID, identity) {
		s.sendError(c, models.ErrCodeForbidden, "you may not draw on this activity")
		return
	}

	p := &models.GeoPath{
		ClientID:   c.ID(),
		OwnerID:    identity,
		ActivityID: m.ActivityID,
		Color:      m.Color,
		Width:      m.Width,
		Points:     m.Points,
		Region:     m.Region,
	}
	if err := s.Geo.Save(ctx, p); err != nil {
		if models.IsValidationError(err) {
			s.sendError(c, models.ErrCodeInvalidInput, err.Error())
			return
		}
		logging.Err(err).Str("client_id", c.ID()).Msg("Failed to save geo path")
		s.sendError(c, models.ErrCodeInternal, "failed to save path")
		return
	}

	if m.ActivityID != "" {
		if _, err := s.Activities.AddDrawing(ctx, m.ActivityID); err != nil && !errors.Is(err, activity.ErrNotFound) {
			logging.Warn().Err(err).Str("activity_id", m.ActivityID).Msg("Failed to count drawing")
		}
	}

	roomID, ok := s.Rooms.RoomOf(c.ID())
	if !ok {
		return
	}
	ev := &models.GeoPathEvent{Type: models.TypeGeoPath, Path: p}
	if _, err := s.Rooms.Broadcast(roomID, models.MustEncode(ev), c.ID(), nil); err != nil {
		logging.Warn().Err(err).Str("room", roomID).Msg("Failed to broadcast geo path")
		return
	}
	s.publish(ctx, roomID, relay.KindGeoPath, c.ID(), ev)
}

func (s *Service) publish(ctx context.Context, roomID, kind, clientID string, payload interface{}) {
	if s.Publisher == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Warn().Err(err).Str("kind", kind).Msg("Failed to encode relay payload")
		return
	}
	env := relay.Envelope{Origin: s.InstanceID, Room: roomID, Kind: kind, ClientID: clientID, Payload: data}
	if err := s.Publisher.Publish(ctx, env); err != nil {
		logging.Warn().Err(err).Str("room", roomID).Str("kind", kind).Msg("Failed to relay event")
	}
}

// ApplyRemote applies an event relayed from another instance to the local
// room. Rooms without local members ignore it. Remote events are never
// published again.
func (s *Service) ApplyRemote(_ context.Context, env relay.Envelope) {
	if env.Origin == s.InstanceID {
		return
	}
	if len(s.Rooms.Members(env.Room)) == 0 {
		return
	}

	var err error
	switch env.Kind {
	case relay.KindDraw:
		var ev models.DrawEvent
		if err = json.Unmarshal(env.Payload, &ev); err == nil && ev.DrawMessage != nil {
			pts := []models.Point{{X: ev.X1, Y: ev.Y1}, {X: ev.X2, Y: ev.Y2}}
			if ev.DrawType != "" {
				pts = []models.Point{{X: ev.X, Y: ev.Y}}
			}
			_, err = s.Rooms.RecordDraw(env.Room, "", &ev, s.visibleFilter(pts))
		}
	case relay.KindCursor:
		var ev models.CursorEvent
		if err = json.Unmarshal(env.Payload, &ev); err == nil {
			_, err = s.Rooms.RecordCursor(env.Room, ev, s.visibleFilter([]models.Point{{X: ev.X, Y: ev.Y}}))
		}
	case relay.KindClear:
		_, err = s.Rooms.Clear(env.Room, env.ClientID)
	case relay.KindGeoPath:
		_, err = s.Rooms.Broadcast(env.Room, env.Payload, "", nil)
	default:
		logging.Debug().Str("kind", env.Kind).Msg("Ignoring unknown relay event")
		return
	}

	if err != nil && !errors.Is(err, room.ErrNoRoom) {
		metrics.RelayErrors.WithLabelValues("apply").Inc()
		logging.Warn().Err(err).Str("room", env.Room).Str("kind", env.Kind).Msg("Failed to apply relayed event")
	}
}

func (s *Service) send(c Client, v interface{}) {
	data, err := models.Encode(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to encode outbound event")
		return
	}
	if c.Send(data) {
		metrics.WSMessagesSent.Inc()
	} else {
		metrics.WSMessagesDropped.Inc()
	}
}

func (s *Service) sendError(c Client, code, message string) {
	s.send(c, models.NewErrorEvent(code, message))
}
