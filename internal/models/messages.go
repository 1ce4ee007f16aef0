// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package models

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/geocanvas/internal/geo"
	"github.com/tomtom215/geocanvas/internal/validation"
)

// Message type tags shared by inbound and outbound frames.
const (
	TypeJoin       = "join"
	TypeLeave      = "leave"
	TypeDraw       = "draw"
	TypeCursor     = "cursor"
	TypeClear      = "clear"
	TypePing       = "ping"
	TypeViewport   = "viewport"
	TypeGeoPath    = "geoPath"
	TypeWelcome    = "welcome"
	TypeInit       = "init"
	TypeUserJoined = "userJoined"
	TypeUserLeft   = "userLeft"
	TypePong       = "pong"
	TypeError      = "error"
	TypeChunk      = "chunk"
)

// Segmented draw phases.
const (
	DrawStart = "start"
	DrawMove  = "draw"
	DrawEnd   = "end"
)

// Inbound is a decoded client frame. The concrete type is one of the
// *Message structs below; switch on it exhaustively.
type Inbound interface {
	inboundType() string
}

// JoinMessage asks to enter a room, leaving any current one.
type JoinMessage struct {
	Room     string `json:"room" validate:"required,roomid"`
	Username string `json:"username,omitempty" validate:"max=64"`
}

// LeaveMessage leaves the current room.
type LeaveMessage struct{}

// DrawMessage is one drawing operation. Without DrawType it is a pixel-mode
// segment (X1,Y1)-(X2,Y2). With DrawType it is part of a segmented stroke:
// start opens a stroke at (X,Y), draw extends it to (X,Y), end completes it.
type DrawMessage struct {
	DrawType string  `json:"drawType,omitempty" validate:"omitempty,oneof=start draw end"`
	X1       float64 `json:"x1"`
	Y1       float64 `json:"y1"`
	X2       float64 `json:"x2"`
	Y2       float64 `json:"y2"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Color    string  `json:"color,omitempty" validate:"omitempty,strokecolor"`
	Size     float64 `json:"size,omitempty" validate:"gte=0,lte=500"`
	Tool     string  `json:"tool,omitempty" validate:"max=32"`
}

// CursorMessage reports the sender's pointer position.
type CursorMessage struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color,omitempty" validate:"omitempty,strokecolor"`
	Name  string  `json:"name,omitempty" validate:"max=64"`
}

// ClearMessage wipes the room history.
type ClearMessage struct{}

// PingMessage is an application-level liveness check.
type PingMessage struct {
	Timestamp int64 `json:"timestamp"`
}

// ViewportMessage declares the sender's visible rectangle.
type ViewportMessage struct {
	Viewport
}

// GeoPathMessage submits a completed geo-anchored stroke.
type GeoPathMessage struct {
	ActivityID string      `json:"activityId,omitempty" validate:"max=64"`
	Points     []geo.Point `json:"points" validate:"required,min=1,max=5000,dive"`
	Color      string      `json:"color,omitempty" validate:"omitempty,strokecolor"`
	Width      float64     `json:"width,omitempty" validate:"gte=0,lte=500"`
	Region     string      `json:"region,omitempty" validate:"max=64"`
}

func (*JoinMessage) inboundType() string     { return TypeJoin }
func (*LeaveMessage) inboundType() string    { return TypeLeave }
func (*DrawMessage) inboundType() string     { return TypeDraw }
func (*CursorMessage) inboundType() string   { return TypeCursor }
func (*ClearMessage) inboundType() string    { return TypeClear }
func (*PingMessage) inboundType() string     { return TypePing }
func (*ViewportMessage) inboundType() string { return TypeViewport }
func (*GeoPathMessage) inboundType() string  { return TypeGeoPath }

// InboundType returns the wire tag of m.
func InboundType(m Inbound) string {
	return m.inboundType()
}

type envelope struct {
	Type string `json:"type"`
}

// DecodeInbound parses and validates a client frame. Every failure wraps
// ErrMalformedMessage.
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var msg Inbound
	switch env.Type {
	case TypeJoin:
		msg = &JoinMessage{}
	case TypeLeave:
		msg = &LeaveMessage{}
	case TypeDraw:
		msg = &DrawMessage{}
	case TypeCursor:
		msg = &CursorMessage{}
	case TypeClear:
		msg = &ClearMessage{}
	case TypePing:
		msg = &PingMessage{}
	case TypeViewport:
		msg = &ViewportMessage{}
	case TypeGeoPath:
		msg = &GeoPathMessage{}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, env.Type, err)
	}
	if verr := validation.ValidateStruct(msg); verr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, env.Type, verr)
	}
	return msg, nil
}

// Outbound events. Each carries its own Type so it can be encoded directly.

// WelcomeEvent greets a new connection.
type WelcomeEvent struct {
	Type       string      `json:"type"`
	ClientID   string      `json:"clientId"`
	ServerTime int64       `json:"serverTime"`
	Stats      ServerStats `json:"stats"`
}

// InitEvent is the snapshot sent to a client that joined a room.
type InitEvent struct {
	Type    string                 `json:"type"`
	Room    string                 `json:"room"`
	History []json.RawMessage      `json:"history"`
	Cursors map[string]CursorEvent `json:"cursors"`
	Members int                    `json:"members"`
}

// DrawEvent is a draw operation as relayed to other members.
type DrawEvent struct {
	Type      string `json:"type"`
	ClientID  string `json:"clientId"`
	Username  string `json:"username,omitempty"`
	Timestamp int64  `json:"timestamp"`
	*DrawMessage
}

// UserJoinedEvent announces a new member.
type UserJoinedEvent struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
	Username string `json:"username,omitempty"`
	Members  int    `json:"members"`
}

// UserLeftEvent announces a departed member.
type UserLeftEvent struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
	Members  int    `json:"members"`
}

// CursorEvent relays a member's pointer.
type CursorEvent struct {
	Type     string  `json:"type"`
	ClientID string  `json:"clientId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Color    string  `json:"color,omitempty"`
	Name     string  `json:"name,omitempty"`
}

// ClearEvent tells members the room was wiped.
type ClearEvent struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}

// PongEvent answers a ping.
type PongEvent struct {
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
	ServerTime int64  `json:"serverTime"`
}

// ErrorEvent reports a rejected frame to its sender only.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChunkEvent carries persisted strokes for a declared viewport.
type ChunkEvent struct {
	Type     string        `json:"type"`
	Viewport Viewport      `json:"viewport"`
	Strokes  []*StrokePath `json:"strokes"`
}

// GeoPathEvent relays a saved geo stroke.
type GeoPathEvent struct {
	Type string   `json:"type"`
	Path *GeoPath `json:"path"`
}

// Error codes carried by ErrorEvent.
const (
	ErrCodeMalformed    = "MALFORMED_MESSAGE"
	ErrCodeNotInRoom    = "NOT_IN_ROOM"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeInvalidInput = "VALIDATION_ERROR"
)

// NewErrorEvent builds an ErrorEvent.
func NewErrorEvent(code, message string) *ErrorEvent {
	return &ErrorEvent{Type: TypeError, Code: code, Message: message}
}

// Encode marshals an outbound event.
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// MustEncode marshals v and panics on failure. Only for the fixed outbound
// structs above, which always marshal.
func MustEncode(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("models: encode %T: %v", v, err))
	}
	return b
}
