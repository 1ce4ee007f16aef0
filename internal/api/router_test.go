// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/geocanvas/internal/activity"
	"github.com/tomtom215/geocanvas/internal/auth"
	"github.com/tomtom215/geocanvas/internal/canvas"
	"github.com/tomtom215/geocanvas/internal/chunkstore"
	"github.com/tomtom215/geocanvas/internal/geo"
	"github.com/tomtom215/geocanvas/internal/geoindex"
	"github.com/tomtom215/geocanvas/internal/kv"
	"github.com/tomtom215/geocanvas/internal/logging"
	"github.com/tomtom215/geocanvas/internal/models"
	"github.com/tomtom215/geocanvas/internal/room"
	"github.com/tomtom215/geocanvas/internal/viewport"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

const testSecret = "api-test-secret-that-is-at-least-32-characters"

type fixture struct {
	handler http.Handler
	deps    Deps
	tokens  *auth.TokenVerifier
}

func newFixture(t *testing.T, backend kv.Backend, mwCfg *ChiMiddlewareConfig) *fixture {
	t.Helper()
	if backend == nil {
		backend = kv.NewMemory()
	}
	t.Cleanup(func() { _ = backend.Close() })

	rooms := room.NewRegistry(room.DefaultConfig())
	deps := Deps{
		Rooms:      rooms,
		Chunks:     chunkstore.New(backend, chunkstore.DefaultConfig()),
		Geo:        geoindex.New(backend, geoindex.DefaultConfig()),
		Activities: activity.New(backend, activity.DefaultConfig()),
		Backend:    backend,
		Version:    "test",
	}
	deps.Canvas = canvas.New(canvas.DefaultConfig(), canvas.Deps{
		Rooms:      rooms,
		Viewports:  viewport.New(viewport.DefaultCellSize),
		Chunks:     deps.Chunks,
		Geo:        deps.Geo,
		Activities: deps.Activities,
	})

	tokens, err := auth.NewTokenVerifier(testSecret, time.Hour, "")
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}
	prints, err := auth.NewFingerprinter("salt")
	if err != nil {
		t.Fatalf("NewFingerprinter: %v", err)
	}

	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.FromContext(r.Context())
		_, _ = w.Write([]byte(id.ID))
	})
	router := NewRouter(NewHandler(deps), NewChiMiddleware(mwCfg), auth.NewResolver(tokens, prints, false), ws)
	return &fixture{handler: router.Setup(), deps: deps, tokens: tokens}
}

type apiResult struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *models.APIError
	code   int
	header http.Header
}

func (f *fixture) do(t *testing.T, method, target, user string, body interface{}) apiResult {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if user != "" {
		token, err := f.tokens.GenerateToken(user, user)
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	res := apiResult{code: rec.Code, header: rec.Header()}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		var env struct {
			Status string           `json:"status"`
			Data   json.RawMessage  `json:"data"`
			Error  *models.APIError `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, target, rec.Body.String(), err)
		}
		res.Status, res.Data, res.Error = env.Status, env.Data, env.Error
	} else {
		res.Data = rec.Body.Bytes()
	}
	return res
}

func (r apiResult) decode(t *testing.T, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", r.Data, err)
	}
}

func (r apiResult) expect(t *testing.T, code int) {
	t.Helper()
	if r.code != code {
		msg := ""
		if r.Error != nil {
			msg = r.Error.Code + ": " + r.Error.Message
		}
		t.Fatalf("status = %d (%s), want %d", r.code, msg, code)
	}
}

func (r apiResult) expectError(t *testing.T, code int, errCode string) {
	t.Helper()
	r.expect(t, code)
	if r.Error == nil || r.Error.Code != errCode {
		t.Fatalf("error = %+v, want code %s", r.Error, errCode)
	}
}

type unreachable struct {
	kv.Backend
}

func (unreachable) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	res := f.do(t, http.MethodGet, "/api/v1/health", "", nil)
	res.expect(t, http.StatusOK)
	var body HealthResponse
	res.decode(t, &body)
	if body.Status != "healthy" || body.Backend != "memory" {
		t.Errorf("health = %+v, want healthy on memory", body)
	}
	if res.header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
	if res.header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	down := newFixture(t, unreachable{kv.NewMemory()}, nil)
	down.do(t, http.MethodGet, "/api/v1/health", "", nil).expectError(t, http.StatusServiceUnavailable, ErrCodeUnavailable)
}

func TestStatusCountsStores(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	stroke := models.NewStrokePath("c1", "#000000", 2, "pen", []models.Point{{X: 10, Y: 10}, {X: 20, Y: 20}})
	if _, err := f.deps.Chunks.Save(ctx, stroke); err != nil {
		t.Fatalf("Save stroke: %v", err)
	}
	if _, _, err := f.deps.Activities.FindOrCreateDefault(ctx, geo.Point{Lat: 40, Lng: -73}); err != nil {
		t.Fatalf("FindOrCreateDefault: %v", err)
	}

	res := f.do(t, http.MethodGet, "/api/v1/status", "", nil)
	res.expect(t, http.StatusOK)
	var status StatusResponse
	res.decode(t, &status)
	if status.Strokes != 1 {
		t.Errorf("Strokes = %d, want 1", status.Strokes)
	}
	if status.Activities != 1 || status.DefaultActivities != 1 {
		t.Errorf("Activities = %d/%d, want 1/1", status.Activities, status.DefaultActivities)
	}
	if status.Version != "test" || status.Backend != "memory" || status.Degraded {
		t.Errorf("status = %+v", status)
	}
}

func TestStrokes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)

	near := models.NewStrokePath("c1", "#ff0000", 2, "pen", []models.Point{{X: 10, Y: 10}, {X: 50, Y: 50}})
	far := models.NewStrokePath("c1", "#00ff00", 2, "pen", []models.Point{{X: 9000, Y: 9000}, {X: 9050, Y: 9050}})
	for _, p := range []*models.StrokePath{near, far} {
		if _, err := f.deps.Chunks.Save(context.Background(), p); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	res := f.do(t, http.MethodGet, "/api/v1/canvas/strokes?x=0&y=0&w=200&h=200", "", nil)
	res.expect(t, http.StatusOK)
	var paths []models.StrokePath
	res.decode(t, &paths)
	if len(paths) != 1 || paths[0].ID != near.ID {
		t.Errorf("strokes = %v, want only %s", paths, near.ID)
	}

	tests := []struct {
		name   string
		target string
	}{
		{"missing h", "/api/v1/canvas/strokes?x=0&y=0&w=200"},
		{"not a number", "/api/v1/canvas/strokes?x=a&y=0&w=1&h=1"},
		{"zero width", "/api/v1/canvas/strokes?x=0&y=0&w=0&h=1"},
		{"NaN origin", "/api/v1/canvas/strokes?x=NaN&y=0&w=1&h=1"},
		{"infinite height", "/api/v1/canvas/strokes?x=0&y=0&w=1&h=Inf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.do(t, http.MethodGet, tt.target, "", nil).expectError(t, http.StatusBadRequest, ErrCodeValidation)
		})
	}
}

func TestRooms(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)

	res := f.do(t, http.MethodGet, "/api/v1/rooms", "", nil)
	res.expect(t, http.StatusOK)
	var rooms []models.RoomInfo
	res.decode(t, &rooms)
	if len(rooms) != 0 {
		t.Errorf("rooms = %v, want none", rooms)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)

	f.do(t, http.MethodGet, "/api/v1/rooms", "", nil).expect(t, http.StatusOK)
	res := f.do(t, http.MethodGet, "/metrics", "", nil)
	res.expect(t, http.StatusOK)
	if !bytes.Contains(res.Data, []byte("geocanvas_api_requests_total")) {
		t.Error("metrics output lacks geocanvas_api_requests_total")
	}
}

func TestWebSocketRouteSeesIdentity(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)

	res := f.do(t, http.MethodGet, "/ws", "alice", nil)
	res.expect(t, http.StatusOK)
	if string(res.Data) != "alice" {
		t.Errorf("identity at /ws = %q, want alice", res.Data)
	}

	anon := f.do(t, http.MethodGet, "/ws", "", nil)
	if !strings.HasPrefix(string(anon.Data), auth.AnonymousPrefix) {
		t.Errorf("anonymous identity = %q, want %s prefix", anon.Data, auth.AnonymousPrefix)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 2
	f := newFixture(t, nil, cfg)

	f.do(t, http.MethodGet, "/api/v1/rooms", "", nil).expect(t, http.StatusOK)
	f.do(t, http.MethodGet, "/api/v1/rooms", "", nil).expect(t, http.StatusOK)
	f.do(t, http.MethodGet, "/api/v1/rooms", "", nil).expectError(t, http.StatusTooManyRequests, ErrCodeTooManyRequests)
}

func TestRateLimitDisabled(t *testing.T) {
	t.Parallel()
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 1
	cfg.RateLimitDisabled = true
	f := newFixture(t, nil, cfg)

	for i := 0; i < 5; i++ {
		f.do(t, http.MethodGet, "/api/v1/rooms", "", nil).expect(t, http.StatusOK)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	cfg := DefaultChiMiddlewareConfig()
	cfg.CORSAllowedOrigins = []string{"http://app.example"}
	f := newFixture(t, nil, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/activities", nil)
	req.Header.Set("Origin", "http://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example" {
		t.Errorf("Access-Control-Allow-Origin = %q, want http://app.example", got)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	t.Parallel()
	if got := sanitizeLogValue("a\nb\x7f"); got != `a\x0ab\x7f` {
		t.Errorf("sanitizeLogValue() = %q", got)
	}
}
