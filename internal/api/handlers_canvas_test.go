// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package api

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/geocanvas/internal/models"
)

func TestStrokesCompressed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)

	for i := 0; i < 20; i++ {
		x := float64(i * 5)
		p := models.NewStrokePath("c1", "#123456", 2, "pen", []models.Point{{X: x, Y: x}, {X: x + 1, Y: x + 2}, {X: x + 3, Y: x + 4}})
		if _, err := f.deps.Chunks.Save(context.Background(), p); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/canvas/strokes?x=0&y=0&w=200&h=200", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	var env struct {
		Data     []models.StrokePath `json:"data"`
		Metadata models.Metadata     `json:"metadata"`
	}
	if err := json.NewDecoder(zr).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data) != 20 || env.Metadata.Count != 20 {
		t.Errorf("got %d strokes (count %d), want 20", len(env.Data), env.Metadata.Count)
	}
}
