// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serve(h http.Handler, method, acceptEncoding string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/v1/canvas/strokes", nil)
	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func bodyHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		// Several small writes cross the threshold part way.
		for len(body) > 0 {
			n := min(100, len(body))
			_, _ = io.WriteString(w, body[:n])
			body = body[n:]
		}
	})
}

func TestCompressLargeBody(t *testing.T) {
	t.Parallel()
	body := strings.Repeat(`{"x":1,"y":2},`, 300)
	rec := serve(Compress(0)(bodyHandler(http.StatusOK, body)), http.MethodGet, "gzip, deflate", nil)

	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
	if got := rec.Header().Get("Vary"); got != "Accept-Encoding" {
		t.Errorf("Vary = %q, want Accept-Encoding", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	if string(got) != body {
		t.Errorf("decompressed body differs: %d bytes, want %d", len(got), len(body))
	}
}

func TestCompressPassThrough(t *testing.T) {
	t.Parallel()
	large := strings.Repeat("a", 4096)

	tests := []struct {
		name   string
		method string
		accept string
		header map[string]string
		status int
		body   string
	}{
		{"small body", http.MethodGet, "gzip", nil, http.StatusCreated, `{"status":"success"}`},
		{"client without gzip", http.MethodGet, "", nil, http.StatusOK, large},
		{"websocket upgrade", http.MethodGet, "gzip", map[string]string{"Upgrade": "websocket"}, http.StatusOK, large},
		{"head request", http.MethodHead, "gzip", nil, http.StatusOK, ""},
		{"no content", http.MethodGet, "gzip", nil, http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(Compress(1024)(bodyHandler(tt.status, tt.body)), tt.method, tt.accept, tt.header)
			if got := rec.Header().Get("Content-Encoding"); got != "" {
				t.Errorf("Content-Encoding = %q, want none", got)
			}
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if rec.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestCompressKeepsHandlerEncoding(t *testing.T) {
	t.Parallel()
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write([]byte(strings.Repeat("b", 2048)))
	})
	rec := serve(Compress(0)(h), http.MethodGet, "gzip", nil)
	if got := rec.Header().Get("Content-Encoding"); got != "br" {
		t.Errorf("Content-Encoding = %q, want br", got)
	}
	if rec.Body.Len() != 2048 {
		t.Errorf("body length = %d, want 2048", rec.Body.Len())
	}
}
