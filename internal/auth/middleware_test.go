// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestResolver(t *testing.T) (*Resolver, *TokenVerifier) {
	t.Helper()
	v, err := NewTokenVerifier(testSecret, time.Hour, "")
	if err != nil {
		t.Fatal(err)
	}
	fp, _ := NewFingerprinter("salt")
	return NewResolver(v, fp, false), v
}

func TestResolve(t *testing.T) {
	t.Parallel()

	res, v := newTestResolver(t)
	tok, _ := v.GenerateToken("u1", "")

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		wantID   string
		wantAnon bool
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }, "u1", false},
		{"query parameter", func(r *http.Request) { r.URL.RawQuery = "token=" + tok }, "u1", false},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookie, Value: tok}) }, "u1", false},
		{"invalid token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer junk") }, "", true},
		{"no token", func(*http.Request) {}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			tt.setup(r)
			got := res.Resolve(r)
			if got.Anonymous != tt.wantAnon {
				t.Errorf("Anonymous = %v, want %v", got.Anonymous, tt.wantAnon)
			}
			if tt.wantID != "" && got.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", got.ID, tt.wantID)
			}
			if tt.wantAnon && !strings.HasPrefix(got.ID, AnonymousPrefix) {
				t.Errorf("anonymous ID = %q, want anon_ prefix", got.ID)
			}
		})
	}
}

func TestResolverWithoutTokens(t *testing.T) {
	t.Parallel()

	fp, _ := NewFingerprinter("salt")
	res := NewResolver(nil, fp, false)
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer anything")
	if got := res.Resolve(r); !got.Anonymous {
		t.Errorf("Resolve() = %+v, want anonymous", got)
	}
}

func TestMiddlewareStoresIdentity(t *testing.T) {
	t.Parallel()

	res, v := newTestResolver(t)
	tok, _ := v.GenerateToken("u9", "")

	var seen Identity
	h := res.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), r)

	if seen.ID != "u9" || seen.Anonymous {
		t.Errorf("identity in context = %+v, want u9", seen)
	}
	if _, ok := FromContext(r.Context()); ok {
		t.Error("original request context must not carry an identity")
	}
}
