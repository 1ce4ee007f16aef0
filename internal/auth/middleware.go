// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomtom215/geocanvas/internal/logging"
)

type contextKey string

const identityContextKey contextKey = "identity"

// TokenCookie is the cookie a browser client may carry its token in.
const TokenCookie = "geocanvas_token"

// Identity is who sent a request.
type Identity struct {
	ID        string `json:"id"`
	Anonymous bool   `json:"anonymous"`
}

// Resolver derives an Identity for every request: the token identity when a
// valid token is present, the anonymous fingerprint identity otherwise.
type Resolver struct {
	tokens     *TokenVerifier
	prints     *Fingerprinter
	trustProxy bool
}

// NewResolver creates a resolver. tokens may be nil, in which case every
// request is anonymous.
func NewResolver(tokens *TokenVerifier, prints *Fingerprinter, trustProxy bool) *Resolver {
	return &Resolver{tokens: tokens, prints: prints, trustProxy: trustProxy}
}

// Resolve returns the identity of r.
func (res *Resolver) Resolve(r *http.Request) Identity {
	if res.tokens != nil {
		if tok := requestToken(r); tok != "" {
			if id, ok := res.tokens.Identify(tok); ok {
				return Identity{ID: id}
			}
			logging.Debug().Str("remote_addr", r.RemoteAddr).Msg("Ignoring invalid token")
		}
	}
	return Identity{ID: res.prints.Identity(RequestFingerprint(r, res.trustProxy)), Anonymous: true}
}

// requestToken reads the bearer header, the token query parameter (browsers
// cannot set headers on WebSocket upgrades) or the token cookie.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// Middleware stores the resolved identity in the request context.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := res.Resolve(r)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}
