// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

/*
Package auth turns an HTTP request into a stable identity string.

The canvas does not log users in. It consumes identity as a capability: a
signed token when the client has one, otherwise an anonymous identity
derived from the request fingerprint. Activity ownership and permissions
are keyed by the resulting string.

Key Components:

  - TokenVerifier: HS256 JWT validation (golang-jwt/jwt/v5); the identity is
    the subject claim, falling back to the username claim
  - Fingerprinter: keyed BLAKE2b hash of a fingerprint, rendered as
    "anon_" plus 32 hex characters
  - Resolver: picks the token from the Authorization header, the token query
    parameter or the geocanvas_token cookie, in that order, and falls back
    to the fingerprint
  - Middleware: stores the resolved Identity in the request context

Fingerprints:

A client may send X-Client-Fingerprint. Otherwise the fingerprint is built
from the client IP, User-Agent and Accept-Language. X-Forwarded-For and
X-Real-IP are only honored when the resolver trusts the proxy in front of it.

Usage Example:

	verifier, err := auth.NewTokenVerifier(cfg.Security.JWTSecret, cfg.Security.SessionTimeout, "")
	if err != nil {
	    return err
	}
	prints, err := auth.NewFingerprinter(cfg.Security.AnonymousSalt)
	if err != nil {
	    return err
	}
	resolver := auth.NewResolver(verifier, prints, cfg.Security.TrustProxy)
	r.Use(resolver.Middleware)

Thread Safety:

All types are safe for concurrent use after construction.
*/
package auth
