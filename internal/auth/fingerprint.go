// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package auth

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// AnonymousPrefix starts every anonymous identity.
const AnonymousPrefix = "anon_"

// FingerprintHeader lets a client supply its own stable fingerprint, for
// example one kept in local storage.
const FingerprintHeader = "X-Client-Fingerprint"

// Fingerprinter maps a client fingerprint to a stable opaque identity with
// a keyed BLAKE2b hash. The same fingerprint and salt always give the same
// identity; the fingerprint cannot be recovered from it.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter creates a fingerprinter keyed by salt. The salt must be
// at most 64 bytes.
func NewFingerprinter(salt string) (*Fingerprinter, error) {
	if len(salt) > blake2b.Size {
		return nil, fmt.Errorf("identity salt must be at most %d bytes", blake2b.Size)
	}
	return &Fingerprinter{key: []byte(salt)}, nil
}

// Identity returns the anonymous identity of fingerprint.
func (f *Fingerprinter) Identity(fingerprint string) string {
	h, err := blake2b.New(16, f.key)
	if err != nil {
		// Only reachable with an oversized key, which NewFingerprinter rejects.
		panic(err)
	}
	h.Write([]byte(fingerprint))
	return AnonymousPrefix + hex.EncodeToString(h.Sum(nil))
}

// RequestFingerprint builds a fingerprint from r. An explicit
// FingerprintHeader wins; otherwise client address, user agent and accepted
// languages are combined. X-Forwarded-For is only honored when trustProxy
// is set.
func RequestFingerprint(r *http.Request, trustProxy bool) string {
	if fp := strings.TrimSpace(r.Header.Get(FingerprintHeader)); fp != "" {
		return "client:" + fp
	}
	return strings.Join([]string{
		ClientIP(r, trustProxy),
		r.UserAgent(),
		r.Header.Get("Accept-Language"),
	}, "|")
}

// ClientIP returns the address of the client that sent r.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
