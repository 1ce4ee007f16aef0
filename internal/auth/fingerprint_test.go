// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package auth

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFingerprinterIsStableAndKeyed(t *testing.T) {
	t.Parallel()

	a, err := NewFingerprinter("salt-a")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewFingerprinter("salt-b")

	id := a.Identity("device-1")
	if !strings.HasPrefix(id, AnonymousPrefix) || len(id) != len(AnonymousPrefix)+32 {
		t.Errorf("Identity() = %q, want anon_ plus 32 hex characters", id)
	}
	if again := a.Identity("device-1"); again != id {
		t.Errorf("Identity() not stable: %q vs %q", id, again)
	}
	if other := a.Identity("device-2"); other == id {
		t.Error("different fingerprints must differ")
	}
	if salted := b.Identity("device-1"); salted == id {
		t.Error("different salts must differ")
	}
}

func TestNewFingerprinterRejectsLongSalt(t *testing.T) {
	t.Parallel()

	if _, err := NewFingerprinter(strings.Repeat("s", 65)); err == nil {
		t.Error("NewFingerprinter() with a 65-byte salt should fail")
	}
}

func TestRequestFingerprint(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/ws", nil)
	r.RemoteAddr = "10.0.0.5:51234"
	r.Header.Set("User-Agent", "test-agent")
	r.Header.Set("Accept-Language", "en")
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got, want := RequestFingerprint(r, false), "10.0.0.5|test-agent|en"; got != want {
		t.Errorf("untrusted fingerprint = %q, want %q", got, want)
	}
	if got, want := RequestFingerprint(r, true), "203.0.113.9|test-agent|en"; got != want {
		t.Errorf("trusted fingerprint = %q, want %q", got, want)
	}

	r.Header.Set(FingerprintHeader, "abc123")
	if got := RequestFingerprint(r, false); got != "client:abc123" {
		t.Errorf("explicit fingerprint = %q, want client:abc123", got)
	}
}
