// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "this_is_a_very_long_secret_key_with_32_plus_characters"

func TestNewTokenVerifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		secret  string
		wantErr error
	}{
		{"valid secret", testSecret, nil},
		{"empty secret", "", ErrSecretTooShort},
		{"short secret", "short", ErrSecretTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewTokenVerifier(tt.secret, time.Hour, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewTokenVerifier() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && v == nil {
				t.Error("NewTokenVerifier() returned nil verifier")
			}
		})
	}
}

func TestGenerateAndIdentify(t *testing.T) {
	t.Parallel()

	v, err := NewTokenVerifier(testSecret, time.Hour, "geocanvas")
	if err != nil {
		t.Fatal(err)
	}

	tok, err := v.GenerateToken("user-42", "alice")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if id, ok := v.Identify(tok); !ok || id != "user-42" {
		t.Errorf("Identify() = %q, %v; want user-42, true", id, ok)
	}

	byName, _ := v.GenerateToken("", "alice")
	if id, ok := v.Identify(byName); !ok || id != "alice" {
		t.Errorf("Identify(username only) = %q, %v; want alice, true", id, ok)
	}

	anonymous, _ := v.GenerateToken("", "")
	if _, ok := v.Identify(anonymous); ok {
		t.Error("token without subject or username must not identify")
	}
}

func TestValidateTokenRejects(t *testing.T) {
	t.Parallel()

	v, _ := NewTokenVerifier(testSecret, time.Hour, "geocanvas")
	other, _ := NewTokenVerifier(strings.Repeat("x", 40), time.Hour, "geocanvas")
	otherIssuer, _ := NewTokenVerifier(testSecret, time.Hour, "someone-else")
	expired, _ := NewTokenVerifier(testSecret, time.Nanosecond, "geocanvas")

	wrongKey, _ := other.GenerateToken("u1", "")
	wrongIssuer, _ := otherIssuer.GenerateToken("u1", "")
	stale, _ := expired.GenerateToken("u1", "")
	time.Sleep(2 * time.Millisecond)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]string{
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"expired":      stale,
		"alg none":     unsigned,
		"garbage":      "not.a.token",
		"empty":        "",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if id, ok := v.Identify(tok); ok {
				t.Errorf("Identify() = %q, true; want rejection", id)
			}
		})
	}
}
