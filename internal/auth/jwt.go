// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// ErrSecretTooShort is returned for a secret under MinSecretLength bytes.
var ErrSecretTooShort = fmt.Errorf("JWT secret must be at least %d characters", MinSecretLength)

// Claims are the token claims. The identity is the subject, or the
// username when a token carries no subject.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier turns a bearer token into a durable identity.
type TokenVerifier struct {
	secret  []byte
	timeout time.Duration
	issuer  string
}

// NewTokenVerifier creates a verifier for HS256 tokens signed with secret.
// timeout is the lifetime of tokens issued by GenerateToken.
func NewTokenVerifier(secret string, timeout time.Duration, issuer string) (*TokenVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &TokenVerifier{secret: []byte(secret), timeout: timeout, issuer: issuer}, nil
}

// GenerateToken signs a token for subject.
func (v *TokenVerifier) GenerateToken(subject, username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(v.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks the signature, algorithm, expiry and issuer of
// tokenString and returns its claims.
func (v *TokenVerifier) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Identify returns the identity carried by tokenString, or false when the
// token is missing or invalid.
func (v *TokenVerifier) Identify(tokenString string) (string, bool) {
	if tokenString == "" {
		return "", false
	}
	claims, err := v.ValidateToken(tokenString)
	if err != nil {
		return "", false
	}
	if claims.Subject != "" {
		return claims.Subject, true
	}
	if claims.Username != "" {
		return claims.Username, true
	}
	return "", false
}
