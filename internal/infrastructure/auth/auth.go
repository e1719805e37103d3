// Package auth mints and verifies the short-lived controller token the
// Gateway uses to role-tag a websocket connection, and hashes the operator
// secret at rest (spec §6).
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

// ControllerClaims is the payload of a controller-role token.
type ControllerClaims struct {
	ShowID string `json:"showId"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies controller tokens against one HMAC secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer builds an issuer with the given signing secret and token
// lifetime.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// IssueControllerToken signs a token authorizing a controller connection to
// showID for the issuer's configured lifetime.
func (i *TokenIssuer) IssueControllerToken(showID string) (string, error) {
	now := time.Now().UTC()
	claims := ControllerClaims{
		ShowID: showID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// VerifyControllerToken parses and validates a controller token, returning
// its claims when the signature and expiry both check out.
func (i *TokenIssuer) VerifyControllerToken(tokenString string) (*ControllerClaims, error) {
	claims := &ControllerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("controller token is invalid")
	}
	return claims, nil
}

// HashSecret bcrypt-hashes the operator secret for storage in config or an
// env var, never in plaintext.
func HashSecret(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash secret: %w", err)
	}
	return string(hashed), nil
}

// CheckSecret reports whether plaintext matches a hash produced by HashSecret.
func CheckSecret(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// GenerateUserID mints a server-issued user ID when a JOIN command arrives
// without one.
func GenerateUserID() string {
	return ulid.Make().String()
}

// GenerateSecureToken returns length bytes from crypto/rand encoded as
// URL-safe base64 (with padding). No code in this service calls it.
func GenerateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("auth: generate secure token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
