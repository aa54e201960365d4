// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/danielhkuo/chainballot/models"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid account token")
)

// AccountClaims is the JWT payload identifying a voter account.
type AccountClaims struct {
	OrganizationID string `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateID creates a random hex ID of the specified byte length
func GenerateID(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IssueAccountToken signs an HS256 token for the account. Used by tests and
// local tooling; production tokens come from the identity service.
func IssueAccountToken(account models.Account, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccountClaims{
		OrganizationID: account.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseAccountToken validates an HS256 token and returns the account it names.
func ParseAccountToken(token, secret string) (models.Account, error) {
	var claims AccountClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Account{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return models.Account{}, ErrInvalidToken
	}
	return models.Account{ID: claims.Subject, OrganizationID: claims.OrganizationID}, nil
}

// AccountFromRequest reads the Authorization: Bearer header.
func AccountFromRequest(r *http.Request, secret string) (models.Account, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return models.Account{}, ErrMissingToken
	}
	return ParseAccountToken(strings.TrimSpace(token), secret)
}

// HashIP creates a one-way hash of an IP address for privacy
// Includes salt to prevent rainbow table attacks
func HashIP(ip, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(ip))
	sum := h.Sum(nil)
	// Return first 16 hex chars (64 bits) - enough for deduplication
	return hex.EncodeToString(sum[:8])
}

// HashAddress shortens a wallet address to a salted tag suitable for logs.
func HashAddress(addr, salt string) string {
	if addr == "" {
		return ""
	}
	return HashIP(models.NormalizeAddress(addr), salt)
}
