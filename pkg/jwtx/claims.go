package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the lifetime of tokens minted by the token
// command. The bank's authorisation server picks its own.
const DefaultAccessTokenTTL = 15 * time.Minute

// Claims are the OAuth access token claims the SCA gate looks at. The
// authorisation server has already authenticated the PSU, so the token only
// needs to say who that PSU is.
type Claims struct {
	jwt.RegisteredClaims

	// Psu is the bank side PSU id when the subject is something else, like a
	// pairwise identifier.
	Psu string `json:"psu_id,omitempty"`

	// Scope is the space delimited OAuth scope ("PIS:payment-1").
	Scope string `json:"scope,omitempty"`
}

// PsuID is the PSU the token speaks for.
func (c Claims) PsuID() string {
	if c.Psu != "" {
		return c.Psu
	}
	return c.Subject
}

// NewAccessClaims builds minimally-correct claims for psuID.
func NewAccessClaims(
	psuID, scope string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   psuID,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Scope: scope,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiry checks exp and nbf against now, allowing leeway of clock
// skew either side.
func (c *Claims) ValidateExpiry(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
