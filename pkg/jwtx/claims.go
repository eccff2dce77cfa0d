package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token defaults for the CraftConnect session. Services can override any of
// these through CodecConfig.
const (
	// DefaultIssuer is embedded in every token as the "iss" claim.
	DefaultIssuer = "craftconnect-app"

	// DefaultAudience is embedded in every token as the "aud" claim.
	DefaultAudience = "craftconnect-users"

	// DefaultAccessTokenTTL is the lifetime of access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the lifetime of refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Identity is what the identity provider hands us once a user has signed in.
type Identity struct {
	UID      string `json:"uid"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// AccessClaims are the claims carried by a short-lived access token.
type AccessClaims struct {
	UID      string `json:"uid"`
	Email    string `json:"email"`
	Username string `json:"username"`

	jwt.RegisteredClaims
}

// Identity returns the user identity embedded in the access token.
func (c *AccessClaims) Identity() Identity {
	return Identity{
		UID:      c.UID,
		Email:    c.Email,
		Username: c.Username,
	}
}

// RefreshClaims are the claims carried by a refresh token. They only hold the
// subject, the profile is looked up again whenever the token is spent.
type RefreshClaims struct {
	UID string `json:"uid"`

	jwt.RegisteredClaims
}

// TokenID returns the "jti" claim used to track spent refresh tokens.
func (c *RefreshClaims) TokenID() string { return c.ID }

// Remaining reports how long the refresh token is still valid for at now.
// Returns zero when the token has no expiry or is already past it.
func (c *RefreshClaims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return max(c.ExpiresAt.Sub(now), 0)
}

// newRegistered builds the registered claims shared by both token classes.
func newRegistered(issuer, audience string, ttl time.Duration, now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim. There
// might be a better way of doing this, but random is plenty here.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
