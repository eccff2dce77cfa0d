package jwtx

import (
	"crypto/hmac"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for any token that fails verification. The
	// underlying cause is wrapped so callers can still inspect it.
	ErrInvalidToken = errors.New("jwtx: invalid token")

	ErrMissingSecret = errors.New("jwtx: signing secret is required")
	ErrSharedSecret  = errors.New("jwtx: access and refresh secrets must differ")
	ErrMissingUID    = errors.New("jwtx: missing uid claim")
)

// CodecConfig carries the process-wide signing configuration. Secrets are
// read once at startup and never change afterwards.
type CodecConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte

	// Issuer and Audience default to DefaultIssuer and DefaultAudience.
	Issuer   string
	Audience string

	// AccessTTL and RefreshTTL default to 15 minutes and 7 days.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now is the clock used for iat/exp on signing and exp on verification.
	// Defaults to time.Now.
	Now func() time.Time
}

// Codec signs and verifies the two token classes. Access and refresh tokens
// use separate HS256 secrets so one can never be passed off as the other.
type Codec struct {
	cfg    CodecConfig
	parser *jwt.Parser
}

// NewCodec validates the config and returns a ready Codec.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, ErrMissingSecret
	}
	if hmac.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, ErrSharedSecret
	}

	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	)

	return &Codec{cfg: cfg, parser: parser}, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.cfg.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.cfg.RefreshTTL }

// Now returns the codec clock reading.
func (c *Codec) Now() time.Time { return c.cfg.Now() }

// SignAccess signs an access token for the identity.
func (c *Codec) SignAccess(id Identity) (string, error) {
	if id.UID == "" {
		return "", ErrMissingUID
	}

	claims := AccessClaims{
		UID:              id.UID,
		Email:            id.Email,
		Username:         id.Username,
		RegisteredClaims: newRegistered(c.cfg.Issuer, c.cfg.Audience, c.cfg.AccessTTL, c.cfg.Now()),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.AccessSecret)
}

// SignRefresh signs a refresh token for uid. Every refresh token gets a
// fresh jti so it can be spent exactly once.
func (c *Codec) SignRefresh(uid string) (string, error) {
	if uid == "" {
		return "", ErrMissingUID
	}

	claims := RefreshClaims{
		UID:              uid,
		RegisteredClaims: newRegistered(c.cfg.Issuer, c.cfg.Audience, c.cfg.RefreshTTL, c.cfg.Now()),
	}
	claims.ID = NewJTI()

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.RefreshSecret)
}

// VerifyAccess checks signature, issuer, audience and expiry of an access
// token and returns its claims.
func (c *Codec) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := parse(c.parser, token, claims, c.cfg.AccessSecret); err != nil {
		return nil, err
	}
	if claims.UID == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrMissingUID)
	}
	return claims, nil
}

// VerifyRefresh is VerifyAccess for refresh tokens, checked against the
// refresh secret.
func (c *Codec) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := parse(c.parser, token, claims, c.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.UID == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrMissingUID)
	}
	return claims, nil
}

// IsExpired reports whether the token's exp claim has passed, using the
// codec clock. See the package level IsExpired.
func (c *Codec) IsExpired(token string) bool {
	return IsExpired(token, c.cfg.Now())
}

func parse(p *jwt.Parser, token string, claims jwt.Claims, secret []byte) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	t, err := p.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !t.Valid {
		return ErrInvalidToken
	}
	return nil
}

// IsExpired decodes the token without verifying it and reports whether its
// exp claim is before now. It only exists for cheap scheduling decisions:
// anything that cannot be decoded, or that carries no exp, counts as expired.
func IsExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}

	return exp.Unix() < now.Unix()
}
