// Package session keeps the server's copy of a token pair in HttpOnly
// cookies. Nothing here returns errors: failures read as "no session".
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/craftconnect/pkg/httpx"
	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/aussiebroadwan/craftconnect/pkg/slogx"
)

const (
	AccessCookie  = httpx.AccessCookie
	RefreshCookie = "refresh_token"
)

// Refresher spends a refresh token for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (jwtx.TokenPair, error)
}

type Store struct {
	codec     *jwtx.Codec
	refresher Refresher
	secure    bool
}

// NewStore returns a cookie store. secure sets the Secure attribute and should
// be true everywhere except local development.
func NewStore(codec *jwtx.Codec, refresher Refresher, secure bool) *Store {
	return &Store{codec: codec, refresher: refresher, secure: secure}
}

// SetSessionCookies writes both cookies, each living as long as its token.
func (s *Store) SetSessionCookies(w http.ResponseWriter, access, refresh string) {
	http.SetCookie(w, s.cookie(AccessCookie, access, s.codec.AccessTTL()))
	http.SetCookie(w, s.cookie(RefreshCookie, refresh, s.codec.RefreshTTL()))
}

// SessionFromCookies verifies the access cookie. It returns nil when the
// cookie is missing or does not verify.
func (s *Store) SessionFromCookies(r *http.Request) *jwtx.AccessClaims {
	c, err := r.Cookie(AccessCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	claims, err := s.codec.VerifyAccess(c.Value)
	if err != nil {
		return nil
	}
	return claims
}

// RefreshTokenFromCookies returns the raw refresh cookie, or "".
func (s *Store) RefreshTokenFromCookies(r *http.Request) string {
	c, err := r.Cookie(RefreshCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// ClearSessionCookies expires both cookies. Safe to call without a session.
func (s *Store) ClearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		c := s.cookie(name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

// RefreshAccessToken spends the refresh cookie for a new pair and writes it
// back as cookies. It returns nil on any failure.
func (s *Store) RefreshAccessToken(ctx context.Context, w http.ResponseWriter, r *http.Request) *jwtx.TokenPair {
	rt := s.RefreshTokenFromCookies(r)
	if rt == "" {
		return nil
	}

	pair, err := s.refresher.Refresh(ctx, rt)
	if err != nil {
		slogx.FromContext(ctx).Debug("cookie refresh failed", "err", err)
		return nil
	}

	s.SetSessionCookies(w, pair.AccessToken, pair.RefreshToken)
	return &pair
}

func (s *Store) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
