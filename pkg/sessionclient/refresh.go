package sessionclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/aussiebroadwan/craftconnect/pkg/slogx"
)

var (
	ErrNoRefreshToken = errors.New("sessionclient: no refresh token stored")
	ErrMalformedPair  = errors.New("sessionclient: refresh response missing tokens or lifetime")
)

const flightKey = "refresh"

// ValidAccessToken returns an unexpired access token, refreshing at most once
// if needed. Concurrent callers share one in-flight refresh. It returns false
// when no token can be produced.
func (s *Store) ValidAccessToken(ctx context.Context) (string, bool) {
	if tok, ok := s.AccessToken(); ok && !s.IsAccessTokenExpired() {
		return tok, true
	}
	if err := s.refresh(ctx, false); err != nil {
		return "", false
	}
	return s.AccessToken()
}

// RefreshTokens exchanges the stored refresh token for a new pair. On any
// failure it returns false and the stored values are left as they were.
func (s *Store) RefreshTokens(ctx context.Context) bool {
	return s.refresh(ctx, true) == nil
}

// refresh joins or starts the shared flight. Unless force is set, a flight
// that finds the access token already renewed returns without posting.
func (s *Store) refresh(ctx context.Context, force bool) error {
	// The flight outlives any single caller, so it must not inherit one
	// caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)

	ch := s.flight.DoChan(flightKey, func() (any, error) {
		if !force && !s.IsAccessTokenExpired() {
			if _, ok := s.AccessToken(); ok {
				return nil, nil
			}
		}
		return nil, s.doRefresh(flightCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) doRefresh(ctx context.Context) error {
	log := slogx.FromContext(ctx)

	rt, ok := s.RefreshToken()
	if !ok {
		s.active.Store(false)
		return ErrNoRefreshToken
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var pair jwtx.TokenPair
	err := s.postJSON(ctx, s.refreshPath, refreshRequest{RefreshToken: rt}, http.StatusOK, &pair)
	if err == nil && (pair.AccessToken == "" || pair.RefreshToken == "" || pair.ExpiresIn <= 0) {
		err = ErrMalformedPair
	}
	if err != nil {
		s.active.Store(false)
		log.Warn("session refresh failed", "err", err)
		return fmt.Errorf("sessionclient: refresh: %w", err)
	}

	s.SetTokens(pair.AccessToken, pair.RefreshToken, pair.ExpiresIn)
	log.Debug("session refreshed")
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}
