package sessionclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/craftconnect/pkg/httpx"
	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/aussiebroadwan/craftconnect/pkg/slogx"
)

var ErrEmptyPair = errors.New("sessionclient: token pair is incomplete")

// EstablishResult reports which halves of a login succeeded. The client copy
// is usable on its own even when the server cookies could not be set.
type EstablishResult struct {
	ClientStored bool
	ServerStored bool
	ServerErr    error
}

// EstablishSession stores pair locally and asks the gateway to mirror it
// into its session cookies.
func (s *Store) EstablishSession(ctx context.Context, pair jwtx.TokenPair) EstablishResult {
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return EstablishResult{ServerErr: ErrEmptyPair}
	}

	s.SetTokens(pair.AccessToken, pair.RefreshToken, pair.ExpiresIn)
	res := EstablishResult{ClientStored: true}

	body := sessionRequest{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
	if err := s.postJSON(ctx, s.sessionPath, body, http.StatusOK, nil); err != nil {
		slogx.FromContext(ctx).Warn("server session not established", "err", err)
		res.ServerErr = err
		return res
	}
	res.ServerStored = true
	return res
}

// Logout drops the local record first, then tells the gateway so it can
// clear cookies and revoke the refresh token. The local record is gone even
// if the call fails.
func (s *Store) Logout(ctx context.Context) error {
	rt, _ := s.RefreshToken()
	s.ClearTokens()

	if err := s.postJSON(ctx, s.logoutPath, refreshRequest{RefreshToken: rt}, http.StatusOK, nil); err != nil {
		return fmt.Errorf("sessionclient: logout: %w", err)
	}
	return nil
}

// AuthHeader returns an Authorization header value backed by a fresh token.
func (s *Store) AuthHeader(ctx context.Context) (string, bool) {
	tok, ok := s.ValidAccessToken(ctx)
	if !ok {
		return "", false
	}
	return "Bearer " + tok, true
}

// RunAutoRefresh renews the session in the background until ctx ends. On
// each tick it refreshes when the session is active and the access token has
// expired. A refresh rejected by the gateway, or one whose refresh token has
// itself lapsed, clears the record.
func (s *Store) RunAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultAutoRefreshInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.autoRefreshOnce(ctx)
		}
	}
}

func (s *Store) autoRefreshOnce(ctx context.Context) {
	if !s.SessionActive() || !s.IsAccessTokenExpired() {
		return
	}

	err := s.refresh(ctx, false)
	if err == nil {
		return
	}

	rt, _ := s.RefreshToken()
	var apiErr *httpx.Error
	if jwtx.IsExpired(rt, s.now()) || (errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError) {
		slogx.FromContext(ctx).Info("session ended", "err", err)
		s.ClearTokens()
	}
}

type sessionRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
