package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/craftconnect/internal/gateway/domain"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/events"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/metrics"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/store"
	"github.com/aussiebroadwan/craftconnect/pkg/cryptox"
	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/aussiebroadwan/craftconnect/pkg/slogx"
)

var (
	ErrInvalidIdentity = errors.New("invalid_identity")
	ErrInvalidRefresh  = errors.New("invalid_refresh_token")
	ErrRefreshReused   = errors.New("refresh_token_reused")
	ErrProfileNotFound = errors.New("profile_not_found")
)

// SessionService mints, rotates and revokes token pairs.
type SessionService struct {
	Store  store.Store
	Issuer *jwtx.Issuer
	Events events.Publisher

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Login records the identity confirmed by the identity provider and mints a
// first pair for it. An empty username falls back to the one already on file,
// then to the local part of the email.
func (s *SessionService) Login(ctx context.Context, id jwtx.Identity) (jwtx.TokenPair, error) {
	id.UID = strings.TrimSpace(id.UID)
	id.Email = strings.TrimSpace(id.Email)
	id.Username = strings.TrimSpace(id.Username)
	if id.UID == "" {
		return jwtx.TokenPair{}, ErrInvalidIdentity
	}

	if id.Username == "" {
		if p, err := s.Store.Profiles().GetProfile(ctx, id.UID); err == nil && p.Username != "" {
			id.Username = p.Username
		} else {
			id.Username = domain.FallbackUsername(id.Email)
		}
	}

	err := s.Store.Profiles().UpsertProfile(ctx, domain.Profile{
		UID:      id.UID,
		Email:    id.Email,
		Username: id.Username,
	})
	if err != nil {
		return jwtx.TokenPair{}, fmt.Errorf("upsert profile: %w", err)
	}

	pair, err := s.Issuer.IssuePair(id)
	if err != nil {
		return jwtx.TokenPair{}, err
	}

	s.countIssued("login")
	s.publish(ctx, events.Event{Type: events.SessionEstablished, UID: id.UID})
	return pair, nil
}

// Refresh spends refreshToken and mints a new pair from the user's current
// profile. Each refresh token works once. The token id is claimed only after
// the profile lookup settles, so a store failure leaves the token usable. A
// missing profile still spends it.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (jwtx.TokenPair, error) {
	claims, err := s.Issuer.Codec().VerifyRefresh(refreshToken)
	if err != nil {
		s.countFailure("invalid")
		return jwtx.TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidRefresh, err)
	}
	jti := claims.TokenID()
	if jti == "" {
		s.countFailure("invalid")
		return jwtx.TokenPair{}, fmt.Errorf("%w: missing jti", ErrInvalidRefresh)
	}

	revoked, err := s.Store.Revocations().IsRevoked(ctx, jti)
	if err != nil {
		return jwtx.TokenPair{}, fmt.Errorf("check refresh token: %w", err)
	}
	if revoked {
		return jwtx.TokenPair{}, s.replayed(ctx, claims, refreshToken)
	}

	profile, err := s.Store.Profiles().GetProfile(ctx, claims.UID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return jwtx.TokenPair{}, fmt.Errorf("get profile: %w", err)
		}
		if err := s.claim(ctx, claims, refreshToken); err != nil {
			return jwtx.TokenPair{}, err
		}
		s.countFailure("profile_not_found")
		return jwtx.TokenPair{}, ErrProfileNotFound
	}

	// Concurrent refreshes of one token all get here; the claim picks one.
	if err := s.claim(ctx, claims, refreshToken); err != nil {
		return jwtx.TokenPair{}, err
	}

	pair, err := s.Issuer.IssuePair(profile.Identity())
	if err != nil {
		return jwtx.TokenPair{}, err
	}

	s.countIssued("refresh")
	s.publish(ctx, events.Event{Type: events.SessionRefreshed, UID: claims.UID, JTI: jti})
	return pair, nil
}

func (s *SessionService) claim(ctx context.Context, claims *jwtx.RefreshClaims, refreshToken string) error {
	err := s.Store.Revocations().Revoke(ctx, claims.TokenID(), claims.UID, claims.ExpiresAt.Time)
	switch {
	case errors.Is(err, store.ErrAlreadyRevoked):
		return s.replayed(ctx, claims, refreshToken)
	case err != nil:
		return fmt.Errorf("claim refresh token: %w", err)
	}
	return nil
}

func (s *SessionService) replayed(ctx context.Context, claims *jwtx.RefreshClaims, refreshToken string) error {
	s.countFailure("reused")
	slogx.FromContext(ctx).Warn("refresh token replayed",
		"uid", claims.UID,
		"token_fp", cryptox.Fingerprint(refreshToken),
	)
	s.publish(ctx, events.Event{Type: events.RefreshReused, UID: claims.UID, JTI: claims.TokenID()})
	return ErrRefreshReused
}

// Revoke spends refreshToken without issuing a replacement. Revoking a token
// twice is fine.
func (s *SessionService) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := s.Issuer.Codec().VerifyRefresh(refreshToken)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRefresh, err)
	}
	if claims.TokenID() == "" {
		return fmt.Errorf("%w: missing jti", ErrInvalidRefresh)
	}

	err = s.Store.Revocations().Revoke(ctx, claims.TokenID(), claims.UID, claims.ExpiresAt.Time)
	if err != nil && !errors.Is(err, store.ErrAlreadyRevoked) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	s.publish(ctx, events.Event{Type: events.SessionRevoked, UID: claims.UID, JTI: claims.TokenID()})
	return nil
}

func (s *SessionService) publish(ctx context.Context, e events.Event) {
	if s.Events == nil {
		return
	}
	e.At = time.Now().UTC()
	if err := s.Events.Publish(ctx, e); err != nil {
		slogx.FromContext(ctx).Warn("session event not published", "type", e.Type, "err", err)
		if s.Metrics != nil {
			s.Metrics.EventsFailed.Inc()
		}
	}
}

func (s *SessionService) countIssued(reason string) {
	if s.Metrics != nil {
		s.Metrics.TokensIssued.WithLabelValues(reason).Inc()
	}
}

func (s *SessionService) countFailure(reason string) {
	if s.Metrics != nil {
		s.Metrics.RefreshFailures.WithLabelValues(reason).Inc()
	}
}
