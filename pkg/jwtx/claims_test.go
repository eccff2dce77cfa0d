package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestAccessClaimsIdentity(t *testing.T) {
	c := &jwtx.AccessClaims{
		UID:      "user-1",
		Email:    "maker@example.com",
		Username: "maker",
	}

	require.Equal(t, jwtx.Identity{
		UID:      "user-1",
		Email:    "maker@example.com",
		Username: "maker",
	}, c.Identity())
}

func TestRefreshClaimsRemaining(t *testing.T) {
	now := time.Now()

	t.Run("time left", func(t *testing.T) {
		c := &jwtx.RefreshClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
		require.InDelta(t, time.Hour.Seconds(), c.Remaining(now).Seconds(), 1)
	})

	t.Run("already expired", func(t *testing.T) {
		c := &jwtx.RefreshClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
			},
		}
		require.Zero(t, c.Remaining(now))
	})

	t.Run("no exp", func(t *testing.T) {
		require.Zero(t, (&jwtx.RefreshClaims{}).Remaining(now))
	})
}

func TestNewJTI(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for range 100 {
		jti := jwtx.NewJTI()
		require.Len(t, jti, 27) // 20 bytes, base64url without padding

		_, dup := seen[jti]
		require.False(t, dup, "jti should be unique")
		seen[jti] = struct{}{}
	}
}
