package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var (
	accessSecret  = []byte("test-access-secret-0123456789abcdef")
	refreshSecret = []byte("test-refresh-secret-0123456789abcdef")
)

func newCodec(t *testing.T, now func() time.Time) *jwtx.Codec {
	t.Helper()

	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		Now:           now,
	})
	require.NoError(t, err)
	return codec
}

func TestNewCodec(t *testing.T) {
	t.Run("requires both secrets", func(t *testing.T) {
		_, err := jwtx.NewCodec(jwtx.CodecConfig{AccessSecret: accessSecret})
		require.ErrorIs(t, err, jwtx.ErrMissingSecret)

		_, err = jwtx.NewCodec(jwtx.CodecConfig{RefreshSecret: refreshSecret})
		require.ErrorIs(t, err, jwtx.ErrMissingSecret)
	})

	t.Run("rejects identical secrets", func(t *testing.T) {
		_, err := jwtx.NewCodec(jwtx.CodecConfig{
			AccessSecret:  []byte("same"),
			RefreshSecret: []byte("same"),
		})
		require.ErrorIs(t, err, jwtx.ErrSharedSecret)
	})

	t.Run("applies defaults", func(t *testing.T) {
		codec := newCodec(t, nil)
		require.Equal(t, jwtx.DefaultAccessTokenTTL, codec.AccessTTL())
		require.Equal(t, jwtx.DefaultRefreshTokenTTL, codec.RefreshTTL())
	})
}

func TestAccessRoundTrip(t *testing.T) {
	codec := newCodec(t, nil)

	identities := []jwtx.Identity{
		{UID: "user-1", Email: "maker@example.com", Username: "maker"},
		{UID: "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV", Email: "", Username: ""},
		{UID: "ユーザー", Email: "unicode@例え.jp", Username: "職人"},
	}

	for _, id := range identities {
		t.Run(id.UID, func(t *testing.T) {
			token, err := codec.SignAccess(id)
			require.NoError(t, err)

			claims, err := codec.VerifyAccess(token)
			require.NoError(t, err)
			require.Equal(t, id, claims.Identity())

			require.Equal(t, jwtx.DefaultIssuer, claims.Issuer)
			require.Contains(t, claims.Audience, jwtx.DefaultAudience)
			require.Equal(t,
				jwtx.DefaultAccessTokenTTL,
				claims.ExpiresAt.Sub(claims.IssuedAt.Time),
			)
		})
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	codec := newCodec(t, nil)

	token, err := codec.SignRefresh("user-1")
	require.NoError(t, err)

	claims, err := codec.VerifyRefresh(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UID)
	require.NotEmpty(t, claims.TokenID())
	require.Equal(t, jwtx.DefaultRefreshTokenTTL, claims.ExpiresAt.Sub(claims.IssuedAt.Time))

	// Two refresh tokens for the same user must be individually trackable
	other, err := codec.SignRefresh("user-1")
	require.NoError(t, err)
	otherClaims, err := codec.VerifyRefresh(other)
	require.NoError(t, err)
	require.NotEqual(t, claims.TokenID(), otherClaims.TokenID())
}

func TestSignRequiresUID(t *testing.T) {
	codec := newCodec(t, nil)

	_, err := codec.SignAccess(jwtx.Identity{Email: "nobody@example.com"})
	require.ErrorIs(t, err, jwtx.ErrMissingUID)

	_, err = codec.SignRefresh("")
	require.ErrorIs(t, err, jwtx.ErrMissingUID)
}

func TestExpiryEnforcement(t *testing.T) {
	id := jwtx.Identity{UID: "user-1", Email: "maker@example.com", Username: "maker"}
	verifier := newCodec(t, nil)

	t.Run("past exp fails", func(t *testing.T) {
		past := newCodec(t, func() time.Time { return time.Now().Add(-20 * time.Minute) })

		token, err := past.SignAccess(id)
		require.NoError(t, err)

		_, err = verifier.VerifyAccess(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("future exp succeeds", func(t *testing.T) {
		recent := newCodec(t, func() time.Time { return time.Now().Add(-14 * time.Minute) })

		token, err := recent.SignAccess(id)
		require.NoError(t, err)

		_, err = verifier.VerifyAccess(token)
		require.NoError(t, err)
	})

	t.Run("refresh expires after seven days", func(t *testing.T) {
		past := newCodec(t, func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) })

		token, err := past.SignRefresh(id.UID)
		require.NoError(t, err)

		_, err = verifier.VerifyRefresh(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("verification uses the codec clock", func(t *testing.T) {
		token, err := verifier.SignAccess(id)
		require.NoError(t, err)

		future := newCodec(t, func() time.Time { return time.Now().Add(16 * time.Minute) })
		_, err = future.VerifyAccess(token)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})
}

func TestKeySeparation(t *testing.T) {
	codec := newCodec(t, nil)

	t.Run("access token is not a refresh token", func(t *testing.T) {
		token, err := codec.SignAccess(jwtx.Identity{UID: "user-1"})
		require.NoError(t, err)

		_, err = codec.VerifyRefresh(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		token, err := codec.SignRefresh("user-1")
		require.NoError(t, err)

		_, err = codec.VerifyAccess(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	})

	t.Run("overlapping claim shapes still fail", func(t *testing.T) {
		// A refresh-shaped payload signed with the access secret
		now := time.Now()
		claims := jwtx.RefreshClaims{
			UID: "user-1",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    jwtx.DefaultIssuer,
				Audience:  jwt.ClaimStrings{jwtx.DefaultAudience},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				ID:        jwtx.NewJTI(),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(accessSecret)
		require.NoError(t, err)

		_, err = codec.VerifyRefresh(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
		require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})
}

func TestVerifyRejects(t *testing.T) {
	codec := newCodec(t, nil)
	id := jwtx.Identity{UID: "user-1", Email: "maker@example.com", Username: "maker"}

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := jwtx.NewCodec(jwtx.CodecConfig{
			AccessSecret:  accessSecret,
			RefreshSecret: refreshSecret,
			Issuer:        "someone-else",
		})
		require.NoError(t, err)

		token, err := other.SignAccess(id)
		require.NoError(t, err)

		_, err = codec.VerifyAccess(token)
		require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other, err := jwtx.NewCodec(jwtx.CodecConfig{
			AccessSecret:  accessSecret,
			RefreshSecret: refreshSecret,
			Audience:      "craftconnect-admins",
		})
		require.NoError(t, err)

		token, err := other.SignAccess(id)
		require.NoError(t, err)

		_, err = codec.VerifyAccess(token)
		require.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)
	})

	t.Run("tampered payload", func(t *testing.T) {
		token, err := codec.SignAccess(id)
		require.NoError(t, err)

		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)

		// Swap in another user's payload but keep the original signature
		forged, err := codec.SignAccess(jwtx.Identity{UID: "admin"})
		require.NoError(t, err)
		parts[1] = strings.Split(forged, ".")[1]

		_, err = codec.VerifyAccess(strings.Join(parts, "."))
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	})

	t.Run("unsigned token", func(t *testing.T) {
		now := time.Now()
		claims := jwtx.AccessClaims{
			UID: "user-1",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    jwtx.DefaultIssuer,
				Audience:  jwt.ClaimStrings{jwtx.DefaultAudience},
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.VerifyAccess(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	})

	t.Run("missing exp", func(t *testing.T) {
		claims := jwtx.AccessClaims{
			UID: "user-1",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:   jwtx.DefaultIssuer,
				Audience: jwt.ClaimStrings{jwtx.DefaultAudience},
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(accessSecret)
		require.NoError(t, err)

		_, err = codec.VerifyAccess(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	})

	t.Run("garbage and empty input", func(t *testing.T) {
		_, err := codec.VerifyAccess("not-a-token")
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)

		_, err = codec.VerifyRefresh("")
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	})
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	codec := newCodec(t, nil)

	t.Run("fresh token", func(t *testing.T) {
		token, err := codec.SignAccess(jwtx.Identity{UID: "user-1"})
		require.NoError(t, err)
		require.False(t, jwtx.IsExpired(token, now))
		require.False(t, codec.IsExpired(token))
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := codec.SignAccess(jwtx.Identity{UID: "user-1"})
		require.NoError(t, err)
		require.True(t, jwtx.IsExpired(token, now.Add(time.Hour)))
	})

	t.Run("signature is not checked", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": now.Add(time.Hour).Unix(),
		}).SignedString([]byte("some-other-secret"))
		require.NoError(t, err)
		require.False(t, jwtx.IsExpired(token, now))
	})

	t.Run("defaults to expired", func(t *testing.T) {
		require.True(t, jwtx.IsExpired("", now))
		require.True(t, jwtx.IsExpired("garbage", now))
		require.True(t, jwtx.IsExpired("a.b.c", now))

		noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"uid": "user-1",
		}).SignedString(accessSecret)
		require.NoError(t, err)
		require.True(t, jwtx.IsExpired(noExp, now))
	})
}
