package gateway_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/craftconnect/internal/gateway/events"
	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/aussiebroadwan/craftconnect/pkg/sessionclient"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var maker = jwtx.Identity{UID: "user-1", Email: "maker@example.com", Username: "maker"}

// TestSessionLifecycle runs the client through the whole session:
// 1. login and mirror the pair into the gateway
// 2. call a protected endpoint
// 3. let the access token lapse and renew through the client
// 4. log out and confirm the refresh token is dead
func TestSessionLifecycle(t *testing.T) {
	baseURL := startGateway(t, nil)
	runLifecycle(t, baseURL)
}

// TestSessionLifecycleRedis is the same flow with revocations and session
// events on redis.
func TestSessionLifecycleRedis(t *testing.T) {
	redisURL := startRedis(t)
	baseURL := startGateway(t, map[string]string{"REDIS_URL": redisURL})

	runLifecycle(t, baseURL)

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	n, err := client.XLen(context.Background(), events.Topic).Result()
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, int64(3), "established, refreshed and revoked events")
}

func runLifecycle(t *testing.T, baseURL string) {
	t.Helper()
	ctx := t.Context()
	clk := newClock()

	pair := login(t, baseURL, maker)

	client := sessionclient.NewStore(baseURL, sessionclient.NewMemoryStorage(), sessionclient.WithClock(clk.now))
	res := client.EstablishSession(ctx, pair)
	require.True(t, res.ClientStored)
	require.True(t, res.ServerStored, "server error: %v", res.ServerErr)
	require.True(t, client.SessionActive())

	header, ok := client.AuthHeader(ctx)
	require.True(t, ok)
	status, who := getProtected(t, baseURL, header)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, maker, who)

	// The client now believes its access token has lapsed
	clk.advance(16 * time.Minute)
	require.True(t, client.IsAccessTokenExpired())

	header, ok = client.AuthHeader(ctx)
	require.True(t, ok)
	status, _ = getProtected(t, baseURL, header)
	require.Equal(t, http.StatusOK, status)

	rotated, ok := client.RefreshToken()
	require.True(t, ok)
	require.NotEqual(t, pair.RefreshToken, rotated)

	require.NoError(t, client.Logout(ctx))
	require.False(t, client.SessionActive())
	_, ok = client.AccessToken()
	require.False(t, ok)

	// The rotated token was revoked at logout
	replay := sessionclient.NewStore(baseURL, sessionclient.NewMemoryStorage())
	replay.SetTokens("expired", rotated, 0)
	require.False(t, replay.RefreshTokens(ctx))
}

// TestConcurrentRefreshUsesTokenOnce races callers for a fresh token. Every
// caller gets one and the original refresh token cannot be replayed.
func TestConcurrentRefreshUsesTokenOnce(t *testing.T) {
	baseURL := startGateway(t, nil)
	ctx := t.Context()

	pair := login(t, baseURL, maker)

	client := sessionclient.NewStore(baseURL, sessionclient.NewMemoryStorage())
	client.SetTokens(pair.AccessToken, pair.RefreshToken, 0)

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = client.ValidAccessToken(ctx)
		}()
	}
	wg.Wait()

	for i, ok := range results {
		require.True(t, ok, "caller %d", i)
	}

	// Whatever the interleaving, the original token is spent
	replay := sessionclient.NewStore(baseURL, sessionclient.NewMemoryStorage())
	replay.SetTokens("expired", pair.RefreshToken, 0)
	require.False(t, replay.RefreshTokens(ctx))
}

func TestHealthEndpoints(t *testing.T) {
	baseURL := startGateway(t, nil)

	for _, path := range []string{"/livez", "/readyz", "/metrics"} {
		resp, err := http.Get(baseURL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
