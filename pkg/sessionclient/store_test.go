package sessionclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/craftconnect/pkg/httpx"
	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/aussiebroadwan/craftconnect/pkg/sessionclient"
	"github.com/stretchr/testify/require"
)

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Now()} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newIssuer(t *testing.T) *jwtx.Issuer {
	t.Helper()
	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		AccessSecret:  []byte("client-access-secret-0123456789abcdef"),
		RefreshSecret: []byte("client-refresh-secret-0123456789abcdef"),
	})
	require.NoError(t, err)
	return jwtx.NewIssuer(codec)
}

// gateway is a fake refresh endpoint.
type gateway struct {
	*httptest.Server

	issuer *jwtx.Issuer
	calls  atomic.Int32

	mu     sync.Mutex
	status int
	body   string
	delay  time.Duration
	last   map[string]string
}

func newGateway(t *testing.T) *gateway {
	g := &gateway{issuer: newIssuer(t), status: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		g.calls.Add(1)
		g.mu.Lock()
		status, body, delay := g.status, g.body, g.delay
		g.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["refreshToken"] == "" {
			httpx.ErrRefreshRequired.WriteError(w)
			return
		}
		if status != http.StatusOK {
			httpx.NewError(status, "Failed to refresh token").WriteError(w)
			return
		}
		if body != "" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
			return
		}
		pair, err := g.issuer.IssuePair(jwtx.Identity{UID: "user-1", Email: "maker@example.com", Username: "maker"})
		if err != nil {
			httpx.ErrInternal.WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, pair)
	})
	for _, path := range []string{"/auth/session", "/auth/logout"} {
		mux.HandleFunc("POST "+path, func(w http.ResponseWriter, r *http.Request) {
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			g.mu.Lock()
			g.last = req
			status := g.status
			g.mu.Unlock()
			if status != http.StatusOK {
				httpx.ErrSessionCreateFailed.WriteError(w)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
		})
	}

	g.Server = httptest.NewServer(mux)
	t.Cleanup(g.Close)
	return g
}

func (g *gateway) set(status int, body string, delay time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status, g.body, g.delay = status, body, delay
}

func (g *gateway) lastBody() map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func TestSetAndRead(t *testing.T) {
	clk := newClock()
	storage := sessionclient.NewMemoryStorage()
	s := sessionclient.NewStore("http://unused", storage, sessionclient.WithClock(clk.Now))

	require.True(t, s.IsAccessTokenExpired(), "empty store counts as expired")
	_, ok := s.AccessToken()
	require.False(t, ok)

	s.SetTokens("access", "refresh", 900000)

	at, ok := s.AccessToken()
	require.True(t, ok)
	require.Equal(t, "access", at)
	rt, ok := s.RefreshToken()
	require.True(t, ok)
	require.Equal(t, "refresh", rt)
	require.True(t, s.SessionActive())

	raw, ok := storage.Get(sessionclient.KeyTokenExpiry)
	require.True(t, ok)
	require.Equal(t, clk.Now().UnixMilli()+900000, mustInt(t, raw))

	require.False(t, s.IsAccessTokenExpired())
	clk.Advance(15*time.Minute - time.Millisecond)
	require.False(t, s.IsAccessTokenExpired())
	clk.Advance(time.Millisecond)
	require.True(t, s.IsAccessTokenExpired(), "now == expiry is expired")
}

func TestUnreadableExpiry(t *testing.T) {
	storage := sessionclient.NewMemoryStorage()
	storage.Set(sessionclient.KeyAccessToken, "access")
	storage.Set(sessionclient.KeyTokenExpiry, "soon")

	s := sessionclient.NewStore("http://unused", storage)
	require.True(t, s.IsAccessTokenExpired())
}

func TestClearTokensIdempotent(t *testing.T) {
	storage := sessionclient.NewMemoryStorage()
	s := sessionclient.NewStore("http://unused", storage)

	s.ClearTokens()
	require.Zero(t, storage.Len())

	s.SetTokens("a", "r", 1000)
	s.ClearTokens()
	s.ClearTokens()

	require.Zero(t, storage.Len())
	require.False(t, s.SessionActive())
	require.True(t, s.IsAccessTokenExpired())
}

func TestSessionActiveFromStorage(t *testing.T) {
	pair, err := newIssuer(t).IssuePair(jwtx.Identity{UID: "user-1"})
	require.NoError(t, err)

	t.Run("live refresh token", func(t *testing.T) {
		storage := sessionclient.NewMemoryStorage()
		storage.Set(sessionclient.KeyRefreshToken, pair.RefreshToken)
		require.True(t, sessionclient.NewStore("http://unused", storage).SessionActive())
	})

	t.Run("garbage refresh token", func(t *testing.T) {
		storage := sessionclient.NewMemoryStorage()
		storage.Set(sessionclient.KeyRefreshToken, "garbage")
		require.False(t, sessionclient.NewStore("http://unused", storage).SessionActive())
	})

	t.Run("empty", func(t *testing.T) {
		require.False(t, sessionclient.NewStore("http://unused", sessionclient.NewMemoryStorage()).SessionActive())
	})
}

func TestValidAccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh token needs no network", func(t *testing.T) {
		g := newGateway(t)
		s := sessionclient.NewStore(g.URL, sessionclient.NewMemoryStorage())
		s.SetTokens("access", "refresh", 60_000)

		tok, ok := s.ValidAccessToken(ctx)
		require.True(t, ok)
		require.Equal(t, "access", tok)
		require.Zero(t, g.calls.Load())
	})

	t.Run("expired token is refreshed", func(t *testing.T) {
		g := newGateway(t)
		clk := newClock()
		s := sessionclient.NewStore(g.URL, sessionclient.NewMemoryStorage(), sessionclient.WithClock(clk.Now))
		s.SetTokens("old-access", "old-refresh", 1000)
		clk.Advance(time.Second)

		tok, ok := s.ValidAccessToken(ctx)
		require.True(t, ok)
		require.NotEqual(t, "old-access", tok)
		require.EqualValues(t, 1, g.calls.Load())

		rt, _ := s.RefreshToken()
		require.NotEqual(t, "old-refresh", rt)
		require.False(t, s.IsAccessTokenExpired())
	})

	t.Run("nothing stored", func(t *testing.T) {
		g := newGateway(t)
		s := sessionclient.NewStore(g.URL, sessionclient.NewMemoryStorage())

		_, ok := s.ValidAccessToken(ctx)
		require.False(t, ok)
		require.Zero(t, g.calls.Load())
	})
}

func TestValidAccessTokenSingleFlight(t *testing.T) {
	g := newGateway(t)
	g.set(http.StatusOK, "", 200*time.Millisecond)

	clk := newClock()
	s := sessionclient.NewStore(g.URL, sessionclient.NewMemoryStorage(), sessionclient.WithClock(clk.Now))
	s.SetTokens("old-access", "old-refresh", 1000)
	clk.Advance(time.Second)

	const callers = 16
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], _ = s.ValidAccessToken(context.Background())
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, g.calls.Load(), "concurrent callers share one refresh")
	for _, tok := range tokens {
		require.Equal(t, tokens[0], tok)
		require.NotEmpty(t, tok)
	}
}

// staleExpiry serves one outdated expiry read, the view of a caller that
// checked the token just before another refresh landed.
type staleExpiry struct {
	*sessionclient.MemoryStorage
	stale atomic.Bool
}

func (s *staleExpiry) Get(key string) (string, bool) {
	if key == sessionclient.KeyTokenExpiry && s.stale.CompareAndSwap(true, false) {
		return "0", true
	}
	return s.MemoryStorage.Get(key)
}

func TestValidAccessTokenLateCallerSkipsRefresh(t *testing.T) {
	g := newGateway(t)
	storage := &staleExpiry{MemoryStorage: sessionclient.NewMemoryStorage()}
	s := sessionclient.NewStore(g.URL, storage)
	s.SetTokens("renewed-access", "renewed-refresh", 60_000)

	storage.stale.Store(true)
	tok, ok := s.ValidAccessToken(context.Background())
	require.True(t, ok)
	require.Equal(t, "renewed-access", tok)
	require.Zero(t, g.calls.Load())

	rt, _ := s.RefreshToken()
	require.Equal(t, "renewed-refresh", rt)
}

func TestRefreshTokensForcesRefresh(t *testing.T) {
	g := newGateway(t)
	s := sessionclient.NewStore(g.URL, sessionclient.NewMemoryStorage())
	s.SetTokens("access", "refresh", 60_000)

	require.True(t, s.RefreshTokens(context.Background()))
	require.EqualValues(t, 1, g.calls.Load())
}

func TestRefreshFailureKeepsTokens(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		status  int
		body    string
		delay   time.Duration
		timeout time.Duration
	}{
		{name: "rejected", status: http.StatusUnauthorized},
		{name: "server error", status: http.StatusInternalServerError},
		{name: "malformed body", status: http.StatusOK, body: `{"accessToken":""}`},
		{name: "zero lifetime", status: http.StatusOK, body: `{"accessToken":"a","refreshToken":"r","expiresIn":0}`},
		{name: "not json", status: http.StatusOK, body: `<html>`},
		{name: "timeout", status: http.StatusOK, delay: time.Second, timeout: 50 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t)
			g.set(tt.status, tt.body, tt.delay)

			opts := []sessionclient.Option{}
			if tt.timeout > 0 {
				opts = append(opts, sessionclient.WithRefreshTimeout(tt.timeout))
			}
			s := sessionclient.NewStore(g.URL, sessionclient.NewMemoryStorage(), opts...)
			s.SetTokens("old-access", "old-refresh", 0)

			require.False(t, s.RefreshTokens(ctx))
			require.False(t, s.SessionActive())

			at, _ := s.AccessToken()
			rt, _ := s.RefreshToken()
			require.Equal(t, "old-access", at)
			require.Equal(t, "old-refresh", rt)
		})
	}
}

func TestRefreshNetworkError(t *testing.T) {
	g := newGateway(t)
	url := g.URL
	g.Close()

	s := sessionclient.NewStore(url, sessionclient.NewMemoryStorage())
	s.SetTokens("old-access", "old-refresh", 0)

	require.False(t, s.RefreshTokens(context.Background()))
	at, _ := s.AccessToken()
	require.Equal(t, "old-access", at)
}

func mustInt(t *testing.T, s string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, json.Unmarshal([]byte(s), &n))
	return n
}
