package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/craftconnect/internal/gateway/app"
	"github.com/aussiebroadwan/craftconnect/pkg/cryptox"
	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Helpers for end-to-end tests. The gateway runs in-process behind an
 * httptest server and is driven through pkg/sessionclient the way a
 * browser or app client would.
 */

const identitySecret = "e2e-identity-provider-secret"

// gatewayEnv is the environment every test gateway starts with.
func gatewayEnv(t *testing.T) map[string]string {
	return map[string]string{
		app.ConfigFileEnv:     "",
		"ENV":                 "test",
		"JWT_SECRET":          "e2e-access-secret-0123456789abcdef-0123",
		"JWT_REFRESH_SECRET":  "e2e-refresh-secret-0123456789abcdef-0123",
		"IDENTITY_SECRET":     identitySecret,
		"DATABASE_FILE":       filepath.Join(t.TempDir(), "gateway.db"),
		"REDIS_URL":           "",
		"LOG_LEVEL":           "error",
		"LOG_FORMAT":          "json",
		"RAZORPAY_KEY_ID":     "",
		"RAZORPAY_KEY_SECRET": "",
	}
}

// startGateway boots a fully wired gateway and returns its base URL.
func startGateway(t *testing.T, overrides map[string]string) string {
	t.Helper()

	env := gatewayEnv(t)
	for k, v := range overrides {
		env[k] = v
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := app.LoadConfig()
	require.NoError(t, err)

	a, err := app.New(cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Close()
	})
	return srv.URL
}

// startRedis runs a throwaway redis container. The test is skipped when
// Docker is not available.
func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in -short mode")
	}

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

// login plays the identity provider's backend: it signs the identity and
// asks the gateway for a first pair.
func login(t *testing.T, baseURL string, id jwtx.Identity) jwtx.TokenPair {
	t.Helper()

	body, err := json.Marshal(id)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, baseURL+"/auth/login", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Identity-Signature", cryptox.SignHex(identitySecret, string(body)))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pair jwtx.TokenPair
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))
	assertTokenPair(t, pair)
	return pair
}

// getProtected calls /protected with authHeader and returns the status and
// the echoed identity.
func getProtected(t *testing.T, baseURL, authHeader string) (int, jwtx.Identity) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, baseURL+"/protected", nil)
	require.NoError(t, err)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		User jwtx.Identity `json:"user"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out.User
}

func assertTokenPair(t *testing.T, pair jwtx.TokenPair) {
	t.Helper()
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, int64(900000), pair.ExpiresIn)
	require.Equal(t, int64(604800000), pair.RefreshExpiresIn)
}

// clock is a settable client-side clock.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Now()} }

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
