// Package sessionclient keeps a client's copy of a session's token pair and
// renews it against the gateway's refresh endpoint.
package sessionclient

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshTimeout = 10 * time.Second
	DefaultRefreshPath    = "/auth/refresh"
	DefaultSessionPath    = "/auth/session"
	DefaultLogoutPath     = "/auth/logout"

	// DefaultAutoRefreshInterval is how often RunAutoRefresh checks expiry.
	DefaultAutoRefreshInterval = 5 * time.Minute
)

// Store is the client-side session record. It is safe for concurrent use.
type Store struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
	timeout time.Duration

	refreshPath string
	sessionPath string
	logoutPath  string

	mu      sync.Mutex // guards storage
	storage Storage

	active atomic.Bool
	flight singleflight.Group
}

type Option func(*Store)

func WithHTTPClient(c *http.Client) Option { return func(s *Store) { s.http = c } }

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithRefreshTimeout bounds each refresh round trip. A timeout counts as a
// failed refresh.
func WithRefreshTimeout(d time.Duration) Option { return func(s *Store) { s.timeout = d } }

func WithRefreshPath(p string) Option { return func(s *Store) { s.refreshPath = p } }

// NewStore returns a Store talking to the gateway at baseURL and keeping its
// record in storage. Any tokens already in storage are picked up.
func NewStore(baseURL string, storage Storage, opts ...Option) *Store {
	s := &Store{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		http:        http.DefaultClient,
		now:         time.Now,
		timeout:     DefaultRefreshTimeout,
		refreshPath: DefaultRefreshPath,
		sessionPath: DefaultSessionPath,
		logoutPath:  DefaultLogoutPath,
		storage:     storage,
	}
	for _, opt := range opts {
		opt(s)
	}

	// A stored refresh token that has not lapsed means a session can still be
	// renewed, even if the access token is long gone.
	if rt, ok := s.RefreshToken(); ok && !jwtx.IsExpired(rt, s.now()) {
		s.active.Store(true)
	}
	return s
}

// SetTokens stores a new pair. The access expiry is recorded as an absolute
// millisecond timestamp.
func (s *Store) SetTokens(access, refresh string, accessLifetimeMs int64) {
	expiry := s.now().UnixMilli() + accessLifetimeMs

	s.mu.Lock()
	s.storage.Set(KeyAccessToken, access)
	s.storage.Set(KeyRefreshToken, refresh)
	s.storage.Set(KeyTokenExpiry, strconv.FormatInt(expiry, 10))
	s.mu.Unlock()

	s.active.Store(true)
}

// AccessToken returns the stored access token without checking it. Callers
// making requests should use ValidAccessToken.
func (s *Store) AccessToken() (string, bool) {
	return s.get(KeyAccessToken)
}

func (s *Store) RefreshToken() (string, bool) {
	return s.get(KeyRefreshToken)
}

func (s *Store) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.storage.Get(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// IsAccessTokenExpired is true when no expiry is stored, the stored value is
// unreadable, or now has reached it.
func (s *Store) IsAccessTokenExpired() bool {
	raw, ok := s.get(KeyTokenExpiry)
	if !ok {
		return true
	}
	expiry, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true
	}
	return s.now().UnixMilli() >= expiry
}

// ClearTokens removes the whole record. Safe to call on an empty store.
func (s *Store) ClearTokens() {
	s.mu.Lock()
	s.storage.Remove(KeyAccessToken)
	s.storage.Remove(KeyRefreshToken)
	s.storage.Remove(KeyTokenExpiry)
	s.mu.Unlock()

	s.active.Store(false)
}

// SessionActive reports whether the store believes it holds a usable session.
// It turns false when a refresh fails or the tokens are cleared.
func (s *Store) SessionActive() bool {
	return s.active.Load()
}
