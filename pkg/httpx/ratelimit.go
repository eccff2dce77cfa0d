package httpx

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/craftconnect/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket: RequestsPerWindow refill over Window,
// with up to Burst tokens banked.
type RateLimitConfig struct {
	Name              string
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// Profiles used by the gateway routes. Each can be overridden with
// RATELIMIT_<NAME>_REQUESTS, RATELIMIT_<NAME>_WINDOW_SEC and
// RATELIMIT_<NAME>_BURST.
var (
	// StrictLimit guards session creation and refresh.
	StrictLimit = RateLimitConfig{Name: "strict", RequestsPerWindow: 10, Window: time.Minute, Burst: 10}
	// ModerateLimit guards logout and payment calls.
	ModerateLimit = RateLimitConfig{Name: "moderate", RequestsPerWindow: 30, Window: time.Minute, Burst: 30}
	LenientLimit  = RateLimitConfig{Name: "lenient", RequestsPerWindow: 120, Window: time.Minute, Burst: 120}
	PublicLimit   = RateLimitConfig{Name: "public", RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
)

func init() {
	StrictLimit = RateLimitFromEnv(StrictLimit)
	ModerateLimit = RateLimitFromEnv(ModerateLimit)
	LenientLimit = RateLimitFromEnv(LenientLimit)
	PublicLimit = RateLimitFromEnv(PublicLimit)
}

// RateLimitFromEnv applies any RATELIMIT_<NAME>_* overrides to def.
// Unparseable or non-positive values are ignored.
func RateLimitFromEnv(def RateLimitConfig) RateLimitConfig {
	prefix := "RATELIMIT_" + strings.ToUpper(def.Name) + "_"
	cfg := def

	if n, ok := positiveEnv(prefix + "REQUESTS"); ok {
		cfg.RequestsPerWindow = n
	}
	if n, ok := positiveEnv(prefix + "WINDOW_SEC"); ok {
		cfg.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnv(prefix + "BURST"); ok {
		cfg.Burst = n
	}
	return cfg
}

func positiveEnv(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// KeyFunc picks the bucket a request is charged to. An empty key is never
// limited.
type KeyFunc func(*http.Request) string

// ClientIP is the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// UserOrIP charges authenticated requests to their uid and anonymous ones to
// their address. It must run after RequireAuth or OptionalAuth.
func UserOrIP(r *http.Request) string {
	if uid := UserID(r.Context()); uid != "" {
		return "uid:" + uid
	}
	return "ip:" + ClientIP(r)
}

// RateLimitOption tweaks a limiter.
type RateLimitOption func(*limiterSet)

// WithRejectHook is called for every rejected request.
func WithRejectHook(fn func(profile string, r *http.Request)) RateLimitOption {
	return func(s *limiterSet) { s.onReject = fn }
}

// WithIdleTTL sets how long an unused bucket is kept. Default 10m.
func WithIdleTTL(d time.Duration) RateLimitOption {
	return func(s *limiterSet) { s.idleTTL = d }
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	onReject  func(string, *http.Request)
}

func (s *limiterSet) allow(key string, now time.Time) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > s.idleTTL {
		for k, b := range s.buckets {
			if now.Sub(b.lastSeen) > s.idleTTL {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now

	if b.lim.AllowN(now, 1) {
		return true, 0
	}
	r := b.lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay
}

// RateLimit limits requests per key according to cfg. Rejected requests get
// 429 with Retry-After.
func RateLimit(cfg RateLimitConfig, key KeyFunc, opts ...RateLimitOption) Middleware {
	set := &limiterSet{
		buckets:   make(map[string]*bucket),
		limit:     rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:     cfg.Burst,
		idleTTL:   10 * time.Minute,
		lastSweep: time.Now(),
	}
	for _, opt := range opts {
		opt(set)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, delay := set.allow(k, time.Now())
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retry := max(int(delay.Round(time.Second)/time.Second), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Window", cfg.Window.String())

			slogx.FromContext(r.Context()).Warn("rate limited",
				"profile", cfg.Name,
				"path", r.URL.Path,
				"retry_after", retry,
			)
			if set.onReject != nil {
				set.onReject(cfg.Name, r)
			}
			ErrTooManyRequests.WriteError(w)
		})
	}
}

// RateLimitByIP limits by ClientIP.
func RateLimitByIP(cfg RateLimitConfig, opts ...RateLimitOption) Middleware {
	return RateLimit(cfg, ClientIP, opts...)
}

// RateLimitByUser limits by UserOrIP.
func RateLimitByUser(cfg RateLimitConfig, opts ...RateLimitOption) Middleware {
	return RateLimit(cfg, UserOrIP, opts...)
}
