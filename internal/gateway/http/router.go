package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/craftconnect/internal/gateway/metrics"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/service"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/session"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/store"
	"github.com/aussiebroadwan/craftconnect/pkg/httpx"
	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/aussiebroadwan/craftconnect/pkg/slogx"

	_ "github.com/aussiebroadwan/craftconnect/api/gateway" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	issuer       *jwtx.Issuer
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	now          func() time.Time

	store          store.Store
	SessionService *service.SessionService
	Sessions       *session.Store
	Payments       *PaymentHandler
	Metrics        *metrics.Metrics // Optional: /metrics and counters are skipped when nil

	// IdentitySecret enables POST /auth/login when set.
	IdentitySecret string
}

func NewRouter(
	issuer *jwtx.Issuer,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		now:          time.Now,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerProtected()
	r.registerPayments()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			CraftConnect Session Gateway API
//	@version		0.1.0
//	@description	Dual-token session gateway. Access tokens are short lived; refresh tokens are single use
//	@description	and rotate on every refresh. Browsers receive both as HttpOnly cookies.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/craftconnect
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) limitOpts() []httpx.RateLimitOption {
	if r.Metrics == nil {
		return nil
	}
	return []httpx.RateLimitOption{httpx.WithRejectHook(r.Metrics.RateLimitHook)}
}

func (r *Router) requireAuth() httpx.Middleware {
	codec := r.issuer.Codec()
	if r.Metrics == nil {
		return httpx.RequireAuth(codec)
	}
	return httpx.RequireAuth(codec, r.Metrics.AuthRejectHook)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Service:        r.SessionService,
		Sessions:       r.Sessions,
		IdentitySecret: r.IdentitySecret,
	}
	opts := r.limitOpts()

	// Login only exists when an identity provider secret is configured
	if r.IdentitySecret != "" {
		r.Mux.Handle("POST /auth/login",
			httpx.Chain(http.HandlerFunc(h.HandleLogin),
				httpx.RateLimitByIP(httpx.StrictLimit, opts...),
			),
		)
	}

	// POST /auth/session - strict, a new session per call
	r.Mux.Handle("POST /auth/session",
		httpx.Chain(http.HandlerFunc(h.HandleEstablish),
			httpx.RateLimitByIP(httpx.StrictLimit, opts...),
		),
	)

	// POST /auth/refresh - strict, spends a refresh token
	r.Mux.Handle("POST /auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.StrictLimit, opts...),
		),
	)

	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit, opts...),
		),
	)

	// GET /auth/me - anonymous callers allowed
	r.Mux.Handle("GET /auth/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			httpx.OptionalAuth(r.issuer.Codec()),
			httpx.RateLimitByUser(httpx.LenientLimit, opts...),
		),
	)
}

func (r *Router) registerProtected() {
	secured := httpx.Chain(ProtectedHandler(r.now),
		r.requireAuth(),
		httpx.RateLimitByUser(httpx.LenientLimit, r.limitOpts()...),
	)

	r.Mux.Handle("GET /protected", secured)
	r.Mux.Handle("POST /protected", secured)
}

func (r *Router) registerPayments() {
	if r.Payments == nil {
		return
	}
	h := r.Payments
	opts := r.limitOpts()

	r.Mux.Handle("POST /payments/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.ModerateLimit, opts...),
		),
	)

	r.Mux.Handle("POST /payments/orders",
		httpx.Chain(http.HandlerFunc(h.HandleCreateOrder),
			r.requireAuth(),
			httpx.RateLimitByUser(httpx.ModerateLimit, opts...),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.issuer),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}
