package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
	"github.com/aussiebroadwan/craftconnect/pkg/slogx"
)

// AccessCookie is the cookie the server session store writes the access
// token into.
const AccessCookie = "access_token"

// AccessVerifier verifies access tokens. *jwtx.Codec satisfies it.
type AccessVerifier interface {
	VerifyAccess(token string) (*jwtx.AccessClaims, error)
}

var errNoCredential = errors.New("httpx: no credential presented")

// Reasons passed to an AuthRejectHook.
const (
	RejectMissing = "missing"
	RejectInvalid = "invalid"
)

// AuthRejectHook observes requests turned away by RequireAuth.
type AuthRejectHook func(reason string, r *http.Request)

// RequireAuth rejects requests without a valid access token. A missing token
// and a bad token produce different messages.
func RequireAuth(v AccessVerifier, hooks ...AuthRejectHook) Middleware {
	reject := func(reason string, r *http.Request) {
		for _, h := range hooks {
			h(reason, r)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r, v)
			switch {
			case errors.Is(err, errNoCredential):
				reject(RejectMissing, r)
				w.Header().Set("WWW-Authenticate", `Bearer realm="craftconnect"`)
				ErrAuthenticationRequired.WriteError(w)
				return
			case err != nil:
				reject(RejectInvalid, r)
				slogx.FromContext(r.Context()).Debug("access token rejected", "err", err)
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				ErrInvalidToken.WriteError(w)
				return
			}

			ctx := WithIdentity(r.Context(), claims)
			ctx = slogx.WithUser(ctx, claims.UID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the identity when a valid token is presented and
// otherwise passes the request through untouched.
func OptionalAuth(v AccessVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r, v)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithIdentity(r.Context(), claims)
			ctx = slogx.WithUser(ctx, claims.UID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, v AccessVerifier) (*jwtx.AccessClaims, error) {
	raw := ExtractToken(r)
	if raw == "" {
		return nil, errNoCredential
	}
	return v.VerifyAccess(raw)
}

// ExtractToken returns the bearer token from the Authorization header, or the
// access cookie when the header carries no usable bearer token.
func ExtractToken(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		return c.Value
	}
	return ""
}
