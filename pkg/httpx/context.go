package httpx

import (
	"context"

	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// WithIdentity attaches verified access claims to ctx.
func WithIdentity(ctx context.Context, c *jwtx.AccessClaims) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, c)
}

// IdentityFrom returns the claims attached by RequireAuth or OptionalAuth.
func IdentityFrom(ctx context.Context) (*jwtx.AccessClaims, bool) {
	c, ok := ctx.Value(ctxKeyIdentity).(*jwtx.AccessClaims)
	return c, ok && c != nil
}

// UserID is the uid of the attached identity, or "".
func UserID(ctx context.Context) string {
	if c, ok := IdentityFrom(ctx); ok {
		return c.UID
	}
	return ""
}
