package domain

import (
	"strings"
	"time"

	"github.com/aussiebroadwan/craftconnect/pkg/jwtx"
)

// Profile is the gateway's copy of what the identity provider knows about a
// user. Refreshed access tokens are always minted from it.
type Profile struct {
	UID       string
	Email     string
	Username  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Profile) Identity() jwtx.Identity {
	return jwtx.Identity{UID: p.UID, Email: p.Email, Username: p.Username}
}

// FallbackUsername is the local part of email, or "" when email has none.
func FallbackUsername(email string) string {
	local, _, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	return strings.TrimSpace(local)
}
