package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/craftconnect/internal/gateway/domain"
)

var (
	ErrNotFound       = errors.New("store: not found")
	ErrAlreadyRevoked = errors.New("store: already revoked")
)

// Store is the root data access interface. Drivers expose sub-repositories
// rather than flat methods.
type Store interface {
	Profiles() Profiles
	Revocations() Revocations

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backing services are reachable.
	Ping(ctx context.Context) error
}

type Profiles interface {
	GetProfile(ctx context.Context, uid string) (domain.Profile, error)

	// UpsertProfile inserts p or updates email and username in place.
	// CreatedAt is preserved on update.
	UpsertProfile(ctx context.Context, p domain.Profile) error

	DeleteProfile(ctx context.Context, uid string) error
}

type Revocations interface {
	// Revoke records jti as spent. It is atomic: if jti is already recorded
	// it returns ErrAlreadyRevoked and changes nothing.
	Revoke(ctx context.Context, jti, uid string, expiresAt time.Time) error

	IsRevoked(ctx context.Context, jti string) (bool, error)

	// DeleteExpired drops entries whose token has expired and reports how
	// many were removed. Drivers with native expiry return 0.
	DeleteExpired(ctx context.Context) (int64, error)
}
