// Package redis keeps the refresh-token revocation list in redis, letting
// several gateway replicas share it. Entries expire on their own.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/craftconnect/internal/gateway/store"
	goredis "github.com/redis/go-redis/v9"
)

const DefaultPrefix = "craftconnect:revoked:"

// minTTL keeps entries for tokens that are about to lapse from being written
// without an expiry.
const minTTL = time.Second

type Revocations struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
}

// Open connects to the redis server named by url (redis://host:port/db).
func Open(ctx context.Context, url string) (*Revocations, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return New(client), nil
}

func New(client *goredis.Client) *Revocations {
	return &Revocations{client: client, prefix: DefaultPrefix, now: time.Now}
}

// Client exposes the underlying connection so other components can share it.
func (r *Revocations) Client() *goredis.Client { return r.client }

func (r *Revocations) Revoke(ctx context.Context, jti, uid string, expiresAt time.Time) error {
	ttl := max(expiresAt.Sub(r.now()), minTTL)

	ok, err := r.client.SetNX(ctx, r.prefix+jti, uid, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: revoke: %w", err)
	}
	if !ok {
		return store.ErrAlreadyRevoked
	}
	return nil
}

func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis: is revoked: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired is a no-op; redis expires the keys itself.
func (r *Revocations) DeleteExpired(context.Context) (int64, error) { return 0, nil }

func (r *Revocations) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Revocations) Close() error { return r.client.Close() }

var _ store.Backend = (*Revocations)(nil)
