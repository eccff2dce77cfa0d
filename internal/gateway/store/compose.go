package store

import (
	"context"
	"errors"
)

// Backend is a standalone revocation list with its own connection.
type Backend interface {
	Revocations
	Ping(ctx context.Context) error
	Close() error
}

// WithRevocations returns base with its revocation list replaced by rev.
// Ping and Close cover both.
func WithRevocations(base Store, rev Backend) Store {
	return &composed{Store: base, rev: rev}
}

type composed struct {
	Store
	rev Backend
}

func (c *composed) Revocations() Revocations { return c.rev }

func (c *composed) Ping(ctx context.Context) error {
	return errors.Join(c.Store.Ping(ctx), c.rev.Ping(ctx))
}

func (c *composed) Close() error {
	return errors.Join(c.rev.Close(), c.Store.Close())
}
