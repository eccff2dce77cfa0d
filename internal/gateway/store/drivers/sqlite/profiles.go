package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/craftconnect/internal/gateway/domain"
	"github.com/aussiebroadwan/craftconnect/internal/gateway/store"
)

type profilesRepo struct {
	db  *sql.DB
	now func() time.Time
}

func (r *profilesRepo) GetProfile(ctx context.Context, uid string) (domain.Profile, error) {
	var (
		p                  domain.Profile
		createdAt, updated int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT uid, email, username, created_at_ms, updated_at_ms FROM profiles WHERE uid = ?`,
		uid,
	).Scan(&p.UID, &p.Email, &p.Username, &createdAt, &updated)
	if err != nil {
		return domain.Profile{}, mapNotFound(err)
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

func (r *profilesRepo) UpsertProfile(ctx context.Context, p domain.Profile) error {
	now := toMillis(r.now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (uid, email, username, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			email         = excluded.email,
			username      = excluded.username,
			updated_at_ms = excluded.updated_at_ms`,
		p.UID, p.Email, p.Username, now, now,
	)
	return err
}

func (r *profilesRepo) DeleteProfile(ctx context.Context, uid string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE uid = ?`, uid)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}
