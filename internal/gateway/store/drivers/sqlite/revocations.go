package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/craftconnect/internal/gateway/store"
)

type revocationsRepo struct {
	db  *sql.DB
	now func() time.Time
}

func (r *revocationsRepo) Revoke(ctx context.Context, jti, uid string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO revocations (jti, uid, expires_at_ms, revoked_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (jti) DO NOTHING`,
		jti, uid, toMillis(expiresAt), toMillis(r.now()),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrAlreadyRevoked
	}
	return nil
}

func (r *revocationsRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM revocations WHERE jti = ?`, jti).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *revocationsRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM revocations WHERE expires_at_ms <= ?`, toMillis(r.now()),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
