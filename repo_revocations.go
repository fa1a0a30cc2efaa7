package gateway

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Revocations is the denylist store consulted on every bearer resolution.
// Implementations report storage errors verbatim so the checker can apply its
// missing-store vs. broken-store policy.
type Revocations interface {
	IsRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error)
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	RevokeTx(ctx context.Context, tx bun.IDB, tokenID string, expiresAt time.Time) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type revocations struct {
	db *bun.DB
}

var _ Revocations = (*revocations)(nil)

func NewRevocationsRepository(db *bun.DB) Revocations {
	return &revocations{db: db}
}

func (r *revocations) IsRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	return r.db.NewSelect().
		Model((*RevocationEntry)(nil)).
		Where("?TableAlias.token_id = ?", tokenID).
		Where("?TableAlias.expires_at > ?", now).
		Exists(ctx)
}

func (r *revocations) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	return r.RevokeTx(ctx, r.db, tokenID, expiresAt)
}

func (r *revocations) RevokeTx(ctx context.Context, tx bun.IDB, tokenID string, expiresAt time.Time) error {
	entry := &RevocationEntry{
		TokenID:   tokenID,
		ExpiresAt: expiresAt,
	}

	_, err := tx.NewInsert().
		Model(entry).
		On("CONFLICT (token_id) DO UPDATE").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	return err
}

// PurgeExpired deletes entries whose tokens have expired on their own. Safe
// to run from a janitor loop; queries already filter on expires_at.
func (r *revocations) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*RevocationEntry)(nil)).
		Where("?TableAlias.expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
