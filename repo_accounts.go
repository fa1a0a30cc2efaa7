package gateway

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var IncrementSessionEpochSQL = `UPDATE "accounts" AS "acct"
SET
	"session_epoch" = "session_epoch" + 1,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"acct"."deleted_at" IS NULL
AND (
	"acct"."id" = ?
) RETURNING *;`

type Accounts interface {
	repository.Repository[*Account]

	GetWithBilling(ctx context.Context, id uuid.UUID) (*Account, error)
	GetWithBillingTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)

	IncrementSessionEpoch(ctx context.Context, id uuid.UUID) (*Account, error)
	IncrementSessionEpochTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)

	UpdateLockState(ctx context.Context, id uuid.UUID, state LockState, expiresAt *time.Time) (*Account, error)
	UpdateLockStateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, state LockState, expiresAt *time.Time) (*Account, error)
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) GetWithBilling(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.GetWithBillingTx(ctx, a.db, id)
}

func (a *accounts) GetWithBillingTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Relation("Billing").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}

	record.EnsureDefaults()

	return record, nil
}

func (a *accounts) IncrementSessionEpoch(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.IncrementSessionEpochTx(ctx, a.db, id)
}

func (a *accounts) IncrementSessionEpochTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := tx.NewRaw(IncrementSessionEpochSQL, id.String()).Scan(ctx, record)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) UpdateLockState(ctx context.Context, id uuid.UUID, state LockState, expiresAt *time.Time) (*Account, error) {
	return a.UpdateLockStateTx(ctx, a.db, id, state, expiresAt)
}

func (a *accounts) UpdateLockStateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, state LockState, expiresAt *time.Time) (*Account, error) {
	record := &Account{
		ID:            id,
		LockState:     state,
		LockExpiresAt: expiresAt,
	}

	q := tx.NewUpdate().
		Model(record).
		Column("lock_state", "lock_expires_at").
		Where("?TableAlias.id = ?", id).
		Returning("*")

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return record, nil
}
