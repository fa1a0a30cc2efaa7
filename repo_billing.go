package gateway

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BillingRecords interface {
	repository.Repository[*BillingRecord]

	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*BillingRecord, error)
	GetByAccountIDTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*BillingRecord, error)

	GetByCustomerID(ctx context.Context, customerID string) (*BillingRecord, error)
	GetByCustomerIDTx(ctx context.Context, tx bun.IDB, customerID string) (*BillingRecord, error)

	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*BillingRecord, error)
	GetBySubscriptionIDTx(ctx context.Context, tx bun.IDB, subscriptionID string) (*BillingRecord, error)

	Save(ctx context.Context, record *BillingRecord) (*BillingRecord, error)
	SaveTx(ctx context.Context, tx bun.IDB, record *BillingRecord) (*BillingRecord, error)
}

type billingRecords struct {
	repository.Repository[*BillingRecord]
	db *bun.DB
}

var (
	_ BillingRecords                        = (*billingRecords)(nil)
	_ repository.Repository[*BillingRecord] = (*billingRecords)(nil)
)

func NewBillingRecordsRepository(db *bun.DB) BillingRecords {
	repo := repository.NewRepository[*BillingRecord](db, repository.ModelHandlers[*BillingRecord]{
		NewRecord: func() *BillingRecord { return &BillingRecord{} },
		GetID: func(r *BillingRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *BillingRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "subscription_id"
		},
	})

	return &billingRecords{
		Repository: repo,
		db:         db,
	}
}

func (b *billingRecords) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*BillingRecord, error) {
	return b.GetByAccountIDTx(ctx, b.db, accountID)
}

func (b *billingRecords) GetByAccountIDTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*BillingRecord, error) {
	return b.getByColumnTx(ctx, tx, "account_id", accountID.String())
}

func (b *billingRecords) GetByCustomerID(ctx context.Context, customerID string) (*BillingRecord, error) {
	return b.GetByCustomerIDTx(ctx, b.db, customerID)
}

func (b *billingRecords) GetByCustomerIDTx(ctx context.Context, tx bun.IDB, customerID string) (*BillingRecord, error) {
	return b.getByColumnTx(ctx, tx, "customer_id", customerID)
}

func (b *billingRecords) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*BillingRecord, error) {
	return b.GetBySubscriptionIDTx(ctx, b.db, subscriptionID)
}

func (b *billingRecords) GetBySubscriptionIDTx(ctx context.Context, tx bun.IDB, subscriptionID string) (*BillingRecord, error) {
	return b.getByColumnTx(ctx, tx, "subscription_id", subscriptionID)
}

func (b *billingRecords) getByColumnTx(ctx context.Context, tx bun.IDB, column, value string) (*BillingRecord, error) {
	record := &BillingRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					column: value,
				})
		}
		return nil, err
	}

	return record, nil
}

// Save inserts or replaces the billing record for its account, keyed on the
// account id so each account keeps exactly one row.
func (b *billingRecords) Save(ctx context.Context, record *BillingRecord) (*BillingRecord, error) {
	return b.SaveTx(ctx, b.db, record)
}

func (b *billingRecords) SaveTx(ctx context.Context, tx bun.IDB, record *BillingRecord) (*BillingRecord, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now()
	record.UpdatedAt = &now

	_, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (account_id) DO UPDATE").
		Set("billing_status = EXCLUDED.billing_status").
		Set("cancel_at_period_end = EXCLUDED.cancel_at_period_end").
		Set("current_period_start = EXCLUDED.current_period_start").
		Set("current_period_end = EXCLUDED.current_period_end").
		Set("trial_end = EXCLUDED.trial_end").
		Set("customer_id = EXCLUDED.customer_id").
		Set("subscription_id = EXCLUDED.subscription_id").
		Set("last_processed_event_id = EXCLUDED.last_processed_event_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return record, nil
}
