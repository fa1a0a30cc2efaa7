package gateway

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the account's lifecycle status
type AccountStatus = string

const (
	// AccountStatusActive accounts may resolve
	AccountStatusActive AccountStatus = "active"
	// AccountStatusDisabled accounts are always denied
	AccountStatusDisabled AccountStatus = "disabled"
)

// Plan identifies the subscription tier
type Plan = string

const (
	// PlanTrial is the evaluation tier
	PlanTrial Plan = "trial"
	// PlanStarter is the entry paid tier
	PlanStarter Plan = "starter"
	// PlanGrowth is the mid paid tier
	PlanGrowth Plan = "growth"
	// PlanScale is the top paid tier
	PlanScale Plan = "scale"
)

// LockState is the account's lock state
type LockState = string

const (
	LockStateNone LockState = "none"
	LockStateSoft LockState = "soft"
	LockStateHard LockState = "hard"
)

// BillingStatus mirrors the billing provider's subscription status
type BillingStatus = string

const (
	BillingStatusTrialing          BillingStatus = "trialing"
	BillingStatusActive            BillingStatus = "active"
	BillingStatusPastDue           BillingStatus = "past_due"
	BillingStatusCanceled          BillingStatus = "canceled"
	BillingStatusUnpaid            BillingStatus = "unpaid"
	BillingStatusIncomplete        BillingStatus = "incomplete"
	BillingStatusIncompleteExpired BillingStatus = "incomplete_expired"
)

// Account is the account model
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acct"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	OrgID         string         `bun:"org_id,notnull" json:"org_id,omitempty"`
	Email         string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Subject       string         `bun:"idp_subject" json:"idp_subject,omitempty"`
	Status        AccountStatus  `bun:"status,notnull" json:"status,omitempty"`
	Plan          Plan           `bun:"plan,notnull" json:"plan,omitempty"`
	SessionEpoch  int64          `bun:"session_epoch,notnull,default:0" json:"session_epoch"`
	LockState     LockState      `bun:"lock_state,notnull,default:'none'" json:"lock_state,omitempty"`
	LockExpiresAt *time.Time     `bun:"lock_expires_at,nullzero" json:"lock_expires_at,omitempty"`
	Billing       *BillingRecord `bun:"rel:has-one,join:id=account_id" json:"billing,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureDefaults normalizes zero-value fields on records read from older rows.
func (a *Account) EnsureDefaults() {
	if a == nil {
		return
	}
	if a.Status == "" {
		a.Status = AccountStatusActive
	}
	if a.LockState == "" {
		a.LockState = LockStateNone
	}
}

// IsDisabled reports whether the account status denies access outright.
func (a *Account) IsDisabled() bool {
	return a != nil && a.Status == AccountStatusDisabled
}

// IsHardLocked reports whether the account carries a hard lock.
func (a *Account) IsHardLocked() bool {
	return a != nil && a.LockState == LockStateHard
}

// SoftLockExpired reports whether a soft lock's expiry has passed. A soft
// lock without an expiry never expires on its own.
func (a *Account) SoftLockExpired(now time.Time) bool {
	if a == nil || a.LockState != LockStateSoft {
		return false
	}
	return a.LockExpiresAt != nil && now.After(*a.LockExpiresAt)
}

// BillingRecord is the per-account mirror of the billing provider's
// subscription. It is mutated exclusively by the webhook synchronizer, or by
// read-repair when the period-end field is missing.
type BillingRecord struct {
	bun.BaseModel        `bun:"table:billing_records,alias:bill"`
	ID                   uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID            uuid.UUID     `bun:"account_id,notnull,unique,type:uuid" json:"account_id,omitempty"`
	BillingStatus        BillingStatus `bun:"billing_status,notnull" json:"billing_status,omitempty"`
	CancelAtPeriodEnd    bool          `bun:"cancel_at_period_end" json:"cancel_at_period_end"`
	CurrentPeriodStart   *time.Time    `bun:"current_period_start,nullzero" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time    `bun:"current_period_end,nullzero" json:"current_period_end,omitempty"`
	TrialEnd             *time.Time    `bun:"trial_end,nullzero" json:"trial_end,omitempty"`
	CustomerID           string        `bun:"customer_id" json:"customer_id,omitempty"`
	SubscriptionID       string        `bun:"subscription_id" json:"subscription_id,omitempty"`
	LastProcessedEventID string        `bun:"last_processed_event_id" json:"last_processed_event_id,omitempty"`
	CreatedAt            *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt            *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// RevocationEntry denylists a single token id until the token would have
// expired anyway, at which point the row garbage-collects naturally.
type RevocationEntry struct {
	bun.BaseModel `bun:"table:revocation_entries,alias:rvk"`
	TokenID       string     `bun:"token_id,pk" json:"token_id,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// EntitlementSnapshot is the cached projection of an account and its billing
// record. Entries older than the cache TTL are treated as absent.
type EntitlementSnapshot struct {
	Account  *Account
	Billing  *BillingRecord
	CachedAt time.Time
}
