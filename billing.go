package gateway

import "time"

// CancelGraceBuffer absorbs clock skew and webhook lag between the provider
// canceling a subscription at period end and the deletion event landing.
const CancelGraceBuffer = 5 * time.Minute

// DefaultTrialWindow is the trial length assumed for legacy accounts that
// predate billing records.
const DefaultTrialWindow = 14 * 24 * time.Hour

// Deny reasons surfaced on billing decisions.
const (
	DenyReasonBillingRequired = TextCodeBillingRequired
	DenyReasonPlanDenied      = TextCodePlanDenied
)

// Decision is the outcome of a billing entitlement evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the positive decision.
var Allow = Decision{Allowed: true}

// Deny builds a negative decision with the given reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Err maps a denial onto the error taxonomy. Returns nil for allows.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case DenyReasonPlanDenied:
		return ErrPlanDenied
	default:
		return ErrBillingRequired
	}
}

// EvaluateBilling maps a billing record into an allow/deny decision. Pure
// and time-aware; rules are checked in order:
//
//  1. trialing with a lapsed trial end denies.
//  2. an entitling status with a lapsed period end denies, covering renewals
//     that failed silently while the status still reads healthy.
//  3. cancel-at-period-end denies once the period end plus grace has passed.
//  4. active, trialing, and past_due otherwise allow; past_due is a grace
//     period surfaced as a warning flag, not a denial.
//  5. canceled, unpaid, incomplete, and incomplete_expired deny.
//  6. anything else, or no record at all, fails closed.
func EvaluateBilling(rec *BillingRecord, now time.Time) Decision {
	if rec == nil {
		return Deny(DenyReasonBillingRequired)
	}

	entitling := rec.BillingStatus == BillingStatusActive ||
		rec.BillingStatus == BillingStatusTrialing ||
		rec.BillingStatus == BillingStatusPastDue

	if rec.BillingStatus == BillingStatusTrialing &&
		rec.TrialEnd != nil && now.After(*rec.TrialEnd) {
		return Deny(DenyReasonBillingRequired)
	}

	if entitling && rec.CurrentPeriodEnd != nil && now.After(*rec.CurrentPeriodEnd) {
		return Deny(DenyReasonBillingRequired)
	}

	if rec.CancelAtPeriodEnd && rec.CurrentPeriodEnd != nil &&
		now.After(rec.CurrentPeriodEnd.Add(CancelGraceBuffer)) {
		return Deny(DenyReasonBillingRequired)
	}

	if entitling {
		return Allow
	}

	switch rec.BillingStatus {
	case BillingStatusCanceled, BillingStatusUnpaid,
		BillingStatusIncomplete, BillingStatusIncompleteExpired:
		return Deny(DenyReasonBillingRequired)
	}

	return Deny(DenyReasonBillingRequired)
}

// EvaluateLegacy decides entitlement for accounts that predate billing
// records, from the plan and trial window alone. Paid plans on the allowlist
// pass; trial accounts pass while the trial window measured from account
// creation is still open.
func EvaluateLegacy(account *Account, now time.Time) Decision {
	if account == nil {
		return Deny(DenyReasonBillingRequired)
	}

	switch account.Plan {
	case PlanStarter, PlanGrowth, PlanScale:
		return Allow
	case PlanTrial:
		if account.CreatedAt == nil {
			return Deny(DenyReasonBillingRequired)
		}
		if now.After(account.CreatedAt.Add(DefaultTrialWindow)) {
			return Deny(DenyReasonBillingRequired)
		}
		return Allow
	default:
		return Deny(DenyReasonPlanDenied)
	}
}

// BillingFlagsFor derives the non-blocking warning flags routed to handlers.
func BillingFlagsFor(rec *BillingRecord) BillingFlags {
	if rec == nil {
		return BillingFlags{}
	}
	return BillingFlags{
		IsPastDue:         rec.BillingStatus == BillingStatusPastDue,
		CancelAtPeriodEnd: rec.CancelAtPeriodEnd,
	}
}
