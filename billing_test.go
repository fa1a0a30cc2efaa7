package gateway_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	gateway "github.com/dealbase/go-gateway"
)

func TestEvaluateBilling(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name    string
		record  *gateway.BillingRecord
		allowed bool
	}{
		{
			name:    "no record fails closed",
			record:  nil,
			allowed: false,
		},
		{
			name: "active within period",
			record: &gateway.BillingRecord{
				BillingStatus:    gateway.BillingStatusActive,
				CurrentPeriodEnd: &future,
			},
			allowed: true,
		},
		{
			name: "active with no period bounds",
			record: &gateway.BillingRecord{
				BillingStatus: gateway.BillingStatusActive,
			},
			allowed: true,
		},
		{
			name: "trialing before trial end",
			record: &gateway.BillingRecord{
				BillingStatus: gateway.BillingStatusTrialing,
				TrialEnd:      &future,
			},
			allowed: true,
		},
		{
			name: "trialing past trial end",
			record: &gateway.BillingRecord{
				BillingStatus: gateway.BillingStatusTrialing,
				TrialEnd:      &past,
			},
			allowed: false,
		},
		{
			name: "trialing past trial end with open period still denies",
			record: &gateway.BillingRecord{
				BillingStatus:    gateway.BillingStatusTrialing,
				TrialEnd:         &past,
				CurrentPeriodEnd: &future,
			},
			allowed: false,
		},
		{
			name: "active but period lapsed",
			record: &gateway.BillingRecord{
				BillingStatus:    gateway.BillingStatusActive,
				CurrentPeriodEnd: &past,
			},
			allowed: false,
		},
		{
			name: "past_due is a grace period",
			record: &gateway.BillingRecord{
				BillingStatus:    gateway.BillingStatusPastDue,
				CurrentPeriodEnd: &future,
			},
			allowed: true,
		},
		{
			name: "past_due with lapsed period denies",
			record: &gateway.BillingRecord{
				BillingStatus:    gateway.BillingStatusPastDue,
				CurrentPeriodEnd: &past,
			},
			allowed: false,
		},
		{
			name: "canceled denies",
			record: &gateway.BillingRecord{
				BillingStatus: gateway.BillingStatusCanceled,
			},
			allowed: false,
		},
		{
			name: "unpaid denies",
			record: &gateway.BillingRecord{
				BillingStatus: gateway.BillingStatusUnpaid,
			},
			allowed: false,
		},
		{
			name: "incomplete denies",
			record: &gateway.BillingRecord{
				BillingStatus: gateway.BillingStatusIncomplete,
			},
			allowed: false,
		},
		{
			name: "unknown status fails closed",
			record: &gateway.BillingRecord{
				BillingStatus: "paused",
			},
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := gateway.EvaluateBilling(tt.record, now)
			assert.Equal(t, tt.allowed, decision.Allowed)
			if tt.allowed {
				assert.NoError(t, decision.Err())
			} else {
				assert.Error(t, decision.Err())
			}
		})
	}
}

func TestEvaluateBillingCancelGrace(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("inside grace buffer still allows", func(t *testing.T) {
		periodEnd := now.Add(-time.Minute)
		decision := gateway.EvaluateBilling(&gateway.BillingRecord{
			BillingStatus:     gateway.BillingStatusActive,
			CancelAtPeriodEnd: true,
			CurrentPeriodEnd:  &periodEnd,
		}, now)
		// The lapsed-period rule catches this before grace matters.
		assert.False(t, decision.Allowed)
	})

	t.Run("future period end with cancel flag allows", func(t *testing.T) {
		periodEnd := now.Add(time.Hour)
		decision := gateway.EvaluateBilling(&gateway.BillingRecord{
			BillingStatus:     gateway.BillingStatusActive,
			CancelAtPeriodEnd: true,
			CurrentPeriodEnd:  &periodEnd,
		}, now)
		assert.True(t, decision.Allowed)
	})

	t.Run("past grace buffer denies", func(t *testing.T) {
		periodEnd := now.Add(-gateway.CancelGraceBuffer).Add(-time.Minute)
		decision := gateway.EvaluateBilling(&gateway.BillingRecord{
			BillingStatus:     gateway.BillingStatusCanceled,
			CancelAtPeriodEnd: true,
			CurrentPeriodEnd:  &periodEnd,
		}, now)
		assert.False(t, decision.Allowed)
	})
}

func TestEvaluateLegacy(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("paid plans allow", func(t *testing.T) {
		for _, plan := range []gateway.Plan{gateway.PlanStarter, gateway.PlanGrowth, gateway.PlanScale} {
			decision := gateway.EvaluateLegacy(&gateway.Account{Plan: plan}, now)
			assert.True(t, decision.Allowed, "plan %s", plan)
		}
	})

	t.Run("trial inside window allows", func(t *testing.T) {
		created := now.Add(-7 * 24 * time.Hour)
		decision := gateway.EvaluateLegacy(&gateway.Account{
			Plan:      gateway.PlanTrial,
			CreatedAt: &created,
		}, now)
		assert.True(t, decision.Allowed)
	})

	t.Run("trial past window denies", func(t *testing.T) {
		created := now.Add(-gateway.DefaultTrialWindow).Add(-time.Hour)
		decision := gateway.EvaluateLegacy(&gateway.Account{
			Plan:      gateway.PlanTrial,
			CreatedAt: &created,
		}, now)
		assert.False(t, decision.Allowed)
		assert.Equal(t, gateway.DenyReasonBillingRequired, decision.Reason)
	})

	t.Run("unknown plan denies with plan reason", func(t *testing.T) {
		decision := gateway.EvaluateLegacy(&gateway.Account{Plan: "enterprise"}, now)
		assert.False(t, decision.Allowed)
		assert.Equal(t, gateway.DenyReasonPlanDenied, decision.Reason)
	})

	t.Run("nil account denies", func(t *testing.T) {
		decision := gateway.EvaluateLegacy(nil, now)
		assert.False(t, decision.Allowed)
	})
}

func TestBillingFlagsFor(t *testing.T) {
	assert.Equal(t, gateway.BillingFlags{}, gateway.BillingFlagsFor(nil))

	flags := gateway.BillingFlagsFor(&gateway.BillingRecord{
		BillingStatus:     gateway.BillingStatusPastDue,
		CancelAtPeriodEnd: true,
	})
	assert.True(t, flags.IsPastDue)
	assert.True(t, flags.CancelAtPeriodEnd)

	flags = gateway.BillingFlagsFor(&gateway.BillingRecord{
		BillingStatus: gateway.BillingStatusActive,
	})
	assert.False(t, flags.IsPastDue)
	assert.False(t, flags.CancelAtPeriodEnd)
}
