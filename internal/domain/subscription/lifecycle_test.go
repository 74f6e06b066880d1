package subscription

import (
	"testing"
	"time"

	"github.com/flexprice/flexbill/internal/domain/customer"
	"github.com/flexprice/flexbill/internal/domain/plan"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func monthlyPlan(amount int64, trialDays int) *plan.Plan {
	return &plan.Plan{
		ID:              "plan_basic",
		Name:            "Basic",
		PricingModel:    types.PricingModelFlat,
		BaseAmount:      amount,
		Currency:        "usd",
		BillingInterval: types.BillingIntervalMonthly,
		TrialDays:       trialDays,
		PlanStatus:      types.PlanStatusActive,
	}
}

func TestNewInitialState(t *testing.T) {
	c := &customer.Customer{ID: "cust_1"}

	tests := []struct {
		name   string
		plan   *plan.Plan
		status types.SubscriptionStatus
		period bool
	}{
		{"trial plan starts trialing", monthlyPlan(1000, 14), types.SubscriptionStatusTrialing, true},
		{"paid plan waits for payment", monthlyPlan(1000, 0), types.SubscriptionStatusPendingPayment, false},
		{"free plan is active", monthlyPlan(0, 0), types.SubscriptionStatusActive, true},
		{"usage plan is active", &plan.Plan{
			ID: "plan_usage", PricingModel: types.PricingModelUsage, Currency: "USD",
			BillingInterval: types.BillingIntervalMonthly, UsageMetric: "api_calls", UnitPrice: 2,
		}, types.SubscriptionStatusActive, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, tr := New(c, tt.plan, t0)
			assert.Equal(t, tt.status, sub.SubscriptionStatus)
			assert.Equal(t, tt.period, sub.CurrentPeriodStart != nil)
			assert.Equal(t, "USD", sub.Currency)
			assert.Equal(t, []string{types.WebhookEventSubscriptionCreated}, tr.Events)
		})
	}
}

func TestPeriodStartsAtPaymentTimestamp(t *testing.T) {
	sub, _ := New(&customer.Customer{ID: "cust_1"}, monthlyPlan(1000, 7), t0)
	require.Equal(t, types.SubscriptionStatusTrialing, sub.SubscriptionStatus)

	paidAt := t0.Add(50 * time.Hour)
	tr, err := sub.ApplyPaymentSuccess(paidAt)
	require.NoError(t, err)

	assert.True(t, tr.Changed())
	assert.Equal(t, types.SubscriptionStatusActive, sub.SubscriptionStatus)
	assert.Equal(t, paidAt, *sub.CurrentPeriodStart)
	assert.Equal(t, time.Date(2025, time.April, 12, 11, 0, 0, 0, time.UTC), *sub.CurrentPeriodEnd)
	assert.Equal(t, []string{types.WebhookEventSubscriptionActivated}, tr.Events)
	assert.Nil(t, sub.TrialEndsAt)
}

func TestRenewalReanchorsPeriod(t *testing.T) {
	sub, _ := New(&customer.Customer{ID: "cust_1"}, monthlyPlan(1000, 0), t0)
	_, err := sub.ApplyPaymentSuccess(t0)
	require.NoError(t, err)

	// paid five days late
	late := t0.AddDate(0, 1, 5)
	tr, err := sub.ApplyPaymentSuccess(late)
	require.NoError(t, err)

	assert.False(t, tr.Changed())
	assert.Equal(t, []string{types.WebhookEventSubscriptionRenewed}, tr.Events)
	assert.Equal(t, late, *sub.CurrentPeriodStart)
	assert.Equal(t, late.AddDate(0, 1, 0), *sub.CurrentPeriodEnd)
}

func TestFailureThreshold(t *testing.T) {
	sub, _ := New(&customer.Customer{ID: "cust_1"}, monthlyPlan(1000, 0), t0)
	_, err := sub.ApplyPaymentSuccess(t0)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		tr, err := sub.ApplyPaymentFailure(DefaultFailureThreshold)
		require.NoError(t, err)
		assert.False(t, tr.Changed())
		assert.Equal(t, i, sub.FailedPaymentAttempts)
	}

	tr, err := sub.ApplyPaymentFailure(DefaultFailureThreshold)
	require.NoError(t, err)
	assert.True(t, tr.Changed())
	assert.Equal(t, types.SubscriptionStatusPastDue, sub.SubscriptionStatus)
	assert.Contains(t, tr.Events, types.WebhookEventSubscriptionPastDue)

	_, err = sub.ApplyPaymentSuccess(t0.AddDate(0, 0, 20))
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, sub.SubscriptionStatus)
	assert.Equal(t, 0, sub.FailedPaymentAttempts)
}

func TestCancelAndTerminalStates(t *testing.T) {
	sub, _ := New(&customer.Customer{ID: "cust_1"}, monthlyPlan(1000, 0), t0)

	tr, err := sub.Cancel(t0)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusCancelled, tr.To)

	_, err = sub.Cancel(t0)
	assert.True(t, ierr.IsInvalidOperation(err))
	_, err = sub.ApplyPaymentSuccess(t0)
	assert.True(t, ierr.IsInvalidOperation(err))
	_, err = sub.ApplyPaymentFailure(DefaultFailureThreshold)
	assert.True(t, ierr.IsInvalidOperation(err))
}

func TestEndPeriod(t *testing.T) {
	active := func(p *plan.Plan) *Subscription {
		sub, _ := New(&customer.Customer{ID: "cust_1"}, p, t0)
		_, err := sub.ApplyPaymentSuccess(t0)
		require.NoError(t, err)
		return sub
	}
	after := t0.AddDate(0, 1, 1)

	t.Run("not ended yet", func(t *testing.T) {
		sub := active(monthlyPlan(1000, 0))
		tr, renew, err := sub.EndPeriod(t0.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, renew)
		assert.False(t, tr.Changed())
	})

	t.Run("renewal due", func(t *testing.T) {
		sub := active(monthlyPlan(1000, 0))
		tr, renew, err := sub.EndPeriod(after)
		require.NoError(t, err)
		assert.True(t, renew)
		assert.False(t, tr.Changed())
	})

	t.Run("cancel at period end", func(t *testing.T) {
		sub := active(monthlyPlan(1000, 0))
		_, err := sub.ScheduleCancel()
		require.NoError(t, err)
		assert.Equal(t, types.SubscriptionStatusActive, sub.SubscriptionStatus)

		tr, renew, err := sub.EndPeriod(after)
		require.NoError(t, err)
		assert.False(t, renew)
		assert.Equal(t, types.SubscriptionStatusCancelled, tr.To)
	})

	t.Run("one time plan expires", func(t *testing.T) {
		p := monthlyPlan(1000, 0)
		p.BillingInterval = types.BillingIntervalOneTime
		sub := active(p)
		tr, renew, err := sub.EndPeriod(after)
		require.NoError(t, err)
		assert.False(t, renew)
		assert.Equal(t, types.SubscriptionStatusExpired, tr.To)
	})
}

func TestPauseResume(t *testing.T) {
	sub, _ := New(&customer.Customer{ID: "cust_1"}, monthlyPlan(0, 0), t0)

	_, err := sub.Resume()
	assert.Error(t, err)

	tr, err := sub.Pause()
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusPaused, tr.To)

	_, err = sub.ApplyPaymentSuccess(t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusPaused, sub.SubscriptionStatus)

	tr, err = sub.Resume()
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, tr.To)
}

func TestChangePlanProration(t *testing.T) {
	sub, _ := New(&customer.Customer{ID: "cust_1"}, monthlyPlan(1000, 0), t0)
	start := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	_, err := sub.ApplyPaymentSuccess(start)
	require.NoError(t, err)

	pro := monthlyPlan(4000, 0)
	pro.ID = "plan_pro"

	// 20 of 30 April days remain
	change, err := sub.ChangePlan(pro, time.Date(2025, time.April, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, change.Upgrade)
	assert.Equal(t, int64(2000), change.ProratedAmount)
	assert.Equal(t, "plan_pro", sub.PlanID)
	assert.Equal(t, int64(4000), sub.PlanSnapshot.BaseAmount)
	assert.Equal(t, start, *sub.CurrentPeriodStart, "period is untouched")

	basic := monthlyPlan(1000, 0)
	change, err = sub.ChangePlan(basic, time.Date(2025, time.April, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, change.Upgrade)
	assert.Zero(t, change.ProratedAmount)

	eur := monthlyPlan(9000, 0)
	eur.ID = "plan_eur"
	eur.Currency = "EUR"
	_, err = sub.ChangePlan(eur, start)
	assert.True(t, ierr.IsValidation(err))
}
