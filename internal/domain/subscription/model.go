package subscription

import (
	"time"

	"github.com/flexprice/flexbill/internal/domain/plan"
	"github.com/flexprice/flexbill/internal/types"
)

type Subscription struct {
	ID         string `db:"id" json:"id"`
	CustomerID string `db:"customer_id" json:"customer_id"`
	PlanID     string `db:"plan_id" json:"plan_id"`

	// PlanSnapshot holds the pricing terms the subscription is billed under
	PlanSnapshot plan.Snapshot `db:"plan_snapshot" json:"plan_snapshot"`

	SubscriptionStatus types.SubscriptionStatus `db:"subscription_status" json:"subscription_status"`

	// Currency is copied from the snapshot and never changes
	Currency string `db:"currency" json:"currency"`

	// CurrentPeriodStart and CurrentPeriodEnd are unset while the subscription
	// waits for its first payment. After activation the period always starts
	// at the timestamp of the payment that paid for it.
	CurrentPeriodStart *time.Time `db:"current_period_start" json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `db:"current_period_end" json:"current_period_end,omitempty"`

	TrialEndsAt       *time.Time `db:"trial_ends_at" json:"trial_ends_at,omitempty"`
	CancelAtPeriodEnd bool       `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	CancelledAt       *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`

	FailedPaymentAttempts int        `db:"failed_payment_attempts" json:"failed_payment_attempts"`
	LastPaymentDate       *time.Time `db:"last_payment_date" json:"last_payment_date,omitempty"`

	// Version is bumped on every update, stale writes fail with ErrVersionConflict
	Version int `db:"version" json:"version"`

	types.BaseModel
}

// UpcomingPeriod returns the period the next invoice of the subscription covers
func (s *Subscription) UpcomingPeriod(now time.Time) (time.Time, time.Time) {
	start := now
	switch {
	case s.SubscriptionStatus == types.SubscriptionStatusTrialing && s.TrialEndsAt != nil:
		start = *s.TrialEndsAt
	case s.CurrentPeriodEnd != nil:
		start = *s.CurrentPeriodEnd
	}
	return start, types.AddInterval(start, s.PlanSnapshot.BillingInterval)
}
