package subscription

import (
	"time"

	"github.com/flexprice/flexbill/internal/domain/customer"
	"github.com/flexprice/flexbill/internal/domain/plan"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

// DefaultFailureThreshold is the number of failed payments that moves an active subscription to past_due
const DefaultFailureThreshold = 3

// Transition describes the effect of one lifecycle trigger on a subscription
type Transition struct {
	From   types.SubscriptionStatus
	To     types.SubscriptionStatus
	Events []string
}

// Changed reports whether the trigger moved the subscription to another status
func (t Transition) Changed() bool {
	return t.From != t.To
}

func noop(s *Subscription) Transition {
	return Transition{From: s.SubscriptionStatus, To: s.SubscriptionStatus}
}

// New builds a subscription of c to p in its initial state:
// trialing when the plan has a trial, pending_payment when activation waits
// for a first payment, active otherwise.
func New(c *customer.Customer, p *plan.Plan, now time.Time) (*Subscription, Transition) {
	sub := &Subscription{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		CustomerID:   c.ID,
		PlanID:       p.ID,
		PlanSnapshot: p.Snapshot(),
		Currency:     p.Snapshot().Currency,
		Version:      1,
	}

	switch {
	case p.TrialDays > 0:
		trialEnd := now.AddDate(0, 0, p.TrialDays)
		sub.SubscriptionStatus = types.SubscriptionStatusTrialing
		sub.TrialEndsAt = &trialEnd
		sub.CurrentPeriodStart = lo.ToPtr(now)
		sub.CurrentPeriodEnd = lo.ToPtr(trialEnd)
	case sub.PlanSnapshot.RequiresUpfrontPayment():
		sub.SubscriptionStatus = types.SubscriptionStatusPendingPayment
	default:
		sub.SubscriptionStatus = types.SubscriptionStatusActive
		sub.CurrentPeriodStart = lo.ToPtr(now)
		sub.CurrentPeriodEnd = lo.ToPtr(types.AddInterval(now, sub.PlanSnapshot.BillingInterval))
	}

	return sub, Transition{
		To:     sub.SubscriptionStatus,
		Events: []string{types.WebhookEventSubscriptionCreated},
	}
}

// ApplyPaymentSuccess records a successful payment made at paidAt.
// The billing period is (re)anchored at paidAt so service starts when money arrives.
func (s *Subscription) ApplyPaymentSuccess(paidAt time.Time) (Transition, error) {
	t := noop(s)

	switch s.SubscriptionStatus {
	case types.SubscriptionStatusTrialing, types.SubscriptionStatusPendingPayment:
		t.To = types.SubscriptionStatusActive
		t.Events = []string{types.WebhookEventSubscriptionActivated}
	case types.SubscriptionStatusActive, types.SubscriptionStatusPastDue:
		t.To = types.SubscriptionStatusActive
		t.Events = []string{types.WebhookEventSubscriptionRenewed}
	case types.SubscriptionStatusPaused:
		// pausing is manual, a late payment only clears the failure counter
		s.FailedPaymentAttempts = 0
		s.LastPaymentDate = lo.ToPtr(paidAt)
		return t, nil
	default:
		return t, invalidTransition(s, "payment_success")
	}

	s.SubscriptionStatus = t.To
	s.CurrentPeriodStart = lo.ToPtr(paidAt)
	s.CurrentPeriodEnd = lo.ToPtr(types.AddInterval(paidAt, s.PlanSnapshot.BillingInterval))
	s.FailedPaymentAttempts = 0
	s.LastPaymentDate = lo.ToPtr(paidAt)
	s.TrialEndsAt = nil
	return t, nil
}

// ApplyPaymentFailure increments the failure counter. An active subscription
// reaching threshold moves to past_due.
func (s *Subscription) ApplyPaymentFailure(threshold int) (Transition, error) {
	t := noop(s)
	if s.SubscriptionStatus.IsTerminal() {
		return t, invalidTransition(s, "payment_failure")
	}
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}

	s.FailedPaymentAttempts++
	t.Events = []string{types.WebhookEventPaymentFailed}

	if s.SubscriptionStatus == types.SubscriptionStatusActive && s.FailedPaymentAttempts >= threshold {
		s.SubscriptionStatus = types.SubscriptionStatusPastDue
		t.To = s.SubscriptionStatus
		t.Events = append(t.Events, types.WebhookEventSubscriptionPastDue)
	}
	return t, nil
}

// Cancel cancels the subscription immediately
func (s *Subscription) Cancel(now time.Time) (Transition, error) {
	t := noop(s)
	if s.SubscriptionStatus.IsTerminal() {
		return t, invalidTransition(s, "cancel")
	}
	s.SubscriptionStatus = types.SubscriptionStatusCancelled
	s.CancelledAt = lo.ToPtr(now)
	s.CancelAtPeriodEnd = false
	t.To = s.SubscriptionStatus
	t.Events = []string{types.WebhookEventSubscriptionCancelled}
	return t, nil
}

// ScheduleCancel flags the subscription to be cancelled by the period end job
func (s *Subscription) ScheduleCancel() (Transition, error) {
	t := noop(s)
	if s.SubscriptionStatus.IsTerminal() {
		return t, invalidTransition(s, "cancel_at_period_end")
	}
	s.CancelAtPeriodEnd = true
	t.Events = []string{types.WebhookEventSubscriptionUpdated}
	return t, nil
}

func (s *Subscription) Pause() (Transition, error) {
	t := noop(s)
	if s.SubscriptionStatus != types.SubscriptionStatusActive {
		return t, invalidTransition(s, "pause")
	}
	s.SubscriptionStatus = types.SubscriptionStatusPaused
	t.To = s.SubscriptionStatus
	t.Events = []string{types.WebhookEventSubscriptionPaused}
	return t, nil
}

func (s *Subscription) Resume() (Transition, error) {
	t := noop(s)
	if s.SubscriptionStatus != types.SubscriptionStatusPaused {
		return t, invalidTransition(s, "resume")
	}
	s.SubscriptionStatus = types.SubscriptionStatusActive
	t.To = s.SubscriptionStatus
	t.Events = []string{types.WebhookEventSubscriptionResumed}
	return t, nil
}

// PeriodEnded reports whether the current billing period is over at now
func (s *Subscription) PeriodEnded(now time.Time) bool {
	return s.CurrentPeriodEnd != nil && !s.CurrentPeriodEnd.After(now)
}

// EndPeriod applies the period end rules: a flagged subscription is cancelled
// and a one-time plan expires. Any other subscription is left untouched and is
// due for renewal, reported by the returned bool.
func (s *Subscription) EndPeriod(now time.Time) (Transition, bool, error) {
	t := noop(s)
	if s.SubscriptionStatus.IsTerminal() || !s.PeriodEnded(now) {
		return t, false, nil
	}

	if s.CancelAtPeriodEnd {
		t, err := s.Cancel(now)
		return t, false, err
	}

	if s.PlanSnapshot.IsOneTime() {
		s.SubscriptionStatus = types.SubscriptionStatusExpired
		t.To = s.SubscriptionStatus
		t.Events = []string{types.WebhookEventSubscriptionExpired}
		return t, false, nil
	}

	renewable := lo.Contains([]types.SubscriptionStatus{
		types.SubscriptionStatusActive,
		types.SubscriptionStatusPastDue,
	}, s.SubscriptionStatus)
	return t, renewable, nil
}

// TrialEnded reports whether a trialing subscription's trial is over at now
func (s *Subscription) TrialEnded(now time.Time) bool {
	return s.SubscriptionStatus == types.SubscriptionStatusTrialing &&
		s.TrialEndsAt != nil && !s.TrialEndsAt.After(now)
}

// MarkPastDue moves an active subscription with an overdue invoice to past_due
func (s *Subscription) MarkPastDue() (Transition, error) {
	t := noop(s)
	switch s.SubscriptionStatus {
	case types.SubscriptionStatusPastDue:
		return t, nil
	case types.SubscriptionStatusActive:
		s.SubscriptionStatus = types.SubscriptionStatusPastDue
		t.To = s.SubscriptionStatus
		t.Events = []string{types.WebhookEventSubscriptionPastDue}
		return t, nil
	default:
		return t, invalidTransition(s, "grace_period_expired")
	}
}

func invalidTransition(s *Subscription, trigger string) error {
	return ierr.NewError("invalid subscription transition").
		WithHintf("Subscription in status %s cannot handle %s", s.SubscriptionStatus, trigger).
		WithReportableDetails(map[string]any{
			"subscription_id": s.ID,
			"status":          s.SubscriptionStatus,
			"trigger":         trigger,
		}).
		Mark(ierr.ErrInvalidOperation)
}
