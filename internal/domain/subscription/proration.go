package subscription

import (
	"strings"
	"time"

	"github.com/flexprice/flexbill/internal/domain/plan"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/shopspring/decimal"
)

// PlanChange is the outcome of moving a subscription to another plan
type PlanChange struct {
	OldPlanID string `json:"old_plan_id"`
	NewPlanID string `json:"new_plan_id"`
	Upgrade   bool   `json:"upgrade"`
	// ProratedAmount is the immediate charge for the rest of the current
	// period, billed out-of-band. Always zero for downgrades.
	ProratedAmount int64      `json:"prorated_amount"`
	Currency       string     `json:"currency"`
	Transition     Transition `json:"-"`
}

// ChangePlan replaces the plan and its snapshot. The billing period is left
// untouched so the new terms apply from the next renewal; an upgrade is charged
// newMonthly*r - oldMonthly*r now, where r is the share of the period remaining.
func (s *Subscription) ChangePlan(p *plan.Plan, now time.Time) (*PlanChange, error) {
	if s.SubscriptionStatus.IsTerminal() {
		return nil, invalidTransition(s, "change_plan")
	}
	if p.ID == s.PlanID {
		return nil, ierr.NewError("subscription is already on this plan").
			WithHint("Choose a different plan").
			Mark(ierr.ErrValidation)
	}
	next := p.Snapshot()
	if !strings.EqualFold(next.Currency, s.Currency) {
		return nil, ierr.NewError("currency mismatch").
			WithHint("A subscription cannot change currency").
			WithReportableDetails(map[string]any{
				"subscription_currency": s.Currency,
				"plan_currency":         next.Currency,
			}).
			Mark(ierr.ErrValidation)
	}

	oldMonthly := s.PlanSnapshot.MonthlyAmount()
	newMonthly := next.MonthlyAmount()

	change := &PlanChange{
		OldPlanID: s.PlanID,
		NewPlanID: p.ID,
		Upgrade:   newMonthly.GreaterThan(oldMonthly),
		Currency:  s.Currency,
	}

	if change.Upgrade && s.SubscriptionStatus == types.SubscriptionStatusActive {
		ratio := RemainingRatio(s.CurrentPeriodStart, s.CurrentPeriodEnd, now)
		prorated := newMonthly.Mul(ratio).Sub(oldMonthly.Mul(ratio))
		change.ProratedAmount = prorated.Round(0).IntPart()
	}

	s.PlanID = p.ID
	s.PlanSnapshot = next
	change.Transition = Transition{
		From:   s.SubscriptionStatus,
		To:     s.SubscriptionStatus,
		Events: []string{types.WebhookEventSubscriptionUpdated},
	}
	return change, nil
}

// RemainingRatio is the share of [start, end) still ahead of now, clamped to [0, 1]
func RemainingRatio(start, end *time.Time, now time.Time) decimal.Decimal {
	if start == nil || end == nil || !end.After(*start) {
		return decimal.Zero
	}
	if !now.Before(*end) {
		return decimal.Zero
	}
	if now.Before(*start) {
		return decimal.NewFromInt(1)
	}
	remaining := decimal.NewFromInt(int64(end.Sub(now)))
	length := decimal.NewFromInt(int64(end.Sub(*start)))
	return remaining.Div(length)
}
