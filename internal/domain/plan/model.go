package plan

import (
	"strings"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/shopspring/decimal"
)

// Plan holds the pricing terms customers subscribe to. All amounts are in the
// smallest unit of Currency.
type Plan struct {
	ID              string                `db:"id" json:"id"`
	Name            string                `db:"name" json:"name"`
	PricingModel    types.PricingModel    `db:"pricing_model" json:"pricing_model"`
	BaseAmount      int64                 `db:"base_amount" json:"base_amount"`
	Currency        string                `db:"currency" json:"currency"`
	BillingInterval types.BillingInterval `db:"billing_interval" json:"billing_interval"`

	// UsageMetric is the metered event name billed by usage and hybrid plans
	UsageMetric string `db:"usage_metric" json:"usage_metric,omitempty"`
	// UnitPrice is charged per billable unit above FreeUnits
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
	FreeUnits int64 `db:"free_units" json:"free_units"`

	TrialDays  int              `db:"trial_days" json:"trial_days"`
	PlanStatus types.PlanStatus `db:"plan_status" json:"plan_status"`

	types.BaseModel
}

func (p *Plan) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ierr.NewError("plan name is required").
			WithHint("Please provide a plan name").
			Mark(ierr.ErrValidation)
	}
	if err := p.PricingModel.Validate(); err != nil {
		return err
	}
	if err := p.BillingInterval.Validate(); err != nil {
		return err
	}
	if len(p.Currency) != 3 {
		return ierr.NewError("invalid currency").
			WithHint("Currency must be a three letter ISO code").
			WithReportableDetails(map[string]any{"currency": p.Currency}).
			Mark(ierr.ErrValidation)
	}
	if p.BaseAmount < 0 || p.UnitPrice < 0 || p.FreeUnits < 0 || p.TrialDays < 0 {
		return ierr.NewError("negative plan amounts").
			WithHint("Amounts, free units and trial days cannot be negative").
			Mark(ierr.ErrValidation)
	}
	if p.PricingModel.HasUsage() && p.UsageMetric == "" {
		return ierr.NewError("usage metric is required").
			WithHintf("A %s plan must name the usage metric it bills", p.PricingModel).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Snapshot copies the pricing terms a subscription is billed under
func (p *Plan) Snapshot() Snapshot {
	return Snapshot{
		PlanID:          p.ID,
		Name:            p.Name,
		PricingModel:    p.PricingModel,
		BaseAmount:      p.BaseAmount,
		Currency:        strings.ToUpper(p.Currency),
		BillingInterval: p.BillingInterval,
		UsageMetric:     p.UsageMetric,
		UnitPrice:       p.UnitPrice,
		FreeUnits:       p.FreeUnits,
		TrialDays:       p.TrialDays,
	}
}

func (p *Plan) IsActive() bool {
	return p.PlanStatus == types.PlanStatusActive && p.Status == types.StatusPublished
}

// MonthlyAmount normalizes the fixed charge of a set of terms to one month.
// Usage charges are not recurring and are left out.
func MonthlyAmount(model types.PricingModel, baseAmount int64, interval types.BillingInterval) decimal.Decimal {
	if !model.HasBase() {
		return decimal.Zero
	}
	return decimal.NewFromInt(baseAmount).Div(decimal.NewFromInt(interval.Months()))
}
