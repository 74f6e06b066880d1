package types

import (
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/samber/lo"
)

// PricingModel is the closed set of ways a plan charges for a period
type PricingModel string

const (
	PricingModelFlat   PricingModel = "flat"
	PricingModelUsage  PricingModel = "usage"
	PricingModelHybrid PricingModel = "hybrid"
)

func (p PricingModel) String() string {
	return string(p)
}

func (p PricingModel) Validate() error {
	allowed := []PricingModel{
		PricingModelFlat,
		PricingModelUsage,
		PricingModelHybrid,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid pricing model").
			WithHint("Pricing model must be one of flat, usage or hybrid").
			WithReportableDetails(map[string]any{
				"pricing_model": p,
				"allowed":       allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// HasUsage reports whether the model bills metered usage
func (p PricingModel) HasUsage() bool {
	return p == PricingModelUsage || p == PricingModelHybrid
}

// HasBase reports whether the model bills a fixed base amount
func (p PricingModel) HasBase() bool {
	return p == PricingModelFlat || p == PricingModelHybrid
}

type BillingInterval string

const (
	BillingIntervalMonthly   BillingInterval = "monthly"
	BillingIntervalQuarterly BillingInterval = "quarterly"
	BillingIntervalYearly    BillingInterval = "yearly"
	BillingIntervalOneTime   BillingInterval = "one_time"
)

func (b BillingInterval) String() string {
	return string(b)
}

func (b BillingInterval) Validate() error {
	allowed := []BillingInterval{
		BillingIntervalMonthly,
		BillingIntervalQuarterly,
		BillingIntervalYearly,
		BillingIntervalOneTime,
	}
	if !lo.Contains(allowed, b) {
		return ierr.NewError("invalid billing interval").
			WithHint("Billing interval must be one of monthly, quarterly, yearly or one_time").
			WithReportableDetails(map[string]any{
				"billing_interval": b,
				"allowed":          allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Months returns the number of months a recurring interval spans.
// One-time plans are treated as a single month for normalization.
func (b BillingInterval) Months() int64 {
	switch b {
	case BillingIntervalQuarterly:
		return 3
	case BillingIntervalYearly:
		return 12
	default:
		return 1
	}
}

type PlanStatus string

const (
	PlanStatusActive   PlanStatus = "active"
	PlanStatusArchived PlanStatus = "archived"
)
