package dto

import (
	"context"
	"strings"

	"github.com/flexprice/flexbill/internal/domain/plan"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/validator"
)

type CreatePlanRequest struct {
	Name            string                `json:"name" validate:"required,max=255"`
	PricingModel    types.PricingModel    `json:"pricing_model" validate:"required"`
	BaseAmount      int64                 `json:"base_amount" validate:"min=0"`
	Currency        string                `json:"currency" validate:"required,len=3"`
	BillingInterval types.BillingInterval `json:"billing_interval" validate:"required"`
	UsageMetric     string                `json:"usage_metric,omitempty"`
	UnitPrice       int64                 `json:"unit_price" validate:"min=0"`
	FreeUnits       int64                 `json:"free_units" validate:"min=0"`
	TrialDays       int                   `json:"trial_days" validate:"min=0,max=365"`
}

// UpdatePlanRequest changes the terms of future subscriptions only, existing
// subscriptions keep their snapshot
type UpdatePlanRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	BaseAmount  *int64  `json:"base_amount" validate:"omitempty,min=0"`
	UnitPrice   *int64  `json:"unit_price" validate:"omitempty,min=0"`
	FreeUnits   *int64  `json:"free_units" validate:"omitempty,min=0"`
	TrialDays   *int    `json:"trial_days" validate:"omitempty,min=0,max=365"`
	UsageMetric *string `json:"usage_metric"`
}

type PlanResponse struct {
	*plan.Plan
}

func (r *CreatePlanRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *CreatePlanRequest) ToPlan(ctx context.Context) *plan.Plan {
	return &plan.Plan{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN),
		Name:            r.Name,
		PricingModel:    r.PricingModel,
		BaseAmount:      r.BaseAmount,
		Currency:        strings.ToUpper(r.Currency),
		BillingInterval: r.BillingInterval,
		UsageMetric:     r.UsageMetric,
		UnitPrice:       r.UnitPrice,
		FreeUnits:       r.FreeUnits,
		TrialDays:       r.TrialDays,
		PlanStatus:      types.PlanStatusActive,
		BaseModel:       types.GetDefaultBaseModel(ctx),
	}
}

func (r *UpdatePlanRequest) Validate() error {
	return validator.ValidateRequest(r)
}
