package dto

import (
	"github.com/flexprice/flexbill/internal/domain/invoice"
	"github.com/flexprice/flexbill/internal/domain/subscription"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/validator"
)

type CreateSubscriptionRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
	PlanID     string `json:"plan_id" validate:"required"`
	// Provider optionally starts collection of the first invoice right away
	Provider types.PaymentProvider `json:"provider,omitempty"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Provider != "" {
		return r.Provider.Validate()
	}
	return nil
}

type CancelSubscriptionRequest struct {
	// Immediately cancels now, otherwise at the end of the current period
	Immediately bool `json:"immediately"`
}

type ChangePlanRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
}

func (r *ChangePlanRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type SubscriptionResponse struct {
	*subscription.Subscription
	// LatestInvoice is the invoice generated on creation, if any
	LatestInvoice *invoice.Invoice `json:"latest_invoice,omitempty"`
	// Payment is set when a provider was requested on creation
	Payment *PaymentResponse `json:"payment,omitempty"`
}

type ChangePlanResponse struct {
	Subscription *subscription.Subscription `json:"subscription"`
	*subscription.PlanChange
}

type ListSubscriptionsResponse = ListResponse[*SubscriptionResponse]
