package dto

import (
	"github.com/flexprice/flexbill/internal/domain/payment"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/validator"
)

type InitiatePaymentRequest struct {
	InvoiceID  string                `json:"invoice_id" validate:"required"`
	Provider   types.PaymentProvider `json:"provider" validate:"required"`
	Method     types.PaymentMethod   `json:"method,omitempty"`
	SuccessURL string                `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL  string                `json:"cancel_url,omitempty" validate:"omitempty,url"`
}

func (r *InitiatePaymentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.Provider.Validate()
}

type RefundPaymentRequest struct {
	// Amount defaults to the full charge
	Amount int64  `json:"amount" validate:"min=0"`
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

func (r *RefundPaymentRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type PaymentResponse struct {
	*payment.Transaction
}

type ListPaymentsResponse = ListResponse[*PaymentResponse]
