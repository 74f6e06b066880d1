package dto

import (
	"github.com/flexprice/flexbill/internal/domain/connection"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/validator"
)

type UpsertConnectionRequest struct {
	SecretKey     string `json:"secret_key" validate:"required"`
	PublicKey     string `json:"public_key,omitempty"`
	MerchantID    string `json:"merchant_id,omitempty"`
	APIBaseURL    string `json:"api_base_url,omitempty" validate:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

func (r *UpsertConnectionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type ConnectionResponse struct {
	*connection.Connection
	HasWebhookSecret bool                  `json:"has_webhook_secret"`
	SupportedMethods []types.PaymentMethod `json:"supported_methods,omitempty"`
}

type TestConnectionResponse struct {
	Provider types.PaymentProvider `json:"provider"`
	OK       bool                  `json:"ok"`
	Error    string                `json:"error,omitempty"`
}
