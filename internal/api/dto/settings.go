package dto

import (
	"github.com/flexprice/flexbill/internal/domain/app"
	"github.com/flexprice/flexbill/internal/validator"
)

type UpdateWebhookSettingsRequest struct {
	URL    string   `json:"url" validate:"omitempty,url"`
	Events []string `json:"events"`
	// RotateSecret issues a new signing secret even if one exists
	RotateSecret bool `json:"rotate_secret"`
}

func (r *UpdateWebhookSettingsRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type UpdateGracePeriodRequest struct {
	Days int `json:"days" validate:"min=0,max=30"`
}

func (r *UpdateGracePeriodRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return app.ValidateGracePeriod(r.Days)
}

type SettingsResponse struct {
	*app.App
	// WebhookSecret is only returned when it was generated by the request
	WebhookSecret string `json:"webhook_secret,omitempty"`
}
