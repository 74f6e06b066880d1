package dto

import (
	"github.com/flexprice/flexbill/internal/domain/webhookdelivery"
)

type WebhookDeliveryResponse struct {
	*webhookdelivery.Delivery
}

type ListWebhookDeliveriesResponse = ListResponse[*WebhookDeliveryResponse]

// WebhookReceivedResponse acknowledges an inbound provider callback
type WebhookReceivedResponse struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	LogID     string `json:"log_id,omitempty"`
}
