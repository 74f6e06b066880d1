package webhookdelivery

import (
	"time"

	"github.com/flexprice/flexbill/internal/types"
)

// Delivery is one outgoing event queued for a client endpoint
type Delivery struct {
	ID        string `db:"id" json:"id"`
	EventName string `db:"event_name" json:"event_name"`

	// Payload is the exact request body sent on every attempt
	Payload string `db:"payload" json:"payload"`
	URL     string `db:"url" json:"url"`

	DeliveryStatus types.WebhookDeliveryStatus `db:"delivery_status" json:"delivery_status"`
	Attempts       int                         `db:"attempts" json:"attempts"`
	NextRetryAt    *time.Time                  `db:"next_retry_at" json:"next_retry_at,omitempty"`
	LastAttemptAt  *time.Time                  `db:"last_attempt_at" json:"last_attempt_at,omitempty"`

	LastResponseCode int    `db:"last_response_code" json:"last_response_code,omitempty"`
	LastError        string `db:"last_error" json:"last_error,omitempty"`

	types.BaseModel
}

// IsDue reports whether the delivery should be attempted at now
func (d *Delivery) IsDue(now time.Time) bool {
	return d.DeliveryStatus == types.WebhookDeliveryStatusPending &&
		d.NextRetryAt != nil && !d.NextRetryAt.After(now)
}
