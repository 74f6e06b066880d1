package webhooklog

import (
	"time"

	"github.com/flexprice/flexbill/internal/types"
)

// WebhookLog is the audit row of one inbound provider callback
type WebhookLog struct {
	ID       string                `db:"id" json:"id"`
	Provider types.PaymentProvider `db:"provider" json:"provider"`

	// DedupKey identifies the callback, a second callback with the same key is ignored
	DedupKey        string `db:"dedup_key" json:"dedup_key"`
	ProviderEventID string `db:"provider_event_id" json:"provider_event_id,omitempty"`
	EventType       string `db:"event_type" json:"event_type"`
	Payload         string `db:"payload" json:"payload"`

	WebhookStatus types.WebhookLogStatus `db:"webhook_status" json:"webhook_status"`
	Error         string                 `db:"error" json:"error,omitempty"`
	ProcessedAt   *time.Time             `db:"processed_at" json:"processed_at,omitempty"`

	types.BaseModel
}
