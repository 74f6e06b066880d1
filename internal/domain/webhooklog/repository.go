package webhooklog

import (
	"context"

	"github.com/flexprice/flexbill/internal/types"
)

type Repository interface {
	// Claim stores log as received unless a log with the same provider and
	// dedup key exists that is neither ignored nor failed. It reports whether
	// log was stored.
	Claim(ctx context.Context, log *WebhookLog) (bool, error)
	// Create stores log unconditionally, used for ignored and failed audit rows
	Create(ctx context.Context, log *WebhookLog) error
	UpdateStatus(ctx context.Context, id string, status types.WebhookLogStatus, errMsg string) error
}
