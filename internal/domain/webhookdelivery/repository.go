package webhookdelivery

import (
	"context"
	"time"

	"github.com/flexprice/flexbill/internal/types"
)

type Repository interface {
	Create(ctx context.Context, d *Delivery) error
	Get(ctx context.Context, id string) (*Delivery, error)
	// ClaimAttempt increments attempts of a pending delivery whose attempt count
	// is still prevAttempts and leases it until leaseUntil, after which an
	// unrecorded attempt is due again. It reports false when another worker
	// claimed it first.
	ClaimAttempt(ctx context.Context, id string, prevAttempts int, at, leaseUntil time.Time) (bool, error)
	// RecordResult stores the outcome of the claimed attempt
	RecordResult(ctx context.Context, d *Delivery) error
	List(ctx context.Context, filter *types.WebhookDeliveryFilter) ([]*Delivery, error)
	// Requeue resets a failed delivery for a fresh series of attempts
	Requeue(ctx context.Context, id string, at time.Time) error
}
