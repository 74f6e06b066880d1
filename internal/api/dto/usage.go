package dto

import (
	"context"
	"time"

	"github.com/flexprice/flexbill/internal/domain/usage"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/validator"
	"github.com/samber/lo"
)

type IngestUsageRequest struct {
	EventID        string     `json:"event_id" validate:"required,max=255"`
	SubscriptionID string     `json:"subscription_id" validate:"required"`
	Metric         string     `json:"metric" validate:"required,max=255"`
	Quantity       int64      `json:"quantity" validate:"min=0"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

func (r *IngestUsageRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *IngestUsageRequest) ToEvent(ctx context.Context, customerID string, now time.Time) *usage.Event {
	return &usage.Event{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_EVENT),
		EventID:        r.EventID,
		SubscriptionID: r.SubscriptionID,
		CustomerID:     customerID,
		Metric:         r.Metric,
		Quantity:       r.Quantity,
		Timestamp:      lo.FromPtrOr(r.Timestamp, now).UTC(),
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
}

type IngestUsageResponse struct {
	ID string `json:"id"`
	// Duplicate is set when an event with the same event_id was already recorded
	Duplicate bool `json:"duplicate"`
}
