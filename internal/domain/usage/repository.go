package usage

import (
	"context"

	"github.com/flexprice/flexbill/internal/types"
)

type Repository interface {
	// Create stores the event. It reports false when an event with the same
	// EventID was already recorded.
	Create(ctx context.Context, event *Event) (bool, error)
	// SumQuantity totals the metric for the subscription within [From, To)
	SumQuantity(ctx context.Context, filter *types.UsageFilter) (int64, error)
}
