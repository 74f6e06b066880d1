package subscription

import (
	"context"

	"github.com/flexprice/flexbill/internal/types"
)

type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	// Update persists sub if its version still matches the stored one and bumps it.
	// A concurrent writer makes it fail with ErrVersionConflict.
	Update(ctx context.Context, sub *Subscription) error
	List(ctx context.Context, filter *types.SubscriptionFilter) ([]*Subscription, error)
	// CountOpen counts the customer's subscriptions that are neither cancelled nor expired
	CountOpen(ctx context.Context, customerID string) (int, error)
	// CountByPlan counts non-cancelled subscriptions referencing the plan
	CountByPlan(ctx context.Context, planID string) (int, error)
}
