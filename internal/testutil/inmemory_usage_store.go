package testutil

import (
	"context"

	"github.com/flexprice/flexbill/internal/domain/usage"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

// InMemoryUsageStore implements usage.Repository
type InMemoryUsageStore struct {
	*InMemoryStore[*usage.Event]
}

func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{
		InMemoryStore: NewInMemoryStore[*usage.Event](),
	}
}

func (s *InMemoryUsageStore) Create(ctx context.Context, event *usage.Event) (bool, error) {
	s.InMemoryStore.mu.Lock()
	defer s.InMemoryStore.mu.Unlock()

	for _, existing := range s.items {
		if existing.TenantID == event.TenantID && existing.EventID == event.EventID {
			return false, nil
		}
	}
	cp := *event
	s.items[event.ID] = &cp
	return true, nil
}

func (s *InMemoryUsageStore) SumQuantity(ctx context.Context, filter *types.UsageFilter) (int64, error) {
	events := s.InMemoryStore.List(ctx, func(ctx context.Context, e *usage.Event) bool {
		return inTenant(ctx, e.BaseModel) &&
			e.SubscriptionID == filter.SubscriptionID &&
			e.Metric == filter.Metric &&
			!e.Timestamp.Before(filter.From) &&
			e.Timestamp.Before(filter.To)
	}, nil)

	return lo.SumBy(events, func(e *usage.Event) int64 { return e.Quantity }), nil
}
