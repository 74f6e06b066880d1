package testutil

import (
	"context"

	"github.com/flexprice/flexbill/internal/domain/subscription"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

// InMemorySubscriptionStore implements subscription.Repository, including the
// optimistic version check and the one live subscription per customer index
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

func copySubscription(sub *subscription.Subscription) *subscription.Subscription {
	if sub == nil {
		return nil
	}
	cp := *sub
	return &cp
}

// openConflict reports whether another open subscription of the same customer exists
func (s *InMemorySubscriptionStore) openConflict(ctx context.Context, sub *subscription.Subscription) bool {
	if !sub.SubscriptionStatus.IsOpen() {
		return false
	}
	others := s.InMemoryStore.List(ctx, func(ctx context.Context, o *subscription.Subscription) bool {
		return o.ID != sub.ID && o.TenantID == sub.TenantID && o.Status == types.StatusPublished &&
			o.CustomerID == sub.CustomerID && o.SubscriptionStatus.IsOpen()
	}, nil)
	return len(others) > 0
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if s.openConflict(ctx, sub) {
		return alreadyExists("customer_id", sub.CustomerID)
	}
	if sub.Version == 0 {
		sub.Version = 1
	}
	return s.InMemoryStore.Create(ctx, sub.ID, copySubscription(sub))
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inTenant(ctx, sub.BaseModel) {
		return nil, notFound(id)
	}
	return copySubscription(sub), nil
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	if s.openConflict(ctx, sub) {
		return alreadyExists("customer_id", sub.CustomerID)
	}

	err := s.InMemoryStore.Mutate(ctx, sub.ID, func(stored *subscription.Subscription) (*subscription.Subscription, error) {
		if stored.Version != sub.Version {
			return nil, versionConflict("subscription", sub.ID)
		}
		cp := copySubscription(sub)
		cp.Version++
		return cp, nil
	})
	if err != nil {
		return err
	}
	sub.Version++
	return nil
}

func (s *InMemorySubscriptionStore) List(ctx context.Context, filter *types.SubscriptionFilter) ([]*subscription.Subscription, error) {
	if filter == nil {
		filter = &types.SubscriptionFilter{}
	}

	subs := s.InMemoryStore.List(ctx, func(ctx context.Context, sub *subscription.Subscription) bool {
		return inTenant(ctx, sub.BaseModel) && subscriptionMatches(sub, filter)
	}, func(i, j *subscription.Subscription) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})

	return lo.Map(paginate(subs, filter.QueryFilter), func(sub *subscription.Subscription, _ int) *subscription.Subscription {
		return copySubscription(sub)
	}), nil
}

func subscriptionMatches(sub *subscription.Subscription, f *types.SubscriptionFilter) bool {
	if f.CustomerID != "" && sub.CustomerID != f.CustomerID {
		return false
	}
	if f.PlanID != "" && sub.PlanID != f.PlanID {
		return false
	}
	if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, sub.SubscriptionStatus) {
		return false
	}
	if f.PeriodEndBefore != nil && (sub.CurrentPeriodEnd == nil || sub.CurrentPeriodEnd.After(*f.PeriodEndBefore)) {
		return false
	}
	if f.TrialEndsBefore != nil && (sub.TrialEndsAt == nil || sub.TrialEndsAt.After(*f.TrialEndsBefore)) {
		return false
	}
	if f.CancelAtPeriodEnd != nil && sub.CancelAtPeriodEnd != *f.CancelAtPeriodEnd {
		return false
	}
	if f.UpdatedBefore != nil && sub.UpdatedAt.After(*f.UpdatedBefore) {
		return false
	}
	return true
}

func (s *InMemorySubscriptionStore) CountOpen(ctx context.Context, customerID string) (int, error) {
	subs := s.InMemoryStore.List(ctx, func(ctx context.Context, sub *subscription.Subscription) bool {
		return inTenant(ctx, sub.BaseModel) && sub.CustomerID == customerID && sub.SubscriptionStatus.IsOpen()
	}, nil)
	return len(subs), nil
}

func (s *InMemorySubscriptionStore) CountByPlan(ctx context.Context, planID string) (int, error) {
	subs := s.InMemoryStore.List(ctx, func(ctx context.Context, sub *subscription.Subscription) bool {
		return inTenant(ctx, sub.BaseModel) && sub.PlanID == planID && !sub.SubscriptionStatus.IsTerminal()
	}, nil)
	return len(subs), nil
}
