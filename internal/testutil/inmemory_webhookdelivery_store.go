package testutil

import (
	"context"
	"time"

	"github.com/flexprice/flexbill/internal/domain/webhookdelivery"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

// InMemoryWebhookDeliveryStore implements webhookdelivery.Repository
type InMemoryWebhookDeliveryStore struct {
	*InMemoryStore[*webhookdelivery.Delivery]
}

func NewInMemoryWebhookDeliveryStore() *InMemoryWebhookDeliveryStore {
	return &InMemoryWebhookDeliveryStore{
		InMemoryStore: NewInMemoryStore[*webhookdelivery.Delivery](),
	}
}

func copyDelivery(d *webhookdelivery.Delivery) *webhookdelivery.Delivery {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

func (s *InMemoryWebhookDeliveryStore) Create(ctx context.Context, d *webhookdelivery.Delivery) error {
	return s.InMemoryStore.Create(ctx, d.ID, copyDelivery(d))
}

func (s *InMemoryWebhookDeliveryStore) Get(ctx context.Context, id string) (*webhookdelivery.Delivery, error) {
	d, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inTenant(ctx, d.BaseModel) {
		return nil, notFound(id)
	}
	return copyDelivery(d), nil
}

func (s *InMemoryWebhookDeliveryStore) ClaimAttempt(ctx context.Context, id string, prevAttempts int, at, leaseUntil time.Time) (bool, error) {
	claimed := false
	err := s.InMemoryStore.Mutate(ctx, id, func(d *webhookdelivery.Delivery) (*webhookdelivery.Delivery, error) {
		if d.DeliveryStatus != types.WebhookDeliveryStatusPending || d.Attempts != prevAttempts {
			return d, nil
		}
		cp := copyDelivery(d)
		cp.Attempts++
		cp.LastAttemptAt = &at
		cp.NextRetryAt = &leaseUntil
		cp.UpdatedAt = at
		claimed = true
		return cp, nil
	})
	return claimed, err
}

func (s *InMemoryWebhookDeliveryStore) RecordResult(ctx context.Context, d *webhookdelivery.Delivery) error {
	return s.InMemoryStore.Mutate(ctx, d.ID, func(stored *webhookdelivery.Delivery) (*webhookdelivery.Delivery, error) {
		if stored.Attempts != d.Attempts {
			return stored, nil
		}
		cp := copyDelivery(stored)
		cp.DeliveryStatus = d.DeliveryStatus
		cp.NextRetryAt = d.NextRetryAt
		cp.LastResponseCode = d.LastResponseCode
		cp.LastError = d.LastError
		return cp, nil
	})
}

func (s *InMemoryWebhookDeliveryStore) List(ctx context.Context, filter *types.WebhookDeliveryFilter) ([]*webhookdelivery.Delivery, error) {
	if filter == nil {
		filter = &types.WebhookDeliveryFilter{}
	}

	deliveries := s.InMemoryStore.List(ctx, func(ctx context.Context, d *webhookdelivery.Delivery) bool {
		if !inTenant(ctx, d.BaseModel) {
			return false
		}
		if len(filter.Statuses) > 0 && !lo.Contains(filter.Statuses, d.DeliveryStatus) {
			return false
		}
		if filter.EventName != "" && d.EventName != filter.EventName {
			return false
		}
		if filter.DueBefore != nil && (d.NextRetryAt == nil || d.NextRetryAt.After(*filter.DueBefore)) {
			return false
		}
		return true
	}, func(i, j *webhookdelivery.Delivery) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})

	return lo.Map(paginate(deliveries, filter.QueryFilter), func(d *webhookdelivery.Delivery, _ int) *webhookdelivery.Delivery {
		return copyDelivery(d)
	}), nil
}

func (s *InMemoryWebhookDeliveryStore) Requeue(ctx context.Context, id string, at time.Time) error {
	return s.InMemoryStore.Mutate(ctx, id, func(d *webhookdelivery.Delivery) (*webhookdelivery.Delivery, error) {
		cp := copyDelivery(d)
		cp.DeliveryStatus = types.WebhookDeliveryStatusPending
		cp.Attempts = 0
		cp.NextRetryAt = &at
		cp.LastError = ""
		cp.UpdatedAt = at
		return cp, nil
	})
}

// ByEvent returns the tenant's deliveries of eventName in creation order
func (s *InMemoryWebhookDeliveryStore) ByEvent(ctx context.Context, eventName string) []*webhookdelivery.Delivery {
	deliveries, _ := s.List(ctx, &types.WebhookDeliveryFilter{
		QueryFilter: types.QueryFilter{Limit: types.MaxFilterLimit},
		EventName:   eventName,
	})
	return deliveries
}
