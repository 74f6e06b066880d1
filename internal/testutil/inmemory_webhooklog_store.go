package testutil

import (
	"context"
	"time"

	"github.com/flexprice/flexbill/internal/domain/webhooklog"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

// InMemoryWebhookLogStore implements webhooklog.Repository with the same
// uniqueness rule as the partial index: one log per dedup key that is
// neither ignored nor failed
type InMemoryWebhookLogStore struct {
	*InMemoryStore[*webhooklog.WebhookLog]
}

func NewInMemoryWebhookLogStore() *InMemoryWebhookLogStore {
	return &InMemoryWebhookLogStore{
		InMemoryStore: NewInMemoryStore[*webhooklog.WebhookLog](),
	}
}

func (s *InMemoryWebhookLogStore) Claim(ctx context.Context, log *webhooklog.WebhookLog) (bool, error) {
	s.InMemoryStore.mu.Lock()
	defer s.InMemoryStore.mu.Unlock()

	for _, existing := range s.items {
		if existing.TenantID == log.TenantID && existing.Provider == log.Provider &&
			existing.DedupKey == log.DedupKey && !releasesDedupKey(existing.WebhookStatus) {
			return false, nil
		}
	}
	cp := *log
	s.items[log.ID] = &cp
	return true, nil
}

func (s *InMemoryWebhookLogStore) Create(ctx context.Context, log *webhooklog.WebhookLog) error {
	cp := *log
	return s.InMemoryStore.Create(ctx, log.ID, &cp)
}

func (s *InMemoryWebhookLogStore) UpdateStatus(ctx context.Context, id string, status types.WebhookLogStatus, errMsg string) error {
	return s.InMemoryStore.Mutate(ctx, id, func(log *webhooklog.WebhookLog) (*webhooklog.WebhookLog, error) {
		now := time.Now().UTC()
		cp := *log
		cp.WebhookStatus = status
		cp.Error = errMsg
		cp.ProcessedAt = &now
		cp.UpdatedAt = now
		return &cp, nil
	})
}

// ListByDedupKey returns the logs stored for one callback, oldest first
func (s *InMemoryWebhookLogStore) ListByDedupKey(ctx context.Context, provider types.PaymentProvider, dedupKey string) ([]*webhooklog.WebhookLog, error) {
	logs := s.InMemoryStore.List(ctx, func(ctx context.Context, log *webhooklog.WebhookLog) bool {
		return log.TenantID == types.GetTenantID(ctx) && log.Provider == provider && log.DedupKey == dedupKey
	}, func(i, j *webhooklog.WebhookLog) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})

	return lo.Map(logs, func(log *webhooklog.WebhookLog, _ int) *webhooklog.WebhookLog {
		cp := *log
		return &cp
	}), nil
}

// All returns every stored log regardless of tenant
func (s *InMemoryWebhookLogStore) All() []*webhooklog.WebhookLog {
	return s.InMemoryStore.List(context.Background(), nil, func(i, j *webhooklog.WebhookLog) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})
}

func releasesDedupKey(status types.WebhookLogStatus) bool {
	return status == types.WebhookLogStatusIgnored || status == types.WebhookLogStatusFailed
}
