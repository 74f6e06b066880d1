package testutil

import (
	"context"
	"time"

	"github.com/flexprice/flexbill/internal/domain/invoice"
	"github.com/flexprice/flexbill/internal/domain/payment"
	"github.com/flexprice/flexbill/internal/domain/subscription"
	"github.com/flexprice/flexbill/internal/domain/usage"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

// InMemoryCleanupStore implements cleanup.Repository over the other in-memory stores
type InMemoryCleanupStore struct {
	subscriptions *InMemorySubscriptionStore
	invoices      *InMemoryInvoiceStore
	payments      *InMemoryPaymentStore
	usage         *InMemoryUsageStore
}

func NewInMemoryCleanupStore(
	subscriptions *InMemorySubscriptionStore,
	invoices *InMemoryInvoiceStore,
	payments *InMemoryPaymentStore,
	usage *InMemoryUsageStore,
) *InMemoryCleanupStore {
	return &InMemoryCleanupStore{
		subscriptions: subscriptions,
		invoices:      invoices,
		payments:      payments,
		usage:         usage,
	}
}

func (s *InMemoryCleanupStore) PruneSubscriptions(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	subs := s.subscriptions.InMemoryStore.List(ctx, func(ctx context.Context, sub *subscription.Subscription) bool {
		return sub.TenantID == types.GetTenantID(ctx) && sub.SubscriptionStatus.IsTerminal() && sub.UpdatedAt.Before(cutoff)
	}, func(i, j *subscription.Subscription) bool {
		return i.UpdatedAt.Before(j.UpdatedAt)
	})
	if len(subs) > limit {
		subs = subs[:limit]
	}

	ids := lo.Map(subs, func(sub *subscription.Subscription, _ int) string { return sub.ID })
	owned := func(subscriptionID string) bool { return lo.Contains(ids, subscriptionID) }

	for _, txn := range s.payments.InMemoryStore.List(ctx, func(ctx context.Context, t *payment.Transaction) bool {
		return owned(t.SubscriptionID)
	}, nil) {
		_ = s.payments.InMemoryStore.Delete(ctx, txn.ID)
	}
	for _, inv := range s.invoices.InMemoryStore.List(ctx, func(ctx context.Context, i *invoice.Invoice) bool {
		return owned(i.SubscriptionID)
	}, nil) {
		_ = s.invoices.InMemoryStore.Delete(ctx, inv.ID)
	}
	for _, e := range s.usage.InMemoryStore.List(ctx, func(ctx context.Context, e *usage.Event) bool {
		return owned(e.SubscriptionID)
	}, nil) {
		_ = s.usage.InMemoryStore.Delete(ctx, e.ID)
	}
	for _, id := range ids {
		_ = s.subscriptions.InMemoryStore.Delete(ctx, id)
	}
	return len(ids), nil
}
