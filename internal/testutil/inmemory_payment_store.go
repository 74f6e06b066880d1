package testutil

import (
	"context"

	"github.com/flexprice/flexbill/internal/domain/payment"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

// InMemoryPaymentStore implements payment.Repository. Terminal transactions
// reject updates with ErrTerminalState like the SQL guard does.
type InMemoryPaymentStore struct {
	*InMemoryStore[*payment.Transaction]
}

func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		InMemoryStore: NewInMemoryStore[*payment.Transaction](),
	}
}

func copyTransaction(txn *payment.Transaction) *payment.Transaction {
	if txn == nil {
		return nil
	}
	cp := *txn
	return &cp
}

func (s *InMemoryPaymentStore) Create(ctx context.Context, txn *payment.Transaction) error {
	if _, err := s.GetByReference(ctx, txn.ProviderReference); err == nil {
		return alreadyExists("provider_reference", txn.ProviderReference)
	}
	if txn.IdempotencyKey != "" {
		dup := s.InMemoryStore.List(ctx, func(ctx context.Context, t *payment.Transaction) bool {
			return t.TenantID == txn.TenantID && t.IdempotencyKey == txn.IdempotencyKey
		}, nil)
		if len(dup) > 0 {
			return alreadyExists("idempotency_key", txn.IdempotencyKey)
		}
	}
	return s.InMemoryStore.Create(ctx, txn.ID, copyTransaction(txn))
}

func (s *InMemoryPaymentStore) Get(ctx context.Context, id string) (*payment.Transaction, error) {
	txn, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inTenant(ctx, txn.BaseModel) {
		return nil, notFound(id)
	}
	return copyTransaction(txn), nil
}

func (s *InMemoryPaymentStore) find(ctx context.Context, key string, match func(*payment.Transaction) bool) (*payment.Transaction, error) {
	txns := s.InMemoryStore.List(ctx, func(ctx context.Context, t *payment.Transaction) bool {
		return inTenant(ctx, t.BaseModel) && match(t)
	}, nil)

	txn, ok := lo.First(txns)
	if !ok {
		return nil, notFound(key)
	}
	return copyTransaction(txn), nil
}

func (s *InMemoryPaymentStore) GetByReference(ctx context.Context, reference string) (*payment.Transaction, error) {
	return s.find(ctx, reference, func(t *payment.Transaction) bool {
		return t.ProviderReference == reference
	})
}

func (s *InMemoryPaymentStore) GetByProviderTransactionID(ctx context.Context, provider types.PaymentProvider, providerTxnID string) (*payment.Transaction, error) {
	return s.find(ctx, providerTxnID, func(t *payment.Transaction) bool {
		return t.Provider == provider && t.ProviderTransactionID == providerTxnID &&
			t.Kind == types.TransactionKindCharge
	})
}

func (s *InMemoryPaymentStore) Update(ctx context.Context, txn *payment.Transaction) error {
	return s.InMemoryStore.Mutate(ctx, txn.ID, func(stored *payment.Transaction) (*payment.Transaction, error) {
		if stored.IsTerminal() {
			return nil, ierr.NewError("payment already reached a terminal status").
				WithHint("The payment is final and can no longer change").
				WithReportableDetails(map[string]any{
					"payment_id": txn.ID,
					"status":     stored.PaymentStatus,
				}).
				Mark(ierr.ErrTerminalState)
		}
		cp := copyTransaction(stored)
		cp.PaymentStatus = txn.PaymentStatus
		cp.ProviderTransactionID = txn.ProviderTransactionID
		cp.PaymentURL = txn.PaymentURL
		cp.FailureReason = txn.FailureReason
		cp.PaidAt = txn.PaidAt
		return cp, nil
	})
}

func (s *InMemoryPaymentStore) List(ctx context.Context, filter *types.PaymentFilter) ([]*payment.Transaction, error) {
	if filter == nil {
		filter = &types.PaymentFilter{}
	}

	txns := s.InMemoryStore.List(ctx, func(ctx context.Context, t *payment.Transaction) bool {
		if !inTenant(ctx, t.BaseModel) {
			return false
		}
		if filter.InvoiceID != "" && t.InvoiceID != filter.InvoiceID {
			return false
		}
		if filter.SubscriptionID != "" && t.SubscriptionID != filter.SubscriptionID {
			return false
		}
		if len(filter.Statuses) > 0 && !lo.Contains(filter.Statuses, t.PaymentStatus) {
			return false
		}
		if filter.CreatedBefore != nil && t.CreatedAt.After(*filter.CreatedBefore) {
			return false
		}
		return true
	}, func(i, j *payment.Transaction) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})

	return lo.Map(paginate(txns, filter.QueryFilter), func(t *payment.Transaction, _ int) *payment.Transaction {
		return copyTransaction(t)
	}), nil
}
