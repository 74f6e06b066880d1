package payment

import (
	"context"

	"github.com/flexprice/flexbill/internal/types"
)

type Repository interface {
	Create(ctx context.Context, txn *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	GetByReference(ctx context.Context, reference string) (*Transaction, error)
	GetByProviderTransactionID(ctx context.Context, provider types.PaymentProvider, providerTxnID string) (*Transaction, error)
	// Update persists txn unless the stored record already reached a terminal
	// status, in which case it fails with ErrTerminalState and nothing changes.
	Update(ctx context.Context, txn *Transaction) error
	List(ctx context.Context, filter *types.PaymentFilter) ([]*Transaction, error)
}
