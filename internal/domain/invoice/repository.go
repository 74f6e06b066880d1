package invoice

import (
	"context"

	"github.com/flexprice/flexbill/internal/types"
)

type Repository interface {
	// Create stores the invoice together with its line items
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Invoice, error)
	// Update persists status and payment fields if the version still matches.
	// Line items are never rewritten.
	Update(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, filter *types.InvoiceFilter) ([]*Invoice, error)
}

// SequenceRepository hands out invoice numbers
type SequenceRepository interface {
	// Next atomically increments and returns the tenant's counter for year, starting at 1
	Next(ctx context.Context, year int) (int64, error)
}
