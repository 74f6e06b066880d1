package connection

import (
	"context"

	"github.com/flexprice/flexbill/internal/types"
)

type Repository interface {
	// Upsert creates or replaces the tenant's connection for conn.Provider
	Upsert(ctx context.Context, conn *Connection) error
	GetByProvider(ctx context.Context, provider types.PaymentProvider) (*Connection, error)
	Delete(ctx context.Context, provider types.PaymentProvider) error
}
