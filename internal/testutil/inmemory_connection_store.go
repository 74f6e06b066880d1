package testutil

import (
	"context"

	"github.com/flexprice/flexbill/internal/domain/connection"
	"github.com/flexprice/flexbill/internal/types"
)

// InMemoryConnectionStore implements connection.Repository
type InMemoryConnectionStore struct {
	*InMemoryStore[*connection.Connection]
}

func NewInMemoryConnectionStore() *InMemoryConnectionStore {
	return &InMemoryConnectionStore{
		InMemoryStore: NewInMemoryStore[*connection.Connection](),
	}
}

func connectionKey(ctx context.Context, provider types.PaymentProvider) string {
	return types.GetTenantID(ctx) + ":" + string(provider)
}

func (s *InMemoryConnectionStore) Upsert(ctx context.Context, conn *connection.Connection) error {
	cp := *conn
	key := connectionKey(ctx, conn.Provider)
	if err := s.InMemoryStore.Update(ctx, key, &cp); err == nil {
		return nil
	}
	return s.InMemoryStore.Create(ctx, key, &cp)
}

func (s *InMemoryConnectionStore) GetByProvider(ctx context.Context, provider types.PaymentProvider) (*connection.Connection, error) {
	conn, err := s.InMemoryStore.Get(ctx, connectionKey(ctx, provider))
	if err != nil {
		return nil, err
	}
	if conn.Status != types.StatusPublished {
		return nil, notFound(string(provider))
	}
	cp := *conn
	return &cp, nil
}

func (s *InMemoryConnectionStore) Delete(ctx context.Context, provider types.PaymentProvider) error {
	return s.InMemoryStore.Mutate(ctx, connectionKey(ctx, provider), func(conn *connection.Connection) (*connection.Connection, error) {
		cp := *conn
		cp.Status = types.StatusDeleted
		return &cp, nil
	})
}
