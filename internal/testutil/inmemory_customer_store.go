package testutil

import (
	"context"

	"github.com/flexprice/flexbill/internal/domain/customer"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

// InMemoryCustomerStore implements customer.Repository
type InMemoryCustomerStore struct {
	*InMemoryStore[*customer.Customer]
}

func NewInMemoryCustomerStore() *InMemoryCustomerStore {
	return &InMemoryCustomerStore{
		InMemoryStore: NewInMemoryStore[*customer.Customer](),
	}
}

func copyCustomer(c *customer.Customer) *customer.Customer {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func (s *InMemoryCustomerStore) Create(ctx context.Context, c *customer.Customer) error {
	if _, err := s.GetByExternalID(ctx, c.ExternalID); err == nil && c.ExternalID != "" {
		return alreadyExists("external_id", c.ExternalID)
	}
	return s.InMemoryStore.Create(ctx, c.ID, copyCustomer(c))
}

func (s *InMemoryCustomerStore) Get(ctx context.Context, id string) (*customer.Customer, error) {
	c, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inTenant(ctx, c.BaseModel) {
		return nil, notFound(id)
	}
	return copyCustomer(c), nil
}

func (s *InMemoryCustomerStore) GetByExternalID(ctx context.Context, externalID string) (*customer.Customer, error) {
	customers := s.InMemoryStore.List(ctx, func(ctx context.Context, c *customer.Customer) bool {
		return inTenant(ctx, c.BaseModel) && c.ExternalID == externalID
	}, nil)

	c, ok := lo.First(customers)
	if !ok {
		return nil, notFound(externalID)
	}
	return copyCustomer(c), nil
}

func (s *InMemoryCustomerStore) Update(ctx context.Context, c *customer.Customer) error {
	return s.InMemoryStore.Update(ctx, c.ID, copyCustomer(c))
}

func (s *InMemoryCustomerStore) Delete(ctx context.Context, id string) error {
	return s.InMemoryStore.Mutate(ctx, id, func(c *customer.Customer) (*customer.Customer, error) {
		cp := copyCustomer(c)
		cp.Status = types.StatusDeleted
		return cp, nil
	})
}
