package testutil

import (
	"context"
	"strconv"
	"sync"

	"github.com/flexprice/flexbill/internal/domain/invoice"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
}

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[*invoice.Invoice](),
	}
}

func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	if inv == nil {
		return nil
	}
	cp := *inv
	cp.LineItems = lo.Map(inv.LineItems, func(li *invoice.LineItem, _ int) *invoice.LineItem {
		c := *li
		return &c
	})
	return &cp
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	if _, err := s.GetByIdempotencyKey(ctx, inv.IdempotencyKey); err == nil {
		return alreadyExists("idempotency_key", inv.IdempotencyKey)
	}
	if inv.Version == 0 {
		inv.Version = 1
	}
	for _, li := range inv.LineItems {
		li.InvoiceID = inv.ID
	}
	return s.InMemoryStore.Create(ctx, inv.ID, copyInvoice(inv))
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inTenant(ctx, inv.BaseModel) {
		return nil, notFound(id)
	}
	return copyInvoice(inv), nil
}

func (s *InMemoryInvoiceStore) GetByIdempotencyKey(ctx context.Context, key string) (*invoice.Invoice, error) {
	invoices := s.InMemoryStore.List(ctx, func(ctx context.Context, inv *invoice.Invoice) bool {
		return inTenant(ctx, inv.BaseModel) && inv.IdempotencyKey == key
	}, nil)

	inv, ok := lo.First(invoices)
	if !ok {
		return nil, notFound(key)
	}
	return copyInvoice(inv), nil
}

// Update changes only the payment fields, line items stay as created
func (s *InMemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	err := s.InMemoryStore.Mutate(ctx, inv.ID, func(stored *invoice.Invoice) (*invoice.Invoice, error) {
		if stored.Version != inv.Version {
			return nil, versionConflict("invoice", inv.ID)
		}
		cp := copyInvoice(stored)
		cp.AmountPaid = inv.AmountPaid
		cp.InvoiceStatus = inv.InvoiceStatus
		cp.PaidAt = inv.PaidAt
		cp.Version++
		return cp, nil
	})
	if err != nil {
		return err
	}
	inv.Version++
	return nil
}

func (s *InMemoryInvoiceStore) List(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	if filter == nil {
		filter = &types.InvoiceFilter{}
	}

	invoices := s.InMemoryStore.List(ctx, func(ctx context.Context, inv *invoice.Invoice) bool {
		if !inTenant(ctx, inv.BaseModel) {
			return false
		}
		if filter.SubscriptionID != "" && inv.SubscriptionID != filter.SubscriptionID {
			return false
		}
		if len(filter.Statuses) > 0 && !lo.Contains(filter.Statuses, inv.InvoiceStatus) {
			return false
		}
		if filter.DueBefore != nil && inv.DueDate.After(*filter.DueBefore) {
			return false
		}
		return true
	}, func(i, j *invoice.Invoice) bool {
		if i.PeriodStart.Equal(j.PeriodStart) {
			return i.CreatedAt.Before(j.CreatedAt)
		}
		return i.PeriodStart.Before(j.PeriodStart)
	})

	return lo.Map(paginate(invoices, filter.QueryFilter), func(inv *invoice.Invoice, _ int) *invoice.Invoice {
		return copyInvoice(inv)
	}), nil
}

// InMemoryInvoiceSequenceStore implements invoice.SequenceRepository
type InMemoryInvoiceSequenceStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewInMemoryInvoiceSequenceStore() *InMemoryInvoiceSequenceStore {
	return &InMemoryInvoiceSequenceStore{counters: make(map[string]int64)}
}

func (s *InMemoryInvoiceSequenceStore) Next(ctx context.Context, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := types.GetTenantID(ctx) + ":" + strconv.Itoa(year)
	s.counters[key]++
	return s.counters[key], nil
}

func (s *InMemoryInvoiceSequenceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]int64)
}
