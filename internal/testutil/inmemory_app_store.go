package testutil

import (
	"context"

	"github.com/flexprice/flexbill/internal/domain/app"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/lib/pq"
)

// InMemoryAppStore implements app.Repository
type InMemoryAppStore struct {
	*InMemoryStore[*app.App]
}

func NewInMemoryAppStore() *InMemoryAppStore {
	return &InMemoryAppStore{
		InMemoryStore: NewInMemoryStore[*app.App](),
	}
}

func copyApp(a *app.App) *app.App {
	if a == nil {
		return nil
	}
	cp := *a
	cp.WebhookEvents = append(pq.StringArray{}, a.WebhookEvents...)
	return &cp
}

func (s *InMemoryAppStore) Create(ctx context.Context, a *app.App) error {
	return s.InMemoryStore.Create(ctx, a.ID, copyApp(a))
}

func (s *InMemoryAppStore) Get(ctx context.Context) (*app.App, error) {
	a, err := s.InMemoryStore.Get(ctx, types.GetTenantID(ctx))
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("App settings not found").
			Mark(ierr.ErrNotFound)
	}
	if a.Status != types.StatusPublished {
		return nil, notFound(a.ID)
	}
	return copyApp(a), nil
}

func (s *InMemoryAppStore) Update(ctx context.Context, a *app.App) error {
	return s.InMemoryStore.Update(ctx, a.ID, copyApp(a))
}

func (s *InMemoryAppStore) ListAll(ctx context.Context) ([]*app.App, error) {
	apps := s.InMemoryStore.List(ctx, func(ctx context.Context, a *app.App) bool {
		return a.Status == types.StatusPublished
	}, func(i, j *app.App) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})

	out := make([]*app.App, 0, len(apps))
	for _, a := range apps {
		out = append(out, copyApp(a))
	}
	return out, nil
}
