package app

import (
	"context"
)

type Repository interface {
	Create(ctx context.Context, app *App) error
	// Get returns the app of the tenant in ctx
	Get(ctx context.Context) (*App, error)
	Update(ctx context.Context, app *App) error
	// ListAll returns every published app across tenants, used by scheduled sweeps
	ListAll(ctx context.Context) ([]*App, error)
}
