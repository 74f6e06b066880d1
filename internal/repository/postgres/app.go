package postgres

import (
	"context"
	"time"

	"github.com/flexprice/flexbill/internal/domain/app"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/types"
)

type appRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewAppRepository(db *postgres.DB, logger *logger.Logger) app.Repository {
	return &appRepository{db: db, logger: logger}
}

func (r *appRepository) Create(ctx context.Context, a *app.App) error {
	query := `
		INSERT INTO apps (
			id, name, grace_period_days, webhook_url, webhook_secret, webhook_events,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :name, :grace_period_days, :webhook_url, :webhook_secret, :webhook_events,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, a)
	return wrapErr(err, "app", map[string]any{"app_id": a.ID})
}

func (r *appRepository) Get(ctx context.Context) (*app.App, error) {
	var a app.App
	err := r.db.GetQuerier(ctx).GetContext(ctx, &a, `
		SELECT * FROM apps
		WHERE tenant_id = $1 AND status = $2`,
		types.GetTenantID(ctx), types.StatusPublished,
	)
	if err != nil {
		return nil, wrapErr(err, "app", map[string]any{"tenant_id": types.GetTenantID(ctx)})
	}
	return &a, nil
}

func (r *appRepository) Update(ctx context.Context, a *app.App) error {
	a.UpdatedAt = time.Now().UTC()
	a.UpdatedBy = types.GetUserID(ctx)

	query := `
		UPDATE apps SET
			name = :name,
			grace_period_days = :grace_period_days,
			webhook_url = :webhook_url,
			webhook_secret = :webhook_secret,
			webhook_events = :webhook_events,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`

	_, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, a)
	return wrapErr(err, "app", map[string]any{"app_id": a.ID})
}

func (r *appRepository) ListAll(ctx context.Context) ([]*app.App, error) {
	var apps []*app.App
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &apps, `
		SELECT * FROM apps WHERE status = $1 ORDER BY created_at`,
		types.StatusPublished,
	)
	if err != nil {
		return nil, wrapErr(err, "app", nil)
	}
	return apps, nil
}
