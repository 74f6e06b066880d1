package postgres

import (
	"context"
	"time"

	"github.com/flexprice/flexbill/internal/domain/plan"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/types"
)

type planRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPlanRepository(db *postgres.DB, logger *logger.Logger) plan.Repository {
	return &planRepository{db: db, logger: logger}
}

func (r *planRepository) Create(ctx context.Context, p *plan.Plan) error {
	query := `
		INSERT INTO plans (
			id, name, pricing_model, base_amount, currency, billing_interval,
			usage_metric, unit_price, free_units, trial_days, plan_status,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :name, :pricing_model, :base_amount, :currency, :billing_interval,
			:usage_metric, :unit_price, :free_units, :trial_days, :plan_status,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, p)
	return wrapErr(err, "plan", map[string]any{"plan_id": p.ID})
}

func (r *planRepository) Get(ctx context.Context, id string) (*plan.Plan, error) {
	var p plan.Plan
	err := r.db.GetQuerier(ctx).GetContext(ctx, &p, `
		SELECT * FROM plans
		WHERE id = $1 AND tenant_id = $2 AND status = $3`,
		id, types.GetTenantID(ctx), types.StatusPublished,
	)
	if err != nil {
		return nil, wrapErr(err, "plan", map[string]any{"plan_id": id})
	}
	return &p, nil
}

func (r *planRepository) Update(ctx context.Context, p *plan.Plan) error {
	p.UpdatedAt = time.Now().UTC()
	p.UpdatedBy = types.GetUserID(ctx)

	query := `
		UPDATE plans SET
			name = :name,
			pricing_model = :pricing_model,
			base_amount = :base_amount,
			billing_interval = :billing_interval,
			usage_metric = :usage_metric,
			unit_price = :unit_price,
			free_units = :free_units,
			trial_days = :trial_days,
			plan_status = :plan_status,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`

	_, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, p)
	return wrapErr(err, "plan", map[string]any{"plan_id": p.ID})
}

func (r *planRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, `
		UPDATE plans SET status = $1, updated_at = $2, updated_by = $3
		WHERE id = $4 AND tenant_id = $5`,
		types.StatusDeleted, time.Now().UTC(), types.GetUserID(ctx), id, types.GetTenantID(ctx),
	)
	return wrapErr(err, "plan", map[string]any{"plan_id": id})
}
