package postgres

import (
	"context"

	"github.com/flexprice/flexbill/internal/domain/usage"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/types"
)

type usageRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return &usageRepository{db: db, logger: logger}
}

func (r *usageRepository) Create(ctx context.Context, event *usage.Event) (bool, error) {
	query := `
		INSERT INTO usage_events (
			id, event_id, subscription_id, customer_id, metric, quantity, timestamp,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :event_id, :subscription_id, :customer_id, :metric, :quantity, :timestamp,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)
		ON CONFLICT (tenant_id, event_id) DO NOTHING`

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, event)
	if err != nil {
		return false, wrapErr(err, "usage event", map[string]any{"event_id": event.EventID})
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, wrapErr(err, "usage event", map[string]any{"event_id": event.EventID})
	}
	return rows == 1, nil
}

func (r *usageRepository) SumQuantity(ctx context.Context, filter *types.UsageFilter) (int64, error) {
	var total int64
	err := r.db.GetQuerier(ctx).GetContext(ctx, &total, `
		SELECT COALESCE(SUM(quantity), 0) FROM usage_events
		WHERE tenant_id = $1 AND subscription_id = $2 AND metric = $3
		AND timestamp >= $4 AND timestamp < $5 AND status = $6`,
		types.GetTenantID(ctx), filter.SubscriptionID, filter.Metric,
		filter.From, filter.To, types.StatusPublished,
	)
	if err != nil {
		return 0, wrapErr(err, "usage event", map[string]any{
			"subscription_id": filter.SubscriptionID,
			"metric":          filter.Metric,
		})
	}
	return total, nil
}
