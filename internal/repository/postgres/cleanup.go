package postgres

import (
	"context"
	"time"

	"github.com/flexprice/flexbill/internal/domain/cleanup"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/lib/pq"
)

type cleanupRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewCleanupRepository(db *postgres.DB, logger *logger.Logger) cleanup.Repository {
	return &cleanupRepository{db: db, logger: logger}
}

// dependents of a subscription, deleted children first
var cleanupStatements = []string{
	`DELETE FROM invoice_line_items WHERE tenant_id = $1 AND invoice_id IN (
		SELECT id FROM invoices WHERE tenant_id = $1 AND subscription_id = ANY($2))`,
	`DELETE FROM payment_transactions WHERE tenant_id = $1 AND subscription_id = ANY($2)`,
	`DELETE FROM invoices WHERE tenant_id = $1 AND subscription_id = ANY($2)`,
	`DELETE FROM usage_events WHERE tenant_id = $1 AND subscription_id = ANY($2)`,
	`DELETE FROM subscriptions WHERE tenant_id = $1 AND id = ANY($2)`,
}

func (r *cleanupRepository) PruneSubscriptions(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tenantID := types.GetTenantID(ctx)
	var pruned int

	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		var ids []string
		err := r.db.GetQuerier(ctx).SelectContext(ctx, &ids, `
			SELECT id FROM subscriptions
			WHERE tenant_id = $1 AND subscription_status IN ($2, $3) AND updated_at < $4
			ORDER BY updated_at LIMIT $5
			FOR UPDATE SKIP LOCKED`,
			tenantID, types.SubscriptionStatusCancelled, types.SubscriptionStatusExpired, cutoff, limit,
		)
		if err != nil {
			return wrapErr(err, "subscription", nil)
		}
		if len(ids) == 0 {
			return nil
		}

		for _, stmt := range cleanupStatements {
			if _, err := r.db.GetQuerier(ctx).ExecContext(ctx, stmt, tenantID, pq.Array(ids)); err != nil {
				return wrapErr(err, "subscription", map[string]any{"count": len(ids)})
			}
		}
		pruned = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Infow("pruned terminal subscriptions",
		"tenant_id", tenantID,
		"count", pruned,
		"cutoff", cutoff)
	return pruned, nil
}
