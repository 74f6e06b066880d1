package postgres

import (
	"context"
	"time"

	"github.com/flexprice/flexbill/internal/domain/webhooklog"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/types"
)

type webhookLogRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewWebhookLogRepository(db *postgres.DB, logger *logger.Logger) webhooklog.Repository {
	return &webhookLogRepository{db: db, logger: logger}
}

const insertWebhookLog = `
	INSERT INTO webhook_logs (
		id, provider, dedup_key, provider_event_id, event_type, payload,
		webhook_status, error, processed_at,
		tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :provider, :dedup_key, :provider_event_id, :event_type, :payload,
		:webhook_status, :error, :processed_at,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

// Claim relies on the partial unique index over (tenant_id, provider, dedup_key)
// that excludes ignored and failed rows, so a callback that failed can be retried.
func (r *webhookLogRepository) Claim(ctx context.Context, log *webhooklog.WebhookLog) (bool, error) {
	query := insertWebhookLog + `
		ON CONFLICT (tenant_id, provider, dedup_key) WHERE webhook_status NOT IN ('ignored', 'failed')
		DO NOTHING`

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, log)
	if err != nil {
		return false, wrapErr(err, "webhook log", map[string]any{"dedup_key": log.DedupKey})
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, wrapErr(err, "webhook log", map[string]any{"dedup_key": log.DedupKey})
	}
	return rows == 1, nil
}

func (r *webhookLogRepository) Create(ctx context.Context, log *webhooklog.WebhookLog) error {
	_, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, insertWebhookLog, log)
	return wrapErr(err, "webhook log", map[string]any{"dedup_key": log.DedupKey})
}

func (r *webhookLogRepository) UpdateStatus(ctx context.Context, id string, status types.WebhookLogStatus, errMsg string) error {
	now := time.Now().UTC()
	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, `
		UPDATE webhook_logs SET
			webhook_status = $1, error = $2, processed_at = $3, updated_at = $3
		WHERE id = $4 AND tenant_id = $5`,
		status, errMsg, now, id, types.GetTenantID(ctx),
	)
	return wrapErr(err, "webhook log", map[string]any{"webhook_log_id": id})
}
