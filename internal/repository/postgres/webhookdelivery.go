package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/flexprice/flexbill/internal/domain/webhookdelivery"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/types"
)

type webhookDeliveryRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewWebhookDeliveryRepository(db *postgres.DB, logger *logger.Logger) webhookdelivery.Repository {
	return &webhookDeliveryRepository{db: db, logger: logger}
}

func (r *webhookDeliveryRepository) Create(ctx context.Context, d *webhookdelivery.Delivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			id, event_name, payload, url, delivery_status, attempts,
			next_retry_at, last_attempt_at, last_response_code, last_error,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :event_name, :payload, :url, :delivery_status, :attempts,
			:next_retry_at, :last_attempt_at, :last_response_code, :last_error,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, d)
	return wrapErr(err, "webhook delivery", map[string]any{"delivery_id": d.ID})
}

func (r *webhookDeliveryRepository) Get(ctx context.Context, id string) (*webhookdelivery.Delivery, error) {
	var d webhookdelivery.Delivery
	err := r.db.GetQuerier(ctx).GetContext(ctx, &d, `
		SELECT * FROM webhook_deliveries
		WHERE id = $1 AND tenant_id = $2 AND status = $3`,
		id, types.GetTenantID(ctx), types.StatusPublished,
	)
	if err != nil {
		return nil, wrapErr(err, "webhook delivery", map[string]any{"delivery_id": id})
	}
	return &d, nil
}

func (r *webhookDeliveryRepository) ClaimAttempt(ctx context.Context, id string, prevAttempts int, at, leaseUntil time.Time) (bool, error) {
	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, `
		UPDATE webhook_deliveries SET
			attempts = attempts + 1, last_attempt_at = $1, next_retry_at = $2, updated_at = $1
		WHERE id = $3 AND tenant_id = $4 AND delivery_status = $5 AND attempts = $6`,
		at, leaseUntil, id, types.GetTenantID(ctx), types.WebhookDeliveryStatusPending, prevAttempts,
	)
	if err != nil {
		return false, wrapErr(err, "webhook delivery", map[string]any{"delivery_id": id})
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, wrapErr(err, "webhook delivery", map[string]any{"delivery_id": id})
	}
	return rows == 1, nil
}

func (r *webhookDeliveryRepository) RecordResult(ctx context.Context, d *webhookdelivery.Delivery) error {
	d.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE webhook_deliveries SET
			delivery_status = :delivery_status,
			next_retry_at = :next_retry_at,
			last_response_code = :last_response_code,
			last_error = :last_error,
			updated_at = :updated_at
		WHERE id = :id AND tenant_id = :tenant_id AND attempts = :attempts`

	_, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, d)
	return wrapErr(err, "webhook delivery", map[string]any{"delivery_id": d.ID})
}

func (r *webhookDeliveryRepository) List(ctx context.Context, filter *types.WebhookDeliveryFilter) ([]*webhookdelivery.Delivery, error) {
	if filter == nil {
		filter = &types.WebhookDeliveryFilter{}
	}

	args := []interface{}{}
	conds := []string{
		"tenant_id = " + nextArg(&args, types.GetTenantID(ctx)),
		"status = " + nextArg(&args, types.StatusPublished),
	}
	if len(filter.Statuses) > 0 {
		conds = append(conds, "delivery_status IN ("+placeholders(&args, toAny(filter.Statuses)...)+")")
	}
	if filter.EventName != "" {
		conds = append(conds, "event_name = "+nextArg(&args, filter.EventName))
	}
	if filter.DueBefore != nil {
		conds = append(conds, "next_retry_at <= "+nextArg(&args, *filter.DueBefore))
	}

	query := "SELECT * FROM webhook_deliveries WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY created_at LIMIT " + nextArg(&args, filter.GetLimit()) +
		" OFFSET " + nextArg(&args, filter.Offset)

	var deliveries []*webhookdelivery.Delivery
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &deliveries, query, args...); err != nil {
		return nil, wrapErr(err, "webhook delivery", nil)
	}
	return deliveries, nil
}

func (r *webhookDeliveryRepository) Requeue(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, `
		UPDATE webhook_deliveries SET
			delivery_status = $1, attempts = 0, next_retry_at = $2, last_error = '', updated_at = $2
		WHERE id = $3 AND tenant_id = $4`,
		types.WebhookDeliveryStatusPending, at, id, types.GetTenantID(ctx),
	)
	return wrapErr(err, "webhook delivery", map[string]any{"delivery_id": id})
}
