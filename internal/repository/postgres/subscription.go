package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/flexprice/flexbill/internal/domain/subscription"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/types"
)

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub.Version == 0 {
		sub.Version = 1
	}

	query := `
		INSERT INTO subscriptions (
			id, customer_id, plan_id, plan_snapshot, subscription_status, currency,
			current_period_start, current_period_end, trial_ends_at,
			cancel_at_period_end, cancelled_at, failed_payment_attempts, last_payment_date, version,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :customer_id, :plan_id, :plan_snapshot, :subscription_status, :currency,
			:current_period_start, :current_period_end, :trial_ends_at,
			:cancel_at_period_end, :cancelled_at, :failed_payment_attempts, :last_payment_date, :version,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, sub)
	return wrapErr(err, "subscription", map[string]any{"subscription_id": sub.ID})
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	err := r.db.GetQuerier(ctx).GetContext(ctx, &sub, `
		SELECT * FROM subscriptions
		WHERE id = $1 AND tenant_id = $2 AND status = $3`,
		id, types.GetTenantID(ctx), types.StatusPublished,
	)
	if err != nil {
		return nil, wrapErr(err, "subscription", map[string]any{"subscription_id": id})
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	sub.UpdatedBy = types.GetUserID(ctx)

	query := `
		UPDATE subscriptions SET
			plan_id = :plan_id,
			plan_snapshot = :plan_snapshot,
			subscription_status = :subscription_status,
			current_period_start = :current_period_start,
			current_period_end = :current_period_end,
			trial_ends_at = :trial_ends_at,
			cancel_at_period_end = :cancel_at_period_end,
			cancelled_at = :cancelled_at,
			failed_payment_attempts = :failed_payment_attempts,
			last_payment_date = :last_payment_date,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id AND version = :version`

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, sub)
	if err != nil {
		return wrapErr(err, "subscription", map[string]any{"subscription_id": sub.ID})
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return wrapErr(err, "subscription", map[string]any{"subscription_id": sub.ID})
	}
	if rows == 0 {
		return ierr.NewError("subscription was modified concurrently").
			WithHint("The subscription changed while it was being updated, please retry").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"version":         sub.Version,
			}).
			Mark(ierr.ErrVersionConflict)
	}

	sub.Version++
	return nil
}

func (r *subscriptionRepository) List(ctx context.Context, filter *types.SubscriptionFilter) ([]*subscription.Subscription, error) {
	if filter == nil {
		filter = &types.SubscriptionFilter{}
	}

	args := []interface{}{}
	conds := []string{
		"tenant_id = " + nextArg(&args, types.GetTenantID(ctx)),
		"status = " + nextArg(&args, types.StatusPublished),
	}
	if filter.CustomerID != "" {
		conds = append(conds, "customer_id = "+nextArg(&args, filter.CustomerID))
	}
	if filter.PlanID != "" {
		conds = append(conds, "plan_id = "+nextArg(&args, filter.PlanID))
	}
	if len(filter.Statuses) > 0 {
		conds = append(conds, "subscription_status IN ("+placeholders(&args, toAny(filter.Statuses)...)+")")
	}
	if filter.PeriodEndBefore != nil {
		conds = append(conds, "current_period_end <= "+nextArg(&args, *filter.PeriodEndBefore))
	}
	if filter.TrialEndsBefore != nil {
		conds = append(conds, "trial_ends_at <= "+nextArg(&args, *filter.TrialEndsBefore))
	}
	if filter.CancelAtPeriodEnd != nil {
		conds = append(conds, "cancel_at_period_end = "+nextArg(&args, *filter.CancelAtPeriodEnd))
	}
	if filter.UpdatedBefore != nil {
		conds = append(conds, "updated_at <= "+nextArg(&args, *filter.UpdatedBefore))
	}

	query := "SELECT * FROM subscriptions WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY created_at LIMIT " + nextArg(&args, filter.GetLimit()) +
		" OFFSET " + nextArg(&args, filter.Offset)

	var subs []*subscription.Subscription
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, wrapErr(err, "subscription", nil)
	}
	return subs, nil
}

func (r *subscriptionRepository) CountOpen(ctx context.Context, customerID string) (int, error) {
	args := []interface{}{types.GetTenantID(ctx), types.StatusPublished, customerID}
	query := `
		SELECT COUNT(*) FROM subscriptions
		WHERE tenant_id = $1 AND status = $2 AND customer_id = $3
		AND subscription_status IN (` + placeholders(&args, toAny(types.OpenSubscriptionStatuses)...) + `)`

	var count int
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &count, query, args...); err != nil {
		return 0, wrapErr(err, "subscription", map[string]any{"customer_id": customerID})
	}
	return count, nil
}

func (r *subscriptionRepository) CountByPlan(ctx context.Context, planID string) (int, error) {
	var count int
	err := r.db.GetQuerier(ctx).GetContext(ctx, &count, `
		SELECT COUNT(*) FROM subscriptions
		WHERE tenant_id = $1 AND status = $2 AND plan_id = $3
		AND subscription_status NOT IN ($4, $5)`,
		types.GetTenantID(ctx), types.StatusPublished, planID,
		types.SubscriptionStatusCancelled, types.SubscriptionStatusExpired,
	)
	if err != nil {
		return 0, wrapErr(err, "subscription", map[string]any{"plan_id": planID})
	}
	return count, nil
}
