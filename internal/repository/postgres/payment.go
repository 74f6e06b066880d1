package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/flexprice/flexbill/internal/domain/payment"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/types"
)

type paymentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPaymentRepository(db *postgres.DB, logger *logger.Logger) payment.Repository {
	return &paymentRepository{db: db, logger: logger}
}

func (r *paymentRepository) Create(ctx context.Context, txn *payment.Transaction) error {
	query := `
		INSERT INTO payment_transactions (
			id, kind, parent_id, subscription_id, invoice_id, customer_id, provider,
			amount, currency, payment_status, provider_transaction_id, provider_reference,
			payment_url, failure_reason, idempotency_key, paid_at,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :kind, :parent_id, :subscription_id, :invoice_id, :customer_id, :provider,
			:amount, :currency, :payment_status, :provider_transaction_id, :provider_reference,
			:payment_url, :failure_reason, :idempotency_key, :paid_at,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, txn)
	return wrapErr(err, "payment", map[string]any{
		"payment_id":      txn.ID,
		"idempotency_key": txn.IdempotencyKey,
	})
}

func (r *paymentRepository) Get(ctx context.Context, id string) (*payment.Transaction, error) {
	return r.getBy(ctx, "id", id)
}

func (r *paymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Transaction, error) {
	return r.getBy(ctx, "provider_reference", reference)
}

func (r *paymentRepository) getBy(ctx context.Context, column, value string) (*payment.Transaction, error) {
	var txn payment.Transaction
	err := r.db.GetQuerier(ctx).GetContext(ctx, &txn, `
		SELECT * FROM payment_transactions
		WHERE `+column+` = $1 AND tenant_id = $2 AND status = $3`,
		value, types.GetTenantID(ctx), types.StatusPublished,
	)
	if err != nil {
		return nil, wrapErr(err, "payment", map[string]any{column: value})
	}
	return &txn, nil
}

func (r *paymentRepository) GetByProviderTransactionID(ctx context.Context, provider types.PaymentProvider, providerTxnID string) (*payment.Transaction, error) {
	var txn payment.Transaction
	err := r.db.GetQuerier(ctx).GetContext(ctx, &txn, `
		SELECT * FROM payment_transactions
		WHERE provider = $1 AND provider_transaction_id = $2 AND tenant_id = $3 AND status = $4
		AND kind = $5`,
		provider, providerTxnID, types.GetTenantID(ctx), types.StatusPublished, types.TransactionKindCharge,
	)
	if err != nil {
		return nil, wrapErr(err, "payment", map[string]any{
			"provider":                provider,
			"provider_transaction_id": providerTxnID,
		})
	}
	return &txn, nil
}

func (r *paymentRepository) Update(ctx context.Context, txn *payment.Transaction) error {
	txn.UpdatedAt = time.Now().UTC()
	txn.UpdatedBy = types.GetUserID(ctx)

	args := []interface{}{
		txn.PaymentStatus, txn.ProviderTransactionID, txn.PaymentURL, txn.FailureReason,
		txn.PaidAt, txn.UpdatedAt, txn.UpdatedBy, txn.ID, txn.TenantID,
	}
	query := `
		UPDATE payment_transactions SET
			payment_status = $1,
			provider_transaction_id = $2,
			payment_url = $3,
			failure_reason = $4,
			paid_at = $5,
			updated_at = $6,
			updated_by = $7
		WHERE id = $8 AND tenant_id = $9
		AND payment_status NOT IN (` + placeholders(&args, toAny(types.TerminalPaymentStatuses)...) + `)`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return wrapErr(err, "payment", map[string]any{"payment_id": txn.ID})
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return wrapErr(err, "payment", map[string]any{"payment_id": txn.ID})
	}
	if rows == 0 {
		return ierr.NewError("payment already reached a terminal status").
			WithHint("The payment is final and can no longer change").
			WithReportableDetails(map[string]any{
				"payment_id": txn.ID,
				"status":     txn.PaymentStatus,
			}).
			Mark(ierr.ErrTerminalState)
	}
	return nil
}

func (r *paymentRepository) List(ctx context.Context, filter *types.PaymentFilter) ([]*payment.Transaction, error) {
	if filter == nil {
		filter = &types.PaymentFilter{}
	}

	args := []interface{}{}
	conds := []string{
		"tenant_id = " + nextArg(&args, types.GetTenantID(ctx)),
		"status = " + nextArg(&args, types.StatusPublished),
	}
	if filter.InvoiceID != "" {
		conds = append(conds, "invoice_id = "+nextArg(&args, filter.InvoiceID))
	}
	if filter.SubscriptionID != "" {
		conds = append(conds, "subscription_id = "+nextArg(&args, filter.SubscriptionID))
	}
	if len(filter.Statuses) > 0 {
		conds = append(conds, "payment_status IN ("+placeholders(&args, toAny(filter.Statuses)...)+")")
	}
	if filter.CreatedBefore != nil {
		conds = append(conds, "created_at <= "+nextArg(&args, *filter.CreatedBefore))
	}

	query := "SELECT * FROM payment_transactions WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY created_at LIMIT " + nextArg(&args, filter.GetLimit()) +
		" OFFSET " + nextArg(&args, filter.Offset)

	var txns []*payment.Transaction
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, wrapErr(err, "payment", nil)
	}
	return txns, nil
}
