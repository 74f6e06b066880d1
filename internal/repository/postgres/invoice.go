package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/flexprice/flexbill/internal/domain/invoice"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	if inv.Version == 0 {
		inv.Version = 1
	}

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO invoices (
				id, subscription_id, customer_id, invoice_number, idempotency_key,
				period_start, period_end, due_date, currency, amount_due, amount_paid,
				invoice_status, paid_at, version,
				tenant_id, status, created_at, updated_at, created_by, updated_by
			) VALUES (
				:id, :subscription_id, :customer_id, :invoice_number, :idempotency_key,
				:period_start, :period_end, :due_date, :currency, :amount_due, :amount_paid,
				:invoice_status, :paid_at, :version,
				:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
			)`

		if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, inv); err != nil {
			return wrapErr(err, "invoice", map[string]any{
				"invoice_id":      inv.ID,
				"subscription_id": inv.SubscriptionID,
			})
		}

		lineQuery := `
			INSERT INTO invoice_line_items (
				id, invoice_id, description, quantity, unit_amount, total_amount, line_type,
				tenant_id, status, created_at, updated_at, created_by, updated_by
			) VALUES (
				:id, :invoice_id, :description, :quantity, :unit_amount, :total_amount, :line_type,
				:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
			)`

		for _, li := range inv.LineItems {
			li.InvoiceID = inv.ID
			if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, lineQuery, li); err != nil {
				return wrapErr(err, "invoice line item", map[string]any{"invoice_id": inv.ID})
			}
		}
		return nil
	})
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, `
		SELECT * FROM invoices
		WHERE id = $1 AND tenant_id = $2 AND status = $3`,
		id, types.GetTenantID(ctx), types.StatusPublished,
	)
	if err != nil {
		return nil, wrapErr(err, "invoice", map[string]any{"invoice_id": id})
	}

	if err := r.loadLineItems(ctx, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepository) GetByIdempotencyKey(ctx context.Context, key string) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	err := r.db.GetQuerier(ctx).GetContext(ctx, &inv, `
		SELECT * FROM invoices
		WHERE idempotency_key = $1 AND tenant_id = $2 AND status = $3`,
		key, types.GetTenantID(ctx), types.StatusPublished,
	)
	if err != nil {
		return nil, wrapErr(err, "invoice", map[string]any{"idempotency_key": key})
	}

	if err := r.loadLineItems(ctx, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepository) loadLineItems(ctx context.Context, inv *invoice.Invoice) error {
	var items []*invoice.LineItem
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &items, `
		SELECT * FROM invoice_line_items
		WHERE invoice_id = $1 AND tenant_id = $2
		ORDER BY created_at, id`,
		inv.ID, inv.TenantID,
	)
	if err != nil {
		return wrapErr(err, "invoice line item", map[string]any{"invoice_id": inv.ID})
	}
	inv.LineItems = items
	return nil
}

func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	inv.UpdatedAt = time.Now().UTC()
	inv.UpdatedBy = types.GetUserID(ctx)

	query := `
		UPDATE invoices SET
			amount_paid = :amount_paid,
			invoice_status = :invoice_status,
			paid_at = :paid_at,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id AND version = :version`

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, inv)
	if err != nil {
		return wrapErr(err, "invoice", map[string]any{"invoice_id": inv.ID})
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return wrapErr(err, "invoice", map[string]any{"invoice_id": inv.ID})
	}
	if rows == 0 {
		return ierr.NewError("invoice was modified concurrently").
			WithHint("The invoice changed while it was being updated, please retry").
			WithReportableDetails(map[string]any{
				"invoice_id": inv.ID,
				"version":    inv.Version,
			}).
			Mark(ierr.ErrVersionConflict)
	}

	inv.Version++
	return nil
}

func (r *invoiceRepository) List(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	if filter == nil {
		filter = &types.InvoiceFilter{}
	}

	args := []interface{}{}
	conds := []string{
		"tenant_id = " + nextArg(&args, types.GetTenantID(ctx)),
		"status = " + nextArg(&args, types.StatusPublished),
	}
	if filter.SubscriptionID != "" {
		conds = append(conds, "subscription_id = "+nextArg(&args, filter.SubscriptionID))
	}
	if len(filter.Statuses) > 0 {
		conds = append(conds, "invoice_status IN ("+placeholders(&args, toAny(filter.Statuses)...)+")")
	}
	if filter.DueBefore != nil {
		conds = append(conds, "due_date <= "+nextArg(&args, *filter.DueBefore))
	}

	query := "SELECT * FROM invoices WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY period_start, created_at LIMIT " + nextArg(&args, filter.GetLimit()) +
		" OFFSET " + nextArg(&args, filter.Offset)

	var invoices []*invoice.Invoice
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, wrapErr(err, "invoice", nil)
	}
	if len(invoices) == 0 {
		return invoices, nil
	}

	// line items for the whole page in one query
	lineArgs := []interface{}{types.GetTenantID(ctx)}
	ids := lo.Map(invoices, func(inv *invoice.Invoice, _ int) interface{} { return inv.ID })
	lineQuery := "SELECT * FROM invoice_line_items WHERE tenant_id = $1 AND invoice_id IN (" +
		placeholders(&lineArgs, ids...) + ") ORDER BY created_at, id"

	var items []*invoice.LineItem
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &items, lineQuery, lineArgs...); err != nil {
		return nil, wrapErr(err, "invoice line item", nil)
	}

	byInvoice := lo.GroupBy(items, func(li *invoice.LineItem) string { return li.InvoiceID })
	for _, inv := range invoices {
		inv.LineItems = byInvoice[inv.ID]
	}
	return invoices, nil
}

type invoiceSequenceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewInvoiceSequenceRepository(db *postgres.DB, logger *logger.Logger) invoice.SequenceRepository {
	return &invoiceSequenceRepository{db: db, logger: logger}
}

func (r *invoiceSequenceRepository) Next(ctx context.Context, year int) (int64, error) {
	var next int64
	err := r.db.GetQuerier(ctx).QueryRowxContext(ctx, `
		INSERT INTO invoice_sequences (tenant_id, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, year)
		DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value`,
		types.GetTenantID(ctx), year,
	).Scan(&next)
	if err != nil {
		return 0, wrapErr(err, "invoice sequence", map[string]any{"year": year})
	}
	return next, nil
}
