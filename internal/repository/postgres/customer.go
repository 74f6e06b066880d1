package postgres

import (
	"context"
	"time"

	"github.com/flexprice/flexbill/internal/domain/customer"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/types"
)

type customerRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewCustomerRepository(db *postgres.DB, logger *logger.Logger) customer.Repository {
	return &customerRepository{db: db, logger: logger}
}

func (r *customerRepository) Create(ctx context.Context, c *customer.Customer) error {
	query := `
		INSERT INTO customers (
			id, external_id, name, email,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :external_id, :name, :email,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, c)
	return wrapErr(err, "customer", map[string]any{"external_id": c.ExternalID})
}

func (r *customerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.db.GetQuerier(ctx).GetContext(ctx, &c, `
		SELECT * FROM customers
		WHERE id = $1 AND tenant_id = $2 AND status = $3`,
		id, types.GetTenantID(ctx), types.StatusPublished,
	)
	if err != nil {
		return nil, wrapErr(err, "customer", map[string]any{"customer_id": id})
	}
	return &c, nil
}

func (r *customerRepository) GetByExternalID(ctx context.Context, externalID string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.db.GetQuerier(ctx).GetContext(ctx, &c, `
		SELECT * FROM customers
		WHERE external_id = $1 AND tenant_id = $2 AND status = $3`,
		externalID, types.GetTenantID(ctx), types.StatusPublished,
	)
	if err != nil {
		return nil, wrapErr(err, "customer", map[string]any{"external_id": externalID})
	}
	return &c, nil
}

func (r *customerRepository) Update(ctx context.Context, c *customer.Customer) error {
	c.UpdatedAt = time.Now().UTC()
	c.UpdatedBy = types.GetUserID(ctx)

	query := `
		UPDATE customers SET
			name = :name,
			email = :email,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`

	_, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, c)
	return wrapErr(err, "customer", map[string]any{"customer_id": c.ID})
}

func (r *customerRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, `
		UPDATE customers SET status = $1, updated_at = $2, updated_by = $3
		WHERE id = $4 AND tenant_id = $5`,
		types.StatusDeleted, time.Now().UTC(), types.GetUserID(ctx), id, types.GetTenantID(ctx),
	)
	return wrapErr(err, "customer", map[string]any{"customer_id": id})
}
