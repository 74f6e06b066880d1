package postgres

import (
	"context"
	"time"

	"github.com/flexprice/flexbill/internal/domain/connection"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/types"
)

type connectionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewConnectionRepository(db *postgres.DB, logger *logger.Logger) connection.Repository {
	return &connectionRepository{db: db, logger: logger}
}

func (r *connectionRepository) Upsert(ctx context.Context, conn *connection.Connection) error {
	query := `
		INSERT INTO connections (
			id, provider, secret_key, public_key, merchant_id, api_base_url, webhook_secret,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :provider, :secret_key, :public_key, :merchant_id, :api_base_url, :webhook_secret,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)
		ON CONFLICT (tenant_id, provider) DO UPDATE SET
			secret_key = EXCLUDED.secret_key,
			public_key = EXCLUDED.public_key,
			merchant_id = EXCLUDED.merchant_id,
			api_base_url = EXCLUDED.api_base_url,
			webhook_secret = EXCLUDED.webhook_secret,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by`

	_, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, conn)
	return wrapErr(err, "connection", map[string]any{"provider": conn.Provider})
}

func (r *connectionRepository) GetByProvider(ctx context.Context, provider types.PaymentProvider) (*connection.Connection, error) {
	var conn connection.Connection
	err := r.db.GetQuerier(ctx).GetContext(ctx, &conn, `
		SELECT * FROM connections
		WHERE tenant_id = $1 AND provider = $2 AND status = $3`,
		types.GetTenantID(ctx), provider, types.StatusPublished,
	)
	if err != nil {
		return nil, wrapErr(err, "connection", map[string]any{"provider": provider})
	}
	return &conn, nil
}

func (r *connectionRepository) Delete(ctx context.Context, provider types.PaymentProvider) error {
	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, `
		UPDATE connections SET status = $1, updated_at = $2, updated_by = $3
		WHERE tenant_id = $4 AND provider = $5`,
		types.StatusDeleted, time.Now().UTC(), types.GetUserID(ctx), types.GetTenantID(ctx), provider,
	)
	return wrapErr(err, "connection", map[string]any{"provider": provider})
}
