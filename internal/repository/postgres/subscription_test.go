package postgres

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/flexprice/flexbill/internal/domain/invoice"
	"github.com/flexprice/flexbill/internal/domain/subscription"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionUpdateBumpsVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, logger.NewNoopLogger())
	ctx := tenantContext()

	mock.ExpectExec(`(?s)UPDATE subscriptions SET .* version = version \+ 1, .* WHERE id = \$\d+ AND tenant_id = \$\d+ AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sub := &subscription.Subscription{ID: "sub_1", Version: 3, BaseModel: types.GetDefaultBaseModel(ctx)}
	require.NoError(t, repo.Update(ctx, sub))
	assert.Equal(t, 4, sub.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionUpdateStaleVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, logger.NewNoopLogger())
	ctx := tenantContext()

	mock.ExpectExec(`(?s)UPDATE subscriptions SET .* AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	sub := &subscription.Subscription{ID: "sub_1", Version: 3, BaseModel: types.GetDefaultBaseModel(ctx)}
	err := repo.Update(ctx, sub)
	require.Error(t, err)
	assert.True(t, ierr.IsVersionConflict(err))
	assert.Equal(t, 3, sub.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceUpdateStaleVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInvoiceRepository(db, logger.NewNoopLogger())
	ctx := tenantContext()

	mock.ExpectExec(`(?s)UPDATE invoices SET .* AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inv := &invoice.Invoice{ID: "inv_1", Version: 1, BaseModel: types.GetDefaultBaseModel(ctx)}
	err := repo.Update(ctx, inv)
	require.Error(t, err)
	assert.True(t, ierr.IsVersionConflict(err))
	assert.Equal(t, 1, inv.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
