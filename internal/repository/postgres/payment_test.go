package postgres

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/flexprice/flexbill/internal/domain/payment"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func updatePaymentArgs(id string) []interface{} {
	return []interface{}{
		sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		sqlmock.AnyArg(), sqlmock.AnyArg(), types.DefaultUserID, id, testTenant,
		string(types.PaymentStatusSuccess), string(types.PaymentStatusCanceled), string(types.PaymentStatusRefunded),
	}
}

func TestPaymentUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, logger.NewNoopLogger())
	ctx := tenantContext()

	mock.ExpectExec(`(?s)UPDATE payment_transactions SET .* AND payment_status NOT IN \(\$10, \$11, \$12\)`).
		WithArgs(updatePaymentArgs("pay_1")...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(ctx, &payment.Transaction{
		ID:            "pay_1",
		PaymentStatus: types.PaymentStatusSuccess,
		BaseModel:     types.GetDefaultBaseModel(ctx),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentUpdateTerminalRowIsRejected(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db, logger.NewNoopLogger())
	ctx := tenantContext()

	// the row is already succeeded, so the guard matches nothing
	mock.ExpectExec(`(?s)UPDATE payment_transactions SET .* AND payment_status NOT IN`).
		WithArgs(updatePaymentArgs("pay_1")...).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(ctx, &payment.Transaction{
		ID:            "pay_1",
		PaymentStatus: types.PaymentStatusFailed,
		BaseModel:     types.GetDefaultBaseModel(ctx),
	})
	require.Error(t, err)
	assert.True(t, ierr.IsTerminalState(err))
	assert.False(t, ierr.IsVersionConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
