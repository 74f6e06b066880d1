package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/flexprice/flexbill/internal/domain/customer"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenant = "app_test"

func newMockDB(t *testing.T) (*postgres.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return postgres.NewFromSQLX(sqlx.NewDb(conn, "postgres"), logger.NewNoopLogger()), mock
}

func tenantContext() context.Context {
	ctx := types.SetTenantID(context.Background(), testTenant)
	return types.SetUserID(ctx, types.DefaultUserID)
}

var customerColumns = []string{
	"id", "external_id", "name", "email",
	"tenant_id", "status", "created_at", "updated_at", "created_by", "updated_by",
}

func TestCustomerGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCustomerRepository(db, logger.NewNoopLogger())
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM customers`).
		WithArgs("cus_1", testTenant, string(types.StatusPublished)).
		WillReturnRows(sqlmock.NewRows(customerColumns).AddRow(
			"cus_1", "acme", "Acme", "billing@acme.test",
			testTenant, "published", now, now, types.DefaultUserID, types.DefaultUserID,
		))

	c, err := repo.Get(tenantContext(), "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "acme", c.ExternalID)
	assert.Equal(t, testTenant, c.TenantID)
	assert.Equal(t, types.StatusPublished, c.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCustomerRepository(db, logger.NewNoopLogger())

	mock.ExpectQuery(`SELECT \* FROM customers`).
		WithArgs("cus_missing", testTenant, string(types.StatusPublished)).
		WillReturnRows(sqlmock.NewRows(customerColumns))

	_, err := repo.Get(tenantContext(), "cus_missing")
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
}

func TestCustomerCreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCustomerRepository(db, logger.NewNoopLogger())
	ctx := tenantContext()

	mock.ExpectExec(`INSERT INTO customers`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "customers_tenant_external_id_key"})

	err := repo.Create(ctx, &customer.Customer{
		ID:         "cus_2",
		ExternalID: "acme",
		BaseModel:  types.GetDefaultBaseModel(ctx),
	})
	require.Error(t, err)
	assert.True(t, ierr.IsAlreadyExists(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerDeleteIsSoft(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCustomerRepository(db, logger.NewNoopLogger())

	mock.ExpectExec(`UPDATE customers SET status = \$1`).
		WithArgs(string(types.StatusDeleted), sqlmock.AnyArg(), types.DefaultUserID, "cus_1", testTenant).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(tenantContext(), "cus_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceSequenceNext(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInvoiceSequenceRepository(db, logger.NewNoopLogger())

	mock.ExpectQuery(`INSERT INTO invoice_sequences`).
		WithArgs(testTenant, 2024).
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(int64(7)))

	next, err := repo.Next(tenantContext(), 2024)
	require.NoError(t, err)
	assert.Equal(t, int64(7), next)
	assert.NoError(t, mock.ExpectationsWereMet())
}
