package postgres

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookDeliveryClaimSetsLease(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWebhookDeliveryRepository(db, logger.NewNoopLogger())
	at := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	lease := at.Add(70 * time.Second)

	mock.ExpectExec(`UPDATE webhook_deliveries SET attempts = attempts \+ 1, last_attempt_at = \$1, next_retry_at = \$2`).
		WithArgs(at, lease, "whd_1", testTenant, string(types.WebhookDeliveryStatusPending), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.ClaimAttempt(tenantContext(), "whd_1", 2, at, lease)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookDeliveryClaimLostRace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWebhookDeliveryRepository(db, logger.NewNoopLogger())
	at := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE webhook_deliveries SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.ClaimAttempt(tenantContext(), "whd_1", 2, at, at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
