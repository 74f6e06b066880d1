package postgres

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/flexprice/flexbill/internal/domain/webhooklog"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebhookLog() *webhooklog.WebhookLog {
	ctx := tenantContext()
	return &webhooklog.WebhookLog{
		ID:            "whl_1",
		Provider:      types.PaymentProviderStripe,
		DedupKey:      "evt_1",
		EventType:     "checkout.session.completed",
		Payload:       "{}",
		WebhookStatus: types.WebhookLogStatusProcessing,
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
}

func TestWebhookLogClaim(t *testing.T) {
	tests := []struct {
		name        string
		rows        int64
		wantClaimed bool
	}{
		{name: "first callback claims the key", rows: 1, wantClaimed: true},
		{name: "live duplicate inserts nothing", rows: 0, wantClaimed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewWebhookLogRepository(db, logger.NewNoopLogger())

			mock.ExpectExec(`(?s)INSERT INTO webhook_logs .* ON CONFLICT \(tenant_id, provider, dedup_key\) WHERE webhook_status NOT IN \('ignored', 'failed'\) DO NOTHING`).
				WillReturnResult(sqlmock.NewResult(0, tt.rows))

			claimed, err := repo.Claim(tenantContext(), newWebhookLog())
			require.NoError(t, err)
			assert.Equal(t, tt.wantClaimed, claimed)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
