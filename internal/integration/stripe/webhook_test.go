package stripe

import (
	"context"
	"net/http"
	"testing"
	"time"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func newTestAdapter() *Adapter {
	return NewAdapter(base.Credentials{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
	}, logger.NewNoopLogger())
}

func signedRequest(t *testing.T, payload string, secret string) *base.InboundRequest {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	headers := http.Header{}
	headers.Set(SignatureHeader, signed.Header)
	return &base.InboundRequest{
		Provider: types.PaymentProviderStripe,
		Body:     signed.Payload,
		Headers:  headers,
	}
}

const sessionCompleted = `{
	"id": "evt_1",
	"object": "event",
	"type": "checkout.session.completed",
	"created": 1735689600,
	"data": {
		"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"client_reference_id": "REF_abc",
			"amount_total": 1000,
			"currency": "usd",
			"status": "complete",
			"payment_status": "paid"
		}
	}
}`

func TestVerifyWebhook(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	t.Run("valid signature", func(t *testing.T) {
		require.NoError(t, a.VerifyWebhook(ctx, signedRequest(t, sessionCompleted, testWebhookSecret)))
	})

	t.Run("wrong secret", func(t *testing.T) {
		err := a.VerifyWebhook(ctx, signedRequest(t, sessionCompleted, "whsec_other"))
		require.Error(t, err)
		assert.True(t, ierr.IsInvalidSignature(err))
	})

	t.Run("missing header", func(t *testing.T) {
		req := signedRequest(t, sessionCompleted, testWebhookSecret)
		req.Headers.Del(SignatureHeader)
		assert.True(t, ierr.IsInvalidSignature(a.VerifyWebhook(ctx, req)))
	})
}

func TestParseWebhook(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	t.Run("completed session", func(t *testing.T) {
		event, err := a.ParseWebhook(ctx, signedRequest(t, sessionCompleted, testWebhookSecret))
		require.NoError(t, err)
		assert.Equal(t, "evt_1", event.EventID)
		assert.Equal(t, "cs_test_1", event.TransactionID)
		assert.Equal(t, "REF_abc", event.Reference)
		assert.Equal(t, types.PaymentStatusSuccess, event.Status)
		assert.Equal(t, int64(1000), event.Amount)
		assert.Equal(t, "USD", event.Currency)
		assert.Equal(t, time.Unix(1735689600, 0).UTC(), event.OccurredAt)
	})

	t.Run("failed payment intent", func(t *testing.T) {
		payload := `{
			"id": "evt_2",
			"object": "event",
			"type": "payment_intent.payment_failed",
			"created": 1735689600,
			"data": {
				"object": {
					"id": "pi_1",
					"object": "payment_intent",
					"amount": 1000,
					"currency": "usd",
					"status": "requires_payment_method",
					"metadata": {"flexbill_reference": "REF_abc"},
					"last_payment_error": {"message": "card declined"}
				}
			}
		}`
		event, err := a.ParseWebhook(ctx, signedRequest(t, payload, testWebhookSecret))
		require.NoError(t, err)
		assert.Equal(t, "REF_abc", event.Reference)
		assert.Empty(t, event.TransactionID)
		assert.Equal(t, types.PaymentStatusFailed, event.Status)
		assert.Equal(t, "card declined", event.FailureReason)
	})

	t.Run("event without outcome", func(t *testing.T) {
		payload := `{"id": "evt_3", "object": "event", "type": "customer.created", "created": 1735689600,
			"data": {"object": {"id": "cus_1", "object": "customer"}}}`
		event, err := a.ParseWebhook(ctx, signedRequest(t, payload, testWebhookSecret))
		require.NoError(t, err)
		assert.False(t, event.IsActionable())
	})
}
