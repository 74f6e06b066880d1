package razorpay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/httpclient"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/security"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(baseURL string) *Adapter {
	return NewAdapter(base.Credentials{
		PublicKey:     "rzp_test_key",
		SecretKey:     "rzp_test_secret",
		WebhookSecret: "hook_secret",
		APIBaseURL:    baseURL,
	}, httpclient.NewDefaultClient(httpclient.ClientConfig{}), logger.NewNoopLogger())
}

func TestInitiatePayment(t *testing.T) {
	var received CreatePaymentLinkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_links", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"plink_1","short_url":"https://rzp.io/i/abc","status":"created"}`))
	}))
	defer srv.Close()

	res, err := newTestAdapter(srv.URL).InitiatePayment(context.Background(), &base.InitiateRequest{
		Reference: "REF_1",
		Amount:    49900,
		Currency:  "inr",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "plink_1", res.TransactionID)
	assert.Equal(t, "https://rzp.io/i/abc", res.PaymentURL)
	assert.Equal(t, types.PaymentStatusInitiated, res.Status)

	assert.Equal(t, int64(49900), received.Amount)
	assert.Equal(t, "INR", received.Currency)
	assert.Equal(t, "REF_1", received.ReferenceID)
	assert.Equal(t, "REF_1", received.Notes[notesReference])
}

func TestInitiatePaymentProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"description":"amount too small"}}`))
	}))
	defer srv.Close()

	res, err := newTestAdapter(srv.URL).InitiatePayment(context.Background(), &base.InitiateRequest{
		Reference: "REF_1",
		Amount:    1,
		Currency:  "INR",
	})
	require.Error(t, err)
	assert.True(t, ierr.IsHTTPClient(err))
	assert.False(t, res.Success)
	assert.Equal(t, types.PaymentStatusFailed, res.Status)
}

func TestGetPaymentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_links/plink_1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "plink_1", "status": "paid", "amount": 49900, "amount_paid": 49900,
			"currency": "INR", "reference_id": "REF_1",
			"payments": [{"payment_id": "pay_1", "amount": 49900, "status": "captured", "created_at": 1735689600}]
		}`))
	}))
	defer srv.Close()

	res, err := newTestAdapter(srv.URL).GetPaymentStatus(context.Background(), "plink_1")
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusSuccess, res.Status)
	assert.Equal(t, "REF_1", res.Reference)
	assert.Equal(t, int64(49900), res.Amount)
	require.NotNil(t, res.PaidAt)
	assert.Equal(t, int64(1735689600), res.PaidAt.Unix())
}

func TestWebhook(t *testing.T) {
	a := newTestAdapter("")
	ctx := context.Background()

	body := []byte(`{
		"entity": "event",
		"event": "payment_link.paid",
		"created_at": 1735689700,
		"payload": {
			"payment_link": {"entity": {"id": "plink_1", "status": "paid", "amount": 49900, "amount_paid": 49900, "currency": "INR", "reference_id": "REF_1", "notes": []}},
			"payment": {"entity": {"id": "pay_1", "amount": 49900, "currency": "INR", "status": "captured", "notes": {"flexbill_reference": "REF_1"}, "created_at": 1735689600}}
		}
	}`)

	headers := http.Header{}
	headers.Set(SignatureHeader, security.SignHMACSHA256("hook_secret", body))
	headers.Set(EventIDHeader, "evt_rzp_1")
	req := &base.InboundRequest{Provider: types.PaymentProviderRazorpay, Body: body, Headers: headers}

	require.NoError(t, a.VerifyWebhook(ctx, req))

	event, err := a.ParseWebhook(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "evt_rzp_1", event.EventID)
	assert.Equal(t, "plink_1", event.TransactionID)
	assert.Equal(t, "REF_1", event.Reference)
	assert.Equal(t, types.PaymentStatusSuccess, event.Status)
	assert.Equal(t, int64(49900), event.Amount)
	assert.Equal(t, int64(1735689600), event.OccurredAt.Unix())

	t.Run("tampered body", func(t *testing.T) {
		tampered := &base.InboundRequest{
			Provider: types.PaymentProviderRazorpay,
			Body:     append([]byte{}, body[:len(body)-1]...),
			Headers:  headers,
		}
		assert.True(t, ierr.IsInvalidSignature(a.VerifyWebhook(ctx, tampered)))
	})

	t.Run("failed payment", func(t *testing.T) {
		failed := []byte(`{"event": "payment.failed", "created_at": 1735689700,
			"payload": {"payment": {"entity": {"id": "pay_2", "amount": 49900, "currency": "INR", "status": "failed",
			"error_description": "Payment declined by bank", "notes": {"flexbill_reference": "REF_1"}}}}}`)
		event, err := a.ParseWebhook(ctx, &base.InboundRequest{Body: failed, Headers: http.Header{}})
		require.NoError(t, err)
		assert.Empty(t, event.EventID)
		assert.Equal(t, "REF_1", event.Reference)
		assert.Equal(t, types.PaymentStatusFailed, event.Status)
		assert.Equal(t, "Payment declined by bank", event.FailureReason)
	})
}
