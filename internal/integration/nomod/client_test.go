package nomod

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/httpclient"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(baseURL string) *Adapter {
	return NewAdapter(base.Credentials{
		SecretKey:     "sk_nomod",
		WebhookSecret: "hook_key",
		APIBaseURL:    baseURL,
	}, httpclient.NewDefaultClient(httpclient.ClientConfig{}), logger.NewNoopLogger())
}

func TestInitiatePayment(t *testing.T) {
	var received CreatePaymentLinkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/links", r.URL.Path)
		assert.Equal(t, "sk_nomod", r.Header.Get(APIKeyHeader))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		_, _ = w.Write([]byte(`{"id":"lnk_1","url":"https://nomod.com/l/abc","status":"enabled","amount":"125.500","currency":"KWD"}`))
	}))
	defer srv.Close()

	res, err := newTestAdapter(srv.URL).InitiatePayment(context.Background(), &base.InitiateRequest{
		Reference:   "REF_1",
		Amount:      125500,
		Currency:    "kwd",
		Description: "Pro plan",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "lnk_1", res.TransactionID)
	assert.Equal(t, "https://nomod.com/l/abc", res.PaymentURL)

	require.Len(t, received.Items, 1)
	assert.Equal(t, "125.500", received.Items[0].Amount)
	assert.Equal(t, "KWD", received.Currency)
	require.NotNil(t, received.Note)
	assert.Equal(t, "REF_1", *received.Note)
}

func TestVerifyWebhook(t *testing.T) {
	a := newTestAdapter("")
	ctx := context.Background()

	headers := http.Header{}
	headers.Set(APIKeyHeader, "hook_key")
	require.NoError(t, a.VerifyWebhook(ctx, &base.InboundRequest{Headers: headers}))

	headers.Set(APIKeyHeader, "wrong")
	assert.True(t, ierr.IsInvalidSignature(a.VerifyWebhook(ctx, &base.InboundRequest{Headers: headers})))

	assert.True(t, ierr.IsInvalidSignature(a.VerifyWebhook(ctx, &base.InboundRequest{Headers: http.Header{}})))
}

func TestParseWebhookRequeriesCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/charges/ch_1", r.URL.Path)
		assert.Equal(t, "sk_nomod", r.Header.Get(APIKeyHeader))
		_, _ = w.Write([]byte(`{
			"id": "ch_1", "status": "paid", "total": "10.00", "currency": "usd", "note": "REF_1",
			"created": "2025-01-01T00:00:00Z", "link": {"id": "lnk_1", "status": "paid"}
		}`))
	}))
	defer srv.Close()

	// the body claims a different amount, the charge wins
	body := []byte(`{"id": "ch_1", "payment_link_id": "lnk_other", "total": "1.00"}`)
	event, err := newTestAdapter(srv.URL).ParseWebhook(context.Background(), &base.InboundRequest{
		Provider: types.PaymentProviderNomod,
		Body:     body,
		Headers:  http.Header{},
	})
	require.NoError(t, err)
	assert.Equal(t, "ch_1:paid", event.EventID)
	assert.Equal(t, "lnk_1", event.TransactionID)
	assert.Equal(t, "REF_1", event.Reference)
	assert.Equal(t, types.PaymentStatusSuccess, event.Status)
	assert.Equal(t, int64(1000), event.Amount)
	assert.Equal(t, "USD", event.Currency)
	assert.Equal(t, int64(1735689600), event.OccurredAt.Unix())
}

func TestParseWebhookKeysEachChargeSeparately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v1/charges/")
		_, _ = w.Write([]byte(`{
			"id": "` + id + `", "status": "failed", "total": "10.00", "currency": "usd", "note": "REF_1",
			"link": {"id": "lnk_1", "status": "enabled"},
			"events": [{"message": "card declined"}]
		}`))
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	parse := func(chargeID string) *base.WebhookEvent {
		event, err := a.ParseWebhook(context.Background(), &base.InboundRequest{
			Provider: types.PaymentProviderNomod,
			Body:     []byte(`{"id": "` + chargeID + `"}`),
			Headers:  http.Header{},
		})
		require.NoError(t, err)
		return event
	}

	first, second := parse("ch_1"), parse("ch_2")
	assert.Equal(t, types.PaymentStatusFailed, first.Status)
	assert.Equal(t, "lnk_1", first.TransactionID)
	assert.Equal(t, "lnk_1", second.TransactionID)
	assert.NotEqual(t, first.EventID, second.EventID)
	assert.Equal(t, "card declined", first.FailureReason)
}

func TestParseWebhookChargeLookupFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestAdapter(srv.URL).ParseWebhook(context.Background(), &base.InboundRequest{
		Body:    []byte(`{"id": "ch_missing"}`),
		Headers: http.Header{},
	})
	require.Error(t, err)
	assert.True(t, ierr.IsHTTPClient(err))
}

func TestRefundNotSupported(t *testing.T) {
	_, err := newTestAdapter("").RefundPayment(context.Background(), &base.RefundRequest{TransactionID: "lnk_1"})
	assert.True(t, ierr.IsNotSupported(err))
}
