package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/types"
)

// FakeSignatureHeader carries the signature FakeAdapter accepts
const FakeSignatureHeader = "X-Fake-Signature"

// FakeValidSignature is the only signature FakeAdapter accepts
const FakeValidSignature = "valid"

var _ base.Adapter = (*FakeAdapter)(nil)

// FakeAdapter is a scripted payment provider. Callbacks are JSON encoded
// base.WebhookEvent bodies signed with FakeValidSignature.
type FakeAdapter struct {
	mu sync.Mutex

	// InitiateErr fails InitiatePayment, InitiateResult overrides the default success
	InitiateErr    error
	InitiateResult *base.InitiateResult
	// Statuses answers GetPaymentStatus by provider transaction id
	Statuses     map[string]*base.StatusResult
	RefundErr    error
	RefundResult *base.RefundResult
	TestErr      error

	Initiated []*base.InitiateRequest
	Refunded  []*base.RefundRequest
}

func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{Statuses: make(map[string]*base.StatusResult)}
}

func (f *FakeAdapter) InitiatePayment(ctx context.Context, req *base.InitiateRequest) (*base.InitiateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Initiated = append(f.Initiated, req)
	if f.InitiateErr != nil {
		return nil, f.InitiateErr
	}
	if f.InitiateResult != nil {
		return f.InitiateResult, nil
	}
	txnID := fmt.Sprintf("fake_txn_%d", len(f.Initiated))
	return &base.InitiateResult{
		Success:       true,
		TransactionID: txnID,
		Status:        types.PaymentStatusInitiated,
		PaymentURL:    "https://pay.example.com/" + txnID,
	}, nil
}

func (f *FakeAdapter) GetPaymentStatus(ctx context.Context, transactionID string) (*base.StatusResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status, ok := f.Statuses[transactionID]
	if !ok {
		return &base.StatusResult{TransactionID: transactionID, Status: types.PaymentStatusProcessing}, nil
	}
	return status, nil
}

func (f *FakeAdapter) VerifyWebhook(ctx context.Context, req *base.InboundRequest) error {
	if req.Headers.Get(FakeSignatureHeader) != FakeValidSignature {
		return ierr.NewError("invalid signature").
			WithHint("Webhook signature verification failed").
			Mark(ierr.ErrInvalidSignature)
	}
	return nil
}

func (f *FakeAdapter) ParseWebhook(ctx context.Context, req *base.InboundRequest) (*base.WebhookEvent, error) {
	var event base.WebhookEvent
	if err := json.Unmarshal(req.Body, &event); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid webhook payload").
			Mark(ierr.ErrValidation)
	}
	return &event, nil
}

func (f *FakeAdapter) TestConnection(ctx context.Context) error {
	return f.TestErr
}

func (f *FakeAdapter) GetSupportedMethods() []types.PaymentMethod {
	return []types.PaymentMethod{types.PaymentMethodCard}
}

func (f *FakeAdapter) RefundPayment(ctx context.Context, req *base.RefundRequest) (*base.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Refunded = append(f.Refunded, req)
	if f.RefundErr != nil {
		return nil, f.RefundErr
	}
	if f.RefundResult != nil {
		return f.RefundResult, nil
	}
	return &base.RefundResult{
		RefundID: fmt.Sprintf("fake_refund_%d", len(f.Refunded)),
		Status:   types.PaymentStatusRefunded,
		Amount:   req.Amount,
	}, nil
}

// FakeWebhookRequest builds a signed callback for FakeAdapter
func FakeWebhookRequest(provider types.PaymentProvider, event base.WebhookEvent) *base.InboundRequest {
	body, _ := json.Marshal(event)
	headers := http.Header{}
	headers.Set(FakeSignatureHeader, FakeValidSignature)
	return &base.InboundRequest{Provider: provider, Body: body, Headers: headers}
}
