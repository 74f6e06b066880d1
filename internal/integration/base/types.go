package base

import (
	"context"
	"net/http"
	"time"

	"github.com/flexprice/flexbill/internal/types"
)

// Adapter translates between the canonical payment vocabulary and one provider's wire format.
// Adapters hold no state beyond their credentials.
type Adapter interface {
	// InitiatePayment starts a collection and returns where the customer completes it
	InitiatePayment(ctx context.Context, req *InitiateRequest) (*InitiateResult, error)

	// GetPaymentStatus asks the provider for the current state of a transaction
	GetPaymentStatus(ctx context.Context, transactionID string) (*StatusResult, error)

	// VerifyWebhook checks the authenticity of an inbound callback.
	// Failures are marked ierr.ErrInvalidSignature.
	VerifyWebhook(ctx context.Context, req *InboundRequest) error

	// ParseWebhook decodes a verified callback into a canonical event
	ParseWebhook(ctx context.Context, req *InboundRequest) (*WebhookEvent, error)

	// TestConnection makes a cheap authenticated call to validate the credentials
	TestConnection(ctx context.Context) error

	GetSupportedMethods() []types.PaymentMethod

	// RefundPayment refunds a settled transaction, ierr.ErrNotSupported when the provider can't
	RefundPayment(ctx context.Context, req *RefundRequest) (*RefundResult, error)
}

// Credentials is the decrypted credential bundle of a connection
type Credentials struct {
	SecretKey     string
	PublicKey     string
	MerchantID    string
	APIBaseURL    string
	WebhookSecret string
}

// InitiateRequest describes a collection for an invoice. Amount is in minor units.
type InitiateRequest struct {
	// Reference is the merchant reference the provider echoes back on callbacks
	Reference     string
	Amount        int64
	Currency      string
	Description   string
	CustomerName  string
	CustomerEmail string
	Method        types.PaymentMethod
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

type InitiateResult struct {
	Success       bool
	TransactionID string
	Status        types.PaymentStatus
	PaymentURL    string
	Error         string
}

type StatusResult struct {
	TransactionID string
	Reference     string
	Status        types.PaymentStatus
	Amount        int64
	Currency      string
	PaidAt        *time.Time
	FailureReason string
}

// InboundRequest is a raw provider callback. Only the adapter registered for
// Provider interprets Body.
type InboundRequest struct {
	Provider types.PaymentProvider
	Body     []byte
	Headers  http.Header
}

// WebhookEvent is the canonical form of a provider callback
type WebhookEvent struct {
	// EventID is the provider's event identifier, empty when the provider has none
	EventID       string
	EventType     string
	TransactionID string
	Reference     string

	// Status is empty for callbacks that carry no payment outcome
	Status        types.PaymentStatus
	Amount        int64
	Currency      string
	OccurredAt    time.Time
	FailureReason string
}

// IsActionable reports whether the event reports a payment outcome
func (e *WebhookEvent) IsActionable() bool {
	return e.Status != ""
}

type RefundRequest struct {
	TransactionID string
	Reference     string
	Amount        int64
	Currency      string
	Reason        string
}

type RefundResult struct {
	RefundID string
	Status   types.PaymentStatus
	Amount   int64
}
