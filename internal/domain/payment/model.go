package payment

import (
	"time"

	"github.com/flexprice/flexbill/internal/types"
)

// Transaction is one attempt to collect money for an invoice, or a refund of one.
// Once Status is terminal the record is write-once.
type Transaction struct {
	ID   string                `db:"id" json:"id"`
	Kind types.TransactionKind `db:"kind" json:"kind"`

	// ParentID links a refund to the charge it refunds
	ParentID string `db:"parent_id" json:"parent_id,omitempty"`

	SubscriptionID string                `db:"subscription_id" json:"subscription_id"`
	InvoiceID      string                `db:"invoice_id" json:"invoice_id"`
	CustomerID     string                `db:"customer_id" json:"customer_id"`
	Provider       types.PaymentProvider `db:"provider" json:"provider"`

	Amount   int64  `db:"amount" json:"amount"`
	Currency string `db:"currency" json:"currency"`

	PaymentStatus types.PaymentStatus `db:"payment_status" json:"payment_status"`

	// ProviderTransactionID is the provider's identifier of the payment
	ProviderTransactionID string `db:"provider_transaction_id" json:"provider_transaction_id,omitempty"`
	// ProviderReference is the merchant reference sent to the provider
	ProviderReference string `db:"provider_reference" json:"provider_reference"`

	PaymentURL     string     `db:"payment_url" json:"payment_url,omitempty"`
	FailureReason  string     `db:"failure_reason" json:"failure_reason,omitempty"`
	IdempotencyKey string     `db:"idempotency_key" json:"-"`
	PaidAt         *time.Time `db:"paid_at" json:"paid_at,omitempty"`

	types.BaseModel
}

func (t *Transaction) IsTerminal() bool {
	return t.PaymentStatus.IsTerminal()
}
