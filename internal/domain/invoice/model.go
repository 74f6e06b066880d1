package invoice

import (
	"time"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

// Invoice is the bill for one subscription period. Line items and amountDue
// are fixed at creation; only payment reconciliation changes an invoice.
type Invoice struct {
	ID             string `db:"id" json:"id"`
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`
	CustomerID     string `db:"customer_id" json:"customer_id"`
	InvoiceNumber  string `db:"invoice_number" json:"invoice_number"`

	// IdempotencyKey identifies the (subscription, period) the invoice was generated for
	IdempotencyKey string `db:"idempotency_key" json:"-"`

	PeriodStart time.Time `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time `db:"period_end" json:"period_end"`
	DueDate     time.Time `db:"due_date" json:"due_date"`

	Currency   string `db:"currency" json:"currency"`
	AmountDue  int64  `db:"amount_due" json:"amount_due"`
	AmountPaid int64  `db:"amount_paid" json:"amount_paid"`

	InvoiceStatus types.InvoiceStatus `db:"invoice_status" json:"invoice_status"`
	PaidAt        *time.Time          `db:"paid_at" json:"paid_at,omitempty"`

	LineItems []*LineItem `db:"-" json:"line_items"`

	Version int `db:"version" json:"version"`

	types.BaseModel
}

type LineItem struct {
	ID          string                    `db:"id" json:"id"`
	InvoiceID   string                    `db:"invoice_id" json:"invoice_id"`
	Description string                    `db:"description" json:"description"`
	Quantity    int64                     `db:"quantity" json:"quantity"`
	UnitAmount  int64                     `db:"unit_amount" json:"unit_amount"`
	TotalAmount int64                     `db:"total_amount" json:"total_amount"`
	LineType    types.InvoiceLineItemType `db:"line_type" json:"line_type"`

	types.BaseModel
}

// Total sums the line item totals
func (inv *Invoice) Total() int64 {
	return lo.SumBy(inv.LineItems, func(li *LineItem) int64 { return li.TotalAmount })
}

func (inv *Invoice) IsPaid() bool {
	return inv.InvoiceStatus == types.InvoiceStatusPaid
}

// Validate checks the invariants of a freshly generated invoice
func (inv *Invoice) Validate() error {
	if inv.AmountDue != inv.Total() {
		return ierr.NewError("invoice amount does not match its line items").
			WithReportableDetails(map[string]any{
				"amount_due": inv.AmountDue,
				"total":      inv.Total(),
			}).
			Mark(ierr.ErrValidation)
	}
	if !inv.PeriodEnd.After(inv.PeriodStart) {
		return ierr.NewError("invalid invoice period").
			WithReportableDetails(map[string]any{
				"period_start": inv.PeriodStart,
				"period_end":   inv.PeriodEnd,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// MarkPaid records a payment of amount at paidAt. It reports false when the
// invoice was already paid, in which case nothing changes.
func (inv *Invoice) MarkPaid(amount int64, paidAt time.Time) bool {
	if inv.IsPaid() {
		return false
	}
	inv.AmountPaid = amount
	inv.InvoiceStatus = types.InvoiceStatusPaid
	inv.PaidAt = &paidAt
	return true
}

// MarkFailed records a failed collection attempt on an unpaid invoice
func (inv *Invoice) MarkFailed() bool {
	if inv.IsPaid() || inv.InvoiceStatus == types.InvoiceStatusVoid {
		return false
	}
	inv.InvoiceStatus = types.InvoiceStatusFailed
	return true
}

// Void cancels an unpaid invoice
func (inv *Invoice) Void() bool {
	if !inv.InvoiceStatus.IsPayable() && inv.InvoiceStatus != types.InvoiceStatusDraft {
		return false
	}
	inv.InvoiceStatus = types.InvoiceStatusVoid
	return true
}
