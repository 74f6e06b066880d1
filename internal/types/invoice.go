package types

import (
	"fmt"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "draft"
	InvoiceStatusOpen   InvoiceStatus = "open"
	InvoiceStatusPaid   InvoiceStatus = "paid"
	InvoiceStatusFailed InvoiceStatus = "failed"
	InvoiceStatusVoid   InvoiceStatus = "void"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

// IsPayable reports whether a payment may still be collected against the invoice
func (s InvoiceStatus) IsPayable() bool {
	return s == InvoiceStatusOpen || s == InvoiceStatusFailed
}

type InvoiceLineItemType string

const (
	InvoiceLineItemTypePlan  InvoiceLineItemType = "plan"
	InvoiceLineItemTypeUsage InvoiceLineItemType = "usage"
)

const (
	MinGracePeriodDays     = 0
	MaxGracePeriodDays     = 30
	DefaultGracePeriodDays = 3
)

// FormatInvoiceNumber renders the per-app yearly sequence, e.g. INV-2025-001
func FormatInvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%03d", year, seq)
}
