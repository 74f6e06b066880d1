package types

import (
	"time"
)

const (
	DefaultFilterLimit = 50
	MaxFilterLimit     = 500
)

// QueryFilter is the pagination shared by list endpoints and sweeps
type QueryFilter struct {
	Limit  int `form:"limit" json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
	Offset int `form:"offset" json:"offset,omitempty" validate:"omitempty,min=0"`
}

func (f QueryFilter) GetLimit() int {
	if f.Limit <= 0 {
		return DefaultFilterLimit
	}
	if f.Limit > MaxFilterLimit {
		return MaxFilterLimit
	}
	return f.Limit
}

// SubscriptionFilter selects subscriptions for sweeps and listings
type SubscriptionFilter struct {
	QueryFilter
	CustomerID        string               `form:"customer_id"`
	PlanID            string               `form:"plan_id"`
	Statuses          []SubscriptionStatus `form:"status"`
	PeriodEndBefore   *time.Time           `form:"-"`
	TrialEndsBefore   *time.Time           `form:"-"`
	CancelAtPeriodEnd *bool                `form:"-"`
	UpdatedBefore     *time.Time           `form:"-"`
}

// InvoiceFilter selects invoices for sweeps and listings
type InvoiceFilter struct {
	QueryFilter
	SubscriptionID string          `form:"subscription_id"`
	Statuses       []InvoiceStatus `form:"status"`
	DueBefore      *time.Time      `form:"-"`
}

// PaymentFilter selects payment transactions
type PaymentFilter struct {
	QueryFilter
	InvoiceID      string          `form:"invoice_id"`
	SubscriptionID string          `form:"subscription_id"`
	Statuses       []PaymentStatus `form:"status"`
	CreatedBefore  *time.Time      `form:"-"`
}

// WebhookDeliveryFilter selects outgoing deliveries
type WebhookDeliveryFilter struct {
	QueryFilter
	Statuses  []WebhookDeliveryStatus `form:"status"`
	EventName string                  `form:"event"`
	DueBefore *time.Time              `form:"-"`
}

// UsageFilter bounds a usage aggregation to a metric and a half-open time window
type UsageFilter struct {
	SubscriptionID string
	Metric         string
	From           time.Time
	To             time.Time
}
