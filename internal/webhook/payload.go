package webhook

import (
	"encoding/json"
	"time"

	"github.com/flexprice/flexbill/internal/domain/customer"
	"github.com/flexprice/flexbill/internal/domain/invoice"
	"github.com/flexprice/flexbill/internal/domain/payment"
	"github.com/flexprice/flexbill/internal/domain/subscription"
	"github.com/flexprice/flexbill/internal/types"
)

// Payload is the exact JSON body POSTed to client endpoints
type Payload struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	AppID     string          `json:"app_id"`
}

// BuildPayload renders data under eventName, timestamped in unix milliseconds
func BuildPayload(eventName string, data interface{}, appID string, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Payload{
		Event:     eventName,
		Data:      raw,
		Timestamp: at.UnixMilli(),
		AppID:     appID,
	})
}

// SubscriptionEvent is the data of subscription.* events
type SubscriptionEvent struct {
	Subscription   *subscription.Subscription `json:"subscription"`
	PreviousStatus types.SubscriptionStatus   `json:"previous_status,omitempty"`
	// PlanChange is set on plan changes
	PlanChange *subscription.PlanChange `json:"plan_change,omitempty"`
}

// InvoiceEvent is the data of invoice.* and payment.due events
type InvoiceEvent struct {
	Invoice *invoice.Invoice `json:"invoice"`
}

// PaymentEvent is the data of payment.* events
type PaymentEvent struct {
	Transaction *payment.Transaction `json:"transaction"`
	InvoiceID   string               `json:"invoice_id,omitempty"`
	// FailedAttempts is the subscription's consecutive failure count
	FailedAttempts int `json:"failed_attempts,omitempty"`
}

// CustomerEvent is the data of customer.* events
type CustomerEvent struct {
	Customer *customer.Customer `json:"customer"`
}
