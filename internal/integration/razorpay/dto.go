package razorpay

import (
	"bytes"
	"encoding/json"
)

// RazorpayBaseURL is the production API endpoint
const RazorpayBaseURL = "https://api.razorpay.com"

// Header names used by Razorpay webhooks
const (
	SignatureHeader = "X-Razorpay-Signature"
	EventIDHeader   = "X-Razorpay-Event-Id"
)

// RazorpayEventType represents the type of Razorpay webhook event
type RazorpayEventType string

const (
	EventPaymentLinkPaid      RazorpayEventType = "payment_link.paid"
	EventPaymentLinkExpired   RazorpayEventType = "payment_link.expired"
	EventPaymentLinkCancelled RazorpayEventType = "payment_link.cancelled"
	EventPaymentCaptured      RazorpayEventType = "payment.captured"
	EventPaymentFailed        RazorpayEventType = "payment.failed"
	EventPaymentAuthorized    RazorpayEventType = "payment.authorized"
)

// CreatePaymentLinkRequest is the body of POST /v1/payment_links
type CreatePaymentLinkRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description,omitempty"`
	ReferenceID    string            `json:"reference_id"`
	Customer       *LinkCustomer     `json:"customer,omitempty"`
	CallbackURL    string            `json:"callback_url,omitempty"`
	CallbackMethod string            `json:"callback_method,omitempty"`
	Notes          map[string]string `json:"notes,omitempty"`
}

type LinkCustomer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// PaymentLink is the payment link entity
type PaymentLink struct {
	ID          string        `json:"id"`
	ShortURL    string        `json:"short_url"`
	Status      string        `json:"status"` // created, partially_paid, paid, expired, cancelled
	Amount      int64         `json:"amount"`
	AmountPaid  int64         `json:"amount_paid"`
	Currency    string        `json:"currency"`
	ReferenceID string        `json:"reference_id"`
	Notes       FlexibleNotes `json:"notes"`
	Payments    []LinkPayment `json:"payments"`
	CreatedAt   int64         `json:"created_at"`
	UpdatedAt   int64         `json:"updated_at"`
}

type LinkPayment struct {
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// Payment represents a Razorpay payment
type Payment struct {
	ID               string        `json:"id"`
	Amount           int64         `json:"amount"` // in paise
	Currency         string        `json:"currency"`
	Status           string        `json:"status"` // created, authorized, captured, refunded, failed
	Method           string        `json:"method"`
	ErrorCode        string        `json:"error_code"`
	ErrorDescription string        `json:"error_description"`
	Notes            FlexibleNotes `json:"notes"`
	CreatedAt        int64         `json:"created_at"`
}

type RefundRequest struct {
	Amount int64             `json:"amount"`
	Notes  map[string]string `json:"notes,omitempty"`
}

type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"` // pending, processed, failed
}

// RazorpayWebhookEvent represents a Razorpay webhook event
type RazorpayWebhookEvent struct {
	Entity    string                 `json:"entity"`
	AccountID string                 `json:"account_id"`
	Event     string                 `json:"event"`
	Contains  []string               `json:"contains"`
	Payload   RazorpayWebhookPayload `json:"payload"`
	CreatedAt int64                  `json:"created_at"`
}

type RazorpayWebhookPayload struct {
	Payment     *PayloadPayment     `json:"payment,omitempty"`
	PaymentLink *PayloadPaymentLink `json:"payment_link,omitempty"`
}

type PayloadPayment struct {
	Entity Payment `json:"entity"`
}

type PayloadPaymentLink struct {
	Entity PaymentLink `json:"entity"`
}

// FlexibleNotes accepts notes sent either as an object or as an empty array
type FlexibleNotes map[string]string

func (n *FlexibleNotes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] == '[' || bytes.Equal(trimmed, []byte("null")) {
		*n = FlexibleNotes{}
		return nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}

	notes := make(FlexibleNotes, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			notes[k] = s
		}
	}
	*n = notes
	return nil
}
