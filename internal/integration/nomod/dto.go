package nomod

// NomodBaseURL is the production API endpoint
const NomodBaseURL = "https://api.nomod.com"

// APIKeyHeader authenticates API calls and, with the webhook secret, inbound callbacks
const APIKeyHeader = "X-API-KEY"

// Charge statuses reported by GET /v1/charges/{id}
const (
	ChargeStatusPaid       = "paid"
	ChargeStatusPending    = "pending"
	ChargeStatusAuthorised = "authorised"
	ChargeStatusFailed     = "failed"
	ChargeStatusDeclined   = "declined"
	ChargeStatusCancelled  = "cancelled"
	ChargeStatusVoided     = "voided"
)

// LineItem represents a line item in a payment link
type LineItem struct {
	Name     string `json:"name"`
	Amount   string `json:"amount"` // decimal string in major units
	Quantity int    `json:"quantity"`
}

// CreatePaymentLinkRequest is the body of POST /v1/links
type CreatePaymentLinkRequest struct {
	Currency           string     `json:"currency"`
	Items              []LineItem `json:"items"`
	Title              *string    `json:"title,omitempty"` // <= 50 chars
	Note               *string    `json:"note,omitempty"`  // <= 280 chars
	SuccessURL         *string    `json:"success_url,omitempty"`
	FailureURL         *string    `json:"failure_url,omitempty"`
	PaymentExpiryLimit *int       `json:"payment_expiry_limit,omitempty"`
}

// PaymentLinkResponse represents a Nomod payment link
type PaymentLinkResponse struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Note        string `json:"note"`
}

// ChargeResponse is the authoritative record of a payment attempt
type ChargeResponse struct {
	ID            string         `json:"id"`
	Created       string         `json:"created"`
	Currency      string         `json:"currency"`
	Status        string         `json:"status"`
	Total         string         `json:"total"`
	RefundTotal   string         `json:"refund_total"`
	Note          string         `json:"note"`
	PaymentMethod string         `json:"payment_method"`
	Events        []ChargeEvent  `json:"events"`
	Link          *ChargeLink    `json:"link,omitempty"`
	CustomerInfo  ChargeCustomer `json:"customer_info"`
}

// ChargeEvent represents an event in the charge history
type ChargeEvent struct {
	Created string `json:"created"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ChargeLink identifies the payment link a charge was made through
type ChargeLink struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
}

type ChargeCustomer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// WebhookPayload is the body Nomod posts on charge updates. It only names the
// charge; everything else is re-read from the API.
type WebhookPayload struct {
	ID            string  `json:"id"`
	InvoiceID     *string `json:"invoice_id,omitempty"`
	PaymentLinkID *string `json:"payment_link_id,omitempty"`
}
