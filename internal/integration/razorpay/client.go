package razorpay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/httpclient"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/security"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

// notesReference carries the merchant reference on links and the payments made through them
const notesReference = "flexbill_reference"

// RazorpayConfig holds decrypted Razorpay configuration
type RazorpayConfig struct {
	KeyID         string
	SecretKey     string
	WebhookSecret string
	BaseURL       string
}

// Adapter implements base.Adapter on top of Razorpay payment links
type Adapter struct {
	config     *RazorpayConfig
	httpClient httpclient.Client
	logger     *logger.Logger
}

var _ base.Adapter = (*Adapter)(nil)

// NewAdapter creates a Razorpay adapter. PublicKey holds the key id.
func NewAdapter(creds base.Credentials, httpClient httpclient.Client, logger *logger.Logger) *Adapter {
	return &Adapter{
		config: &RazorpayConfig{
			KeyID:         creds.PublicKey,
			SecretKey:     creds.SecretKey,
			WebhookSecret: creds.WebhookSecret,
			BaseURL:       lo.Ternary(creds.APIBaseURL != "", strings.TrimRight(creds.APIBaseURL, "/"), RazorpayBaseURL),
		},
		httpClient: httpClient,
		logger:     logger,
	}
}

// makeRequest makes an authenticated request to the Razorpay API
func (a *Adapter) makeRequest(ctx context.Context, method, endpoint string, body interface{}, response interface{}) error {
	if a.config.KeyID == "" || a.config.SecretKey == "" {
		return ierr.NewError("missing Razorpay credentials").
			WithHint("Configure the Razorpay key id and secret in the connection settings").
			Mark(ierr.ErrValidation)
	}

	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Invalid request data").
				Mark(ierr.ErrSystem)
		}
	}

	auth := base64.StdEncoding.EncodeToString([]byte(a.config.KeyID + ":" + a.config.SecretKey))
	resp, err := a.httpClient.Send(ctx, &httpclient.Request{
		Method: method,
		URL:    a.config.BaseURL + endpoint,
		Headers: map[string]string{
			"Authorization": "Basic " + auth,
			"Accept":        "application/json",
		},
		Body: jsonBody,
	})
	if err != nil {
		details := map[string]any{
			"method":   method,
			"endpoint": endpoint,
		}
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			details["status_code"] = httpErr.StatusCode
			details["response_body"] = string(httpErr.Response)
		}
		a.logger.Errorw("razorpay API request failed",
			"error", err,
			"method", method,
			"endpoint", endpoint)
		return ierr.WithError(err).
			WithHint("Unable to reach Razorpay").
			WithReportableDetails(details).
			Mark(ierr.ErrHTTPClient)
	}

	if response != nil {
		if err := json.Unmarshal(resp.Body, response); err != nil {
			return ierr.WithError(err).
				WithHint("Invalid response from Razorpay").
				Mark(ierr.ErrHTTPClient)
		}
	}
	return nil
}

// InitiatePayment creates a payment link carrying the merchant reference
func (a *Adapter) InitiatePayment(ctx context.Context, req *base.InitiateRequest) (*base.InitiateResult, error) {
	notes := map[string]string{notesReference: req.Reference}
	for k, v := range req.Metadata {
		notes[k] = v
	}

	linkReq := CreatePaymentLinkRequest{
		Amount:         req.Amount,
		Currency:       strings.ToUpper(req.Currency),
		Description:    req.Description,
		ReferenceID:    req.Reference,
		CallbackURL:    req.SuccessURL,
		CallbackMethod: lo.Ternary(req.SuccessURL != "", "get", ""),
		Notes:          notes,
	}
	if req.CustomerEmail != "" || req.CustomerName != "" {
		linkReq.Customer = &LinkCustomer{Name: req.CustomerName, Email: req.CustomerEmail}
	}

	var link PaymentLink
	if err := a.makeRequest(ctx, http.MethodPost, "/v1/payment_links", linkReq, &link); err != nil {
		return &base.InitiateResult{
			Success: false,
			Status:  types.PaymentStatusFailed,
			Error:   err.Error(),
		}, err
	}

	a.logger.Infow("created Razorpay payment link",
		"payment_link_id", link.ID,
		"reference", req.Reference,
		"amount", req.Amount)

	return &base.InitiateResult{
		Success:       true,
		TransactionID: link.ID,
		Status:        types.PaymentStatusInitiated,
		PaymentURL:    link.ShortURL,
	}, nil
}

// GetPaymentStatus fetches the payment link and its payments
func (a *Adapter) GetPaymentStatus(ctx context.Context, transactionID string) (*base.StatusResult, error) {
	var link PaymentLink
	if err := a.makeRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/payment_links/%s", transactionID), nil, &link); err != nil {
		return nil, err
	}

	result := &base.StatusResult{
		TransactionID: link.ID,
		Reference:     link.ReferenceID,
		Status:        linkStatus(link.Status),
		Amount:        lo.Ternary(link.AmountPaid > 0, link.AmountPaid, link.Amount),
		Currency:      strings.ToUpper(link.Currency),
	}
	if paid, ok := lo.Find(link.Payments, func(p LinkPayment) bool { return p.Status == "captured" }); ok && result.Status == types.PaymentStatusSuccess {
		paidAt := time.Unix(paid.CreatedAt, 0).UTC()
		result.PaidAt = &paidAt
	}
	return result, nil
}

// RefundPayment refunds the captured payment made through the link
func (a *Adapter) RefundPayment(ctx context.Context, req *base.RefundRequest) (*base.RefundResult, error) {
	var link PaymentLink
	if err := a.makeRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/payment_links/%s", req.TransactionID), nil, &link); err != nil {
		return nil, err
	}

	paid, ok := lo.Find(link.Payments, func(p LinkPayment) bool { return p.Status == "captured" })
	if !ok {
		return nil, ierr.NewError("payment link has no captured payment").
			WithHint("Only captured Razorpay payments can be refunded").
			WithReportableDetails(map[string]any{"payment_link_id": req.TransactionID}).
			Mark(ierr.ErrInvalidOperation)
	}

	var refund Refund
	refundReq := RefundRequest{
		Amount: req.Amount,
		Notes:  map[string]string{notesReference: req.Reference},
	}
	if err := a.makeRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/payments/%s/refund", paid.PaymentID), refundReq, &refund); err != nil {
		return nil, err
	}

	return &base.RefundResult{
		RefundID: refund.ID,
		Status:   refundStatus(refund.Status),
		Amount:   refund.Amount,
	}, nil
}

// TestConnection lists a single payment link
func (a *Adapter) TestConnection(ctx context.Context) error {
	return a.makeRequest(ctx, http.MethodGet, "/v1/payment_links?count=1", nil, nil)
}

func (a *Adapter) GetSupportedMethods() []types.PaymentMethod {
	return []types.PaymentMethod{
		types.PaymentMethodCard,
		types.PaymentMethodUPI,
		types.PaymentMethodNetBanking,
		types.PaymentMethodWallet,
		types.PaymentMethodPaymentLink,
	}
}

// VerifyWebhook checks the hex HMAC-SHA256 of the raw body
func (a *Adapter) VerifyWebhook(ctx context.Context, req *base.InboundRequest) error {
	signature := req.Headers.Get(SignatureHeader)
	secret := a.config.WebhookSecret
	if secret == "" {
		a.logger.Warnw("webhook secret not configured, using API secret key as fallback")
		secret = a.config.SecretKey
	}

	if signature == "" || secret == "" || !security.VerifyHMACSHA256(secret, req.Body, signature) {
		a.logger.Warnw("razorpay webhook signature mismatch",
			"received_signature_length", len(signature),
			"payload_length", len(req.Body))
		return ierr.NewError("webhook signature verification failed").
			WithHint("Invalid webhook signature").
			Mark(ierr.ErrInvalidSignature)
	}
	return nil
}

// ParseWebhook maps payment link and payment events onto the canonical event
func (a *Adapter) ParseWebhook(ctx context.Context, req *base.InboundRequest) (*base.WebhookEvent, error) {
	var event RazorpayWebhookEvent
	if err := json.Unmarshal(req.Body, &event); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed Razorpay webhook payload").
			Mark(ierr.ErrValidation)
	}

	out := &base.WebhookEvent{
		EventID:    req.Headers.Get(EventIDHeader),
		EventType:  event.Event,
		OccurredAt: time.Unix(event.CreatedAt, 0).UTC(),
	}

	var payment *Payment
	if event.Payload.Payment != nil {
		payment = &event.Payload.Payment.Entity
		out.Amount = payment.Amount
		out.Currency = strings.ToUpper(payment.Currency)
		out.Reference = payment.Notes[notesReference]
	}
	if event.Payload.PaymentLink != nil {
		link := event.Payload.PaymentLink.Entity
		out.TransactionID = link.ID
		out.Reference = lo.Ternary(link.ReferenceID != "", link.ReferenceID, out.Reference)
		if out.Amount == 0 {
			out.Amount = lo.Ternary(link.AmountPaid > 0, link.AmountPaid, link.Amount)
			out.Currency = strings.ToUpper(link.Currency)
		}
	}

	switch RazorpayEventType(event.Event) {
	case EventPaymentLinkPaid, EventPaymentCaptured:
		out.Status = types.PaymentStatusSuccess
		if payment != nil && payment.CreatedAt > 0 {
			out.OccurredAt = time.Unix(payment.CreatedAt, 0).UTC()
		}
	case EventPaymentFailed:
		out.Status = types.PaymentStatusFailed
		if payment != nil {
			out.FailureReason = lo.Ternary(payment.ErrorDescription != "", payment.ErrorDescription, payment.ErrorCode)
		}
	case EventPaymentLinkExpired, EventPaymentLinkCancelled:
		out.Status = types.PaymentStatusCanceled
	case EventPaymentAuthorized:
		out.Status = types.PaymentStatusProcessing
	default:
		a.logger.Debugw("unhandled Razorpay webhook event type", "type", event.Event)
	}

	return out, nil
}

func linkStatus(status string) types.PaymentStatus {
	switch status {
	case "paid":
		return types.PaymentStatusSuccess
	case "partially_paid":
		return types.PaymentStatusProcessing
	case "expired", "cancelled":
		return types.PaymentStatusCanceled
	default:
		return types.PaymentStatusInitiated
	}
}

func refundStatus(status string) types.PaymentStatus {
	switch status {
	case "processed":
		return types.PaymentStatusRefunded
	case "failed":
		return types.PaymentStatusFailed
	default:
		return types.PaymentStatusProcessing
	}
}
