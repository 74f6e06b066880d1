package nomod

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/httpclient"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// NomodConfig holds decrypted Nomod configuration
type NomodConfig struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
}

// Adapter implements base.Adapter on top of Nomod payment links. Nomod callbacks
// only name a charge, so every callback is confirmed by re-reading the charge.
type Adapter struct {
	config     *NomodConfig
	httpClient httpclient.Client
	logger     *logger.Logger
}

var _ base.Adapter = (*Adapter)(nil)

func NewAdapter(creds base.Credentials, httpClient httpclient.Client, logger *logger.Logger) *Adapter {
	return &Adapter{
		config: &NomodConfig{
			APIKey:        creds.SecretKey,
			WebhookSecret: creds.WebhookSecret,
			BaseURL:       lo.Ternary(creds.APIBaseURL != "", strings.TrimRight(creds.APIBaseURL, "/"), NomodBaseURL),
		},
		httpClient: httpClient,
		logger:     logger,
	}
}

// makeRequest makes an authenticated request to the Nomod API
func (a *Adapter) makeRequest(ctx context.Context, method, endpoint string, body interface{}, response interface{}) error {
	if a.config.APIKey == "" {
		return ierr.NewError("missing Nomod API key").
			WithHint("Configure the Nomod API key in the connection settings").
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

	resp, err := a.httpClient.Send(ctx, &httpclient.Request{
		Method: method,
		URL:    a.config.BaseURL + endpoint,
		Headers: map[string]string{
			APIKeyHeader: a.config.APIKey,
			"Accept":     "application/json",
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
		a.logger.Errorw("nomod API request failed",
			"error", err,
			"method", method,
			"endpoint", endpoint)
		return ierr.WithError(err).
			WithHint("Unable to reach Nomod").
			WithReportableDetails(details).
			Mark(ierr.ErrHTTPClient)
	}

	if response != nil {
		if err := json.Unmarshal(resp.Body, response); err != nil {
			return ierr.WithError(err).
				WithHint("Invalid response from Nomod").
				Mark(ierr.ErrHTTPClient)
		}
	}
	return nil
}

// InitiatePayment creates a single item payment link for the full amount
func (a *Adapter) InitiatePayment(ctx context.Context, req *base.InitiateRequest) (*base.InitiateResult, error) {
	currency := strings.ToUpper(req.Currency)
	title := lo.Ternary(req.Description != "", req.Description, req.Reference)
	if len(title) > 50 {
		title = title[:50]
	}

	linkReq := CreatePaymentLinkRequest{
		Currency: currency,
		Items: []LineItem{{
			Name:     title,
			Amount:   base.ToMajor(req.Amount, currency).StringFixed(base.CurrencyExponent(currency)),
			Quantity: 1,
		}},
		Title: lo.ToPtr(title),
		Note:  lo.ToPtr(req.Reference),
	}
	if req.SuccessURL != "" {
		linkReq.SuccessURL = lo.ToPtr(req.SuccessURL)
	}
	if req.CancelURL != "" {
		linkReq.FailureURL = lo.ToPtr(req.CancelURL)
	}

	var link PaymentLinkResponse
	if err := a.makeRequest(ctx, http.MethodPost, "/v1/links", linkReq, &link); err != nil {
		return &base.InitiateResult{
			Success: false,
			Status:  types.PaymentStatusFailed,
			Error:   err.Error(),
		}, err
	}

	a.logger.Infow("created Nomod payment link",
		"payment_link_id", link.ID,
		"reference", req.Reference,
		"amount", req.Amount)

	return &base.InitiateResult{
		Success:       true,
		TransactionID: link.ID,
		Status:        types.PaymentStatusInitiated,
		PaymentURL:    link.URL,
	}, nil
}

// GetPaymentStatus reads the payment link
func (a *Adapter) GetPaymentStatus(ctx context.Context, transactionID string) (*base.StatusResult, error) {
	var link PaymentLinkResponse
	if err := a.makeRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/links/%s", transactionID), nil, &link); err != nil {
		return nil, err
	}

	amount, err := parseAmount(link.Amount, link.Currency)
	if err != nil {
		return nil, err
	}

	return &base.StatusResult{
		TransactionID: link.ID,
		Reference:     link.Note,
		Status:        linkStatus(link.Status),
		Amount:        amount,
		Currency:      strings.ToUpper(link.Currency),
	}, nil
}

// GetCharge fetches a charge by id
func (a *Adapter) GetCharge(ctx context.Context, chargeID string) (*ChargeResponse, error) {
	var charge ChargeResponse
	if err := a.makeRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/charges/%s", chargeID), nil, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

// RefundPayment is not offered by the Nomod API
func (a *Adapter) RefundPayment(ctx context.Context, req *base.RefundRequest) (*base.RefundResult, error) {
	return nil, ierr.NewError("refunds are not supported by Nomod").
		WithHint("Refund this payment from the Nomod dashboard").
		Mark(ierr.ErrNotSupported)
}

// TestConnection lists payment links
func (a *Adapter) TestConnection(ctx context.Context) error {
	return a.makeRequest(ctx, http.MethodGet, "/v1/links?page_size=1", nil, nil)
}

func (a *Adapter) GetSupportedMethods() []types.PaymentMethod {
	return []types.PaymentMethod{
		types.PaymentMethodCard,
		types.PaymentMethodPaymentLink,
	}
}

// VerifyWebhook compares the X-API-KEY header of the callback to the webhook secret
func (a *Adapter) VerifyWebhook(ctx context.Context, req *base.InboundRequest) error {
	provided := req.Headers.Get(APIKeyHeader)
	if a.config.WebhookSecret == "" || provided == "" ||
		subtle.ConstantTimeCompare([]byte(provided), []byte(a.config.WebhookSecret)) != 1 {
		a.logger.Warnw("nomod webhook authentication failed",
			"has_header", provided != "")
		return ierr.NewError("invalid webhook API key").
			WithHint("X-API-KEY header does not match configured webhook secret").
			Mark(ierr.ErrInvalidSignature)
	}
	return nil
}

// ParseWebhook decodes the callback and re-reads the charge it names. The
// charge's status and amount are used, not anything in the callback body.
func (a *Adapter) ParseWebhook(ctx context.Context, req *base.InboundRequest) (*base.WebhookEvent, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed Nomod webhook payload").
			Mark(ierr.ErrValidation)
	}
	if payload.ID == "" {
		return nil, ierr.NewError("nomod webhook without charge id").
			WithHint("Malformed Nomod webhook payload").
			Mark(ierr.ErrValidation)
	}

	charge, err := a.GetCharge(ctx, payload.ID)
	if err != nil {
		return nil, err
	}

	amount, err := parseAmount(charge.Total, charge.Currency)
	if err != nil {
		return nil, err
	}

	// callbacks carry no event id, each charge is one attempt on the link
	out := &base.WebhookEvent{
		EventID:    lo.Ternary(charge.ID != "", charge.ID, payload.ID) + ":" + charge.Status,
		EventType:  "charge." + charge.Status,
		Reference:  charge.Note,
		Status:     chargeStatus(charge.Status),
		Amount:     amount,
		Currency:   strings.ToUpper(charge.Currency),
		OccurredAt: parseTime(charge.Created),
	}
	switch {
	case charge.Link != nil && charge.Link.ID != "":
		out.TransactionID = charge.Link.ID
	case payload.PaymentLinkID != nil:
		out.TransactionID = *payload.PaymentLinkID
	}
	if out.Status == types.PaymentStatusFailed {
		if n := len(charge.Events); n > 0 {
			out.FailureReason = charge.Events[n-1].Message
		}
	}
	if !out.IsActionable() {
		a.logger.Debugw("Nomod charge carries no payment outcome",
			"charge_id", charge.ID,
			"status", charge.Status)
	}
	return out, nil
}

func parseAmount(amount, currency string) (int64, error) {
	if amount == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Invalid amount in Nomod response").
			WithReportableDetails(map[string]any{"amount": amount}).
			Mark(ierr.ErrHTTPClient)
	}
	return base.FromMajor(d, currency), nil
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

func chargeStatus(status string) types.PaymentStatus {
	switch status {
	case ChargeStatusPaid:
		return types.PaymentStatusSuccess
	case ChargeStatusFailed, ChargeStatusDeclined:
		return types.PaymentStatusFailed
	case ChargeStatusCancelled, ChargeStatusVoided:
		return types.PaymentStatusCanceled
	case ChargeStatusPending, ChargeStatusAuthorised:
		return types.PaymentStatusProcessing
	default:
		return ""
	}
}

func linkStatus(status string) types.PaymentStatus {
	switch status {
	case "paid":
		return types.PaymentStatusSuccess
	case "expired", "disabled", "cancelled":
		return types.PaymentStatusCanceled
	default:
		return types.PaymentStatusInitiated
	}
}
