package stripe

import (
	"context"
	"strings"
	"time"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
)

const (
	// metadataReference carries the merchant reference on sessions and payment intents
	metadataReference = "flexbill_reference"
	metadataSource    = "payment_source"
)

// Adapter implements base.Adapter on top of Stripe checkout sessions
type Adapter struct {
	client *stripe.Client
	config *StripeConfig
	logger *logger.Logger
}

// StripeConfig holds decrypted Stripe configuration
type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
}

var _ base.Adapter = (*Adapter)(nil)

// NewAdapter creates a Stripe adapter from a decrypted credential bundle
func NewAdapter(creds base.Credentials, logger *logger.Logger) *Adapter {
	config := &StripeConfig{
		SecretKey:      creds.SecretKey,
		PublishableKey: creds.PublicKey,
		WebhookSecret:  creds.WebhookSecret,
	}
	return &Adapter{
		client: stripe.NewClient(config.SecretKey, nil),
		config: config,
		logger: logger,
	}
}

// InitiatePayment creates a checkout session for the requested amount
func (a *Adapter) InitiatePayment(ctx context.Context, req *base.InitiateRequest) (*base.InitiateResult, error) {
	metadata := map[string]string{
		metadataReference: req.Reference,
		metadataSource:    "flexbill",
	}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	description := lo.Ternary(req.Description != "", req.Description, "Subscription payment")

	params := &stripe.CheckoutSessionCreateParams{
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(req.Currency)),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
					UnitAmount: stripe.Int64(req.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String("payment"),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		Metadata:          metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	session, err := a.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		a.logger.Errorw("failed to create Stripe checkout session",
			"error", err,
			"reference", req.Reference)
		return &base.InitiateResult{
				Success: false,
				Status:  types.PaymentStatusFailed,
				Error:   err.Error(),
			}, ierr.WithError(err).
				WithHint("Unable to create Stripe checkout session").
				WithReportableDetails(map[string]any{"reference": req.Reference}).
				Mark(ierr.ErrHTTPClient)
	}

	a.logger.Infow("created Stripe checkout session",
		"session_id", session.ID,
		"reference", req.Reference,
		"amount", req.Amount,
		"currency", req.Currency)

	return &base.InitiateResult{
		Success:       true,
		TransactionID: session.ID,
		Status:        types.PaymentStatusInitiated,
		PaymentURL:    session.URL,
	}, nil
}

// GetPaymentStatus retrieves the checkout session with its payment intent
func (a *Adapter) GetPaymentStatus(ctx context.Context, transactionID string) (*base.StatusResult, error) {
	params := &stripe.CheckoutSessionRetrieveParams{
		Expand: []*string{stripe.String("payment_intent")},
	}
	session, err := a.client.V1CheckoutSessions.Retrieve(ctx, transactionID, params)
	if err != nil {
		a.logger.Errorw("failed to get Stripe checkout session",
			"error", err,
			"session_id", transactionID)
		return nil, ierr.WithError(err).
			WithHint("Unable to retrieve Stripe checkout session").
			WithReportableDetails(map[string]any{"session_id": transactionID}).
			Mark(ierr.ErrHTTPClient)
	}

	result := &base.StatusResult{
		TransactionID: session.ID,
		Reference:     session.ClientReferenceID,
		Status:        sessionStatus(session),
		Amount:        session.AmountTotal,
		Currency:      strings.ToUpper(string(session.Currency)),
	}
	if session.PaymentIntent != nil && session.PaymentIntent.LastPaymentError != nil {
		result.FailureReason = session.PaymentIntent.LastPaymentError.Msg
	}
	if result.Status == types.PaymentStatusSuccess {
		paidAt := time.Now().UTC()
		if session.PaymentIntent != nil && session.PaymentIntent.Created > 0 {
			paidAt = time.Unix(session.PaymentIntent.Created, 0).UTC()
		}
		result.PaidAt = &paidAt
	}
	return result, nil
}

// RefundPayment refunds the payment intent behind a checkout session
func (a *Adapter) RefundPayment(ctx context.Context, req *base.RefundRequest) (*base.RefundResult, error) {
	session, err := a.client.V1CheckoutSessions.Retrieve(ctx, req.TransactionID, nil)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unable to retrieve Stripe checkout session").
			WithReportableDetails(map[string]any{"session_id": req.TransactionID}).
			Mark(ierr.ErrHTTPClient)
	}
	if session.PaymentIntent == nil {
		return nil, ierr.NewError("checkout session has no payment intent").
			WithHint("Only completed Stripe payments can be refunded").
			WithReportableDetails(map[string]any{"session_id": req.TransactionID}).
			Mark(ierr.ErrInvalidOperation)
	}

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(session.PaymentIntent.ID),
		Amount:        stripe.Int64(req.Amount),
	}
	params.AddMetadata(metadataReference, req.Reference)

	refund, err := a.client.V1Refunds.Create(ctx, params)
	if err != nil {
		a.logger.Errorw("failed to create Stripe refund",
			"error", err,
			"payment_intent_id", session.PaymentIntent.ID)
		return nil, ierr.WithError(err).
			WithHint("Unable to refund the Stripe payment").
			WithReportableDetails(map[string]any{"payment_intent_id": session.PaymentIntent.ID}).
			Mark(ierr.ErrHTTPClient)
	}

	return &base.RefundResult{
		RefundID: refund.ID,
		Status:   refundStatus(refund.Status),
		Amount:   refund.Amount,
	}, nil
}

// TestConnection reads the account balance, which any valid secret key may do
func (a *Adapter) TestConnection(ctx context.Context) error {
	if a.config.SecretKey == "" {
		return ierr.NewError("missing Stripe secret key").
			WithHint("Configure the Stripe secret key in the connection settings").
			Mark(ierr.ErrValidation)
	}
	if _, err := a.client.V1Balance.Retrieve(ctx, nil); err != nil {
		return ierr.WithError(err).
			WithHint("Stripe rejected the configured credentials").
			Mark(ierr.ErrHTTPClient)
	}
	return nil
}

func (a *Adapter) GetSupportedMethods() []types.PaymentMethod {
	return []types.PaymentMethod{
		types.PaymentMethodCard,
		types.PaymentMethodWallet,
		types.PaymentMethodPaymentLink,
	}
}

func sessionStatus(session *stripe.CheckoutSession) types.PaymentStatus {
	switch session.Status {
	case stripe.CheckoutSessionStatusExpired:
		return types.PaymentStatusCanceled
	case stripe.CheckoutSessionStatusComplete:
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return types.PaymentStatusProcessing
		}
		return types.PaymentStatusSuccess
	}

	if session.PaymentIntent != nil {
		return paymentIntentStatus(session.PaymentIntent)
	}
	return types.PaymentStatusInitiated
}

func paymentIntentStatus(pi *stripe.PaymentIntent) types.PaymentStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return types.PaymentStatusSuccess
	case stripe.PaymentIntentStatusProcessing:
		return types.PaymentStatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		return types.PaymentStatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return types.PaymentStatusFailed
		}
	}
	return types.PaymentStatusInitiated
}

func refundStatus(status stripe.RefundStatus) types.PaymentStatus {
	switch status {
	case stripe.RefundStatusSucceeded:
		return types.PaymentStatusRefunded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return types.PaymentStatusFailed
	default:
		return types.PaymentStatusProcessing
	}
}
