package stripe

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// SignatureHeader carries Stripe's timestamped signature of the payload
const SignatureHeader = "Stripe-Signature"

// Stripe event types that carry a payment outcome
const (
	EventCheckoutSessionCompleted             = "checkout.session.completed"
	EventCheckoutSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventCheckoutSessionExpired               = "checkout.session.expired"
	EventPaymentIntentSucceeded               = "payment_intent.succeeded"
	EventPaymentIntentPaymentFailed           = "payment_intent.payment_failed"
)

// VerifyWebhook checks the Stripe-Signature header against the endpoint secret
func (a *Adapter) VerifyWebhook(ctx context.Context, req *base.InboundRequest) error {
	_, err := a.constructEvent(req)
	return err
}

func (a *Adapter) constructEvent(req *base.InboundRequest) (*stripe.Event, error) {
	signature := req.Headers.Get(SignatureHeader)
	if signature == "" || a.config.WebhookSecret == "" {
		return nil, ierr.NewError("missing Stripe signature").
			WithHint("Invalid webhook signature").
			Mark(ierr.ErrInvalidSignature)
	}

	options := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(req.Body, signature, a.config.WebhookSecret, options)
	if err != nil {
		a.logger.Warnw("Stripe webhook verification failed", "error", err)
		return nil, ierr.WithError(err).
			WithHint("Invalid webhook signature or payload").
			Mark(ierr.ErrInvalidSignature)
	}
	return &event, nil
}

// ParseWebhook maps a verified Stripe event onto the canonical event
func (a *Adapter) ParseWebhook(ctx context.Context, req *base.InboundRequest) (*base.WebhookEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(req.Body, &event); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed Stripe webhook payload").
			Mark(ierr.ErrValidation)
	}

	out := &base.WebhookEvent{
		EventID:    event.ID,
		EventType:  string(event.Type),
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return out, nil
	}

	switch string(event.Type) {
	case EventCheckoutSessionCompleted,
		EventCheckoutSessionAsyncPaymentSucceeded,
		EventCheckoutSessionAsyncPaymentFailed,
		EventCheckoutSessionExpired:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Malformed Stripe checkout session").
				Mark(ierr.ErrValidation)
		}
		out.TransactionID = session.ID
		out.Reference = session.ClientReferenceID
		if out.Reference == "" {
			out.Reference = session.Metadata[metadataReference]
		}
		out.Amount = session.AmountTotal
		out.Currency = strings.ToUpper(string(session.Currency))

		switch string(event.Type) {
		case EventCheckoutSessionCompleted:
			out.Status = sessionStatus(&session)
		case EventCheckoutSessionAsyncPaymentSucceeded:
			out.Status = types.PaymentStatusSuccess
		case EventCheckoutSessionAsyncPaymentFailed:
			out.Status = types.PaymentStatusFailed
			out.FailureReason = "async payment failed"
		case EventCheckoutSessionExpired:
			out.Status = types.PaymentStatusCanceled
		}

	case EventPaymentIntentSucceeded, EventPaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Malformed Stripe payment intent").
				Mark(ierr.ErrValidation)
		}
		// sessions are the transaction of record, payment intents are matched by reference
		out.Reference = pi.Metadata[metadataReference]
		out.Amount = pi.Amount
		out.Currency = strings.ToUpper(string(pi.Currency))
		if string(event.Type) == EventPaymentIntentSucceeded {
			out.Status = types.PaymentStatusSuccess
		} else {
			out.Status = types.PaymentStatusFailed
			if pi.LastPaymentError != nil {
				out.FailureReason = pi.LastPaymentError.Msg
			}
		}

	default:
		a.logger.Debugw("Stripe event carries no payment outcome", "type", event.Type)
	}

	return out, nil
}
