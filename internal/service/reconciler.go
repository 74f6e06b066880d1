package service

import (
	"context"
	"fmt"
	"time"

	"github.com/flexprice/flexbill/internal/domain/payment"
	"github.com/flexprice/flexbill/internal/domain/webhooklog"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/webhook"
	"github.com/samber/lo"
)

// Webhook outcomes recorded in metrics
const (
	webhookOutcomeProcessed        = "processed"
	webhookOutcomeDuplicate        = "duplicate"
	webhookOutcomeIgnored          = "ignored"
	webhookOutcomeInvalidSignature = "invalid_signature"
	webhookOutcomeInvalidPayload   = "invalid_payload"
	webhookOutcomeNotFound         = "not_found"
	webhookOutcomeError            = "error"
)

// ReconcileResult describes what happened to one inbound callback
type ReconcileResult struct {
	LogID string
	// Duplicate is set when the callback was seen before and skipped
	Duplicate bool
	// Ignored is set when the callback carried nothing to apply
	Ignored       bool
	TransactionID string
	Status        types.PaymentStatus
}

// Reconciler ingests provider callbacks and applies their outcome to
// transactions, invoices and subscriptions exactly once
type Reconciler interface {
	Process(ctx context.Context, req *base.InboundRequest) (*ReconcileResult, error)
}

type reconciler struct {
	ServiceParams
}

func NewReconciler(params ServiceParams) Reconciler {
	return &reconciler{
		ServiceParams: params,
	}
}

func (r *reconciler) Process(ctx context.Context, req *base.InboundRequest) (*ReconcileResult, error) {
	provider := req.Provider
	if err := provider.Validate(); err != nil {
		return nil, err
	}

	adapter, err := r.IntegrationFactory.GetAdapter(ctx, provider)
	if err != nil {
		r.Metrics.RecordWebhookReceived(provider.String(), webhookOutcomeError)
		return nil, err
	}

	if err := adapter.VerifyWebhook(ctx, req); err != nil {
		r.auditRejected(ctx, req, err)
		r.Metrics.RecordWebhookReceived(provider.String(), webhookOutcomeInvalidSignature)
		return nil, err
	}

	event, err := adapter.ParseWebhook(ctx, req)
	if err != nil {
		r.auditRejected(ctx, req, err)
		r.Metrics.RecordWebhookReceived(provider.String(), webhookOutcomeInvalidPayload)
		return nil, err
	}

	log := &webhooklog.WebhookLog{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_LOG),
		Provider:        provider,
		DedupKey:        dedupKey(event),
		ProviderEventID: event.EventID,
		EventType:       event.EventType,
		Payload:         string(req.Body),
		WebhookStatus:   types.WebhookLogStatusReceived,
		BaseModel:       r.baseModel(ctx),
	}

	claimed, err := r.WebhookLogRepo.Claim(ctx, log)
	if err != nil {
		r.Metrics.RecordWebhookReceived(provider.String(), webhookOutcomeError)
		return nil, err
	}
	if !claimed {
		dup := *log
		dup.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_LOG)
		dup.WebhookStatus = types.WebhookLogStatusIgnored
		dup.Error = "duplicate callback"
		if err := r.WebhookLogRepo.Create(ctx, &dup); err != nil {
			return nil, err
		}
		r.Logger.Warnw("duplicate webhook ignored",
			"provider", provider,
			"dedup_key", log.DedupKey,
			"event_type", event.EventType)
		r.Metrics.RecordWebhookReceived(provider.String(), webhookOutcomeDuplicate)
		return &ReconcileResult{LogID: dup.ID, Duplicate: true}, nil
	}

	result := &ReconcileResult{LogID: log.ID, Status: event.Status}

	if !event.IsActionable() {
		r.finishLog(ctx, log.ID, types.WebhookLogStatusIgnored, "no payment outcome")
		r.Metrics.RecordWebhookReceived(provider.String(), webhookOutcomeIgnored)
		result.Ignored = true
		return result, nil
	}

	r.finishLog(ctx, log.ID, types.WebhookLogStatusProcessing, "")

	txn, err := r.findTransaction(ctx, provider, event)
	if err != nil {
		r.finishLog(ctx, log.ID, types.WebhookLogStatusFailed, err.Error())
		r.Metrics.RecordWebhookReceived(provider.String(), lo.Ternary(ierr.IsNotFound(err), webhookOutcomeNotFound, webhookOutcomeError))
		return nil, err
	}
	result.TransactionID = txn.ID

	applied, err := r.settle(ctx, txn.ID, settlementFromEvent(event))
	if err != nil {
		r.finishLog(ctx, log.ID, types.WebhookLogStatusFailed, err.Error())
		r.Metrics.RecordWebhookReceived(provider.String(), webhookOutcomeError)
		return nil, err
	}
	if !applied {
		r.finishLog(ctx, log.ID, types.WebhookLogStatusIgnored, "transaction already settled")
		r.Metrics.RecordWebhookReceived(provider.String(), webhookOutcomeIgnored)
		result.Ignored = true
		return result, nil
	}

	r.finishLog(ctx, log.ID, types.WebhookLogStatusProcessed, "")
	r.Metrics.RecordWebhookReceived(provider.String(), webhookOutcomeProcessed)

	r.Logger.Infow("reconciled webhook",
		"provider", provider,
		"event_type", event.EventType,
		"payment_id", txn.ID,
		"status", event.Status)
	return result, nil
}

// dedupKey identifies a callback: the provider event id, else the provider
// transaction and status, else the merchant reference and status
func dedupKey(event *base.WebhookEvent) string {
	switch {
	case event.EventID != "":
		return event.EventID
	case event.TransactionID != "":
		return fmt.Sprintf("%s:%s", event.TransactionID, event.Status)
	default:
		return fmt.Sprintf("%s:%s", event.Reference, event.Status)
	}
}

// auditRejected writes a failed log row for a callback that could not be
// verified or decoded. Nothing else is touched.
func (r *reconciler) auditRejected(ctx context.Context, req *base.InboundRequest, cause error) {
	log := &webhooklog.WebhookLog{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_LOG),
		Provider:      req.Provider,
		DedupKey:      "rejected:" + types.GenerateUUID(),
		Payload:       string(req.Body),
		WebhookStatus: types.WebhookLogStatusFailed,
		Error:         cause.Error(),
		BaseModel:     r.baseModel(ctx),
	}
	if err := r.WebhookLogRepo.Create(ctx, log); err != nil {
		r.Logger.Errorw("failed to write webhook audit log", "provider", req.Provider, "error", err)
	}
	r.Logger.Warnw("rejected webhook",
		"provider", req.Provider,
		"error", cause)
}

func (r *reconciler) finishLog(ctx context.Context, id string, status types.WebhookLogStatus, msg string) {
	if err := r.WebhookLogRepo.UpdateStatus(ctx, id, status, msg); err != nil {
		r.Logger.Errorw("failed to update webhook log",
			"webhook_log_id", id,
			"status", status,
			"error", err)
	}
}

// findTransaction matches an event by merchant reference, then by provider transaction id
func (r *reconciler) findTransaction(ctx context.Context, provider types.PaymentProvider, event *base.WebhookEvent) (*payment.Transaction, error) {
	if event.Reference != "" {
		txn, err := r.PaymentRepo.GetByReference(ctx, event.Reference)
		if err == nil {
			return txn, nil
		}
		if !ierr.IsNotFound(err) {
			return nil, err
		}
	}
	if event.TransactionID != "" {
		return r.PaymentRepo.GetByProviderTransactionID(ctx, provider, event.TransactionID)
	}
	return nil, ierr.NewError("no transaction matches the callback").
		WithHint("Payment transaction not found").
		WithReportableDetails(map[string]any{
			"provider":       provider,
			"reference":      event.Reference,
			"transaction_id": event.TransactionID,
		}).
		Mark(ierr.ErrNotFound)
}

// settlement is a provider reported payment outcome, from a callback or a status poll
type settlement struct {
	Status                types.PaymentStatus
	Amount                int64
	ProviderTransactionID string
	OccurredAt            time.Time
	FailureReason         string
	// Attempt is set when the outcome carries its own provider event id, so a
	// repeated failure is a new failed attempt rather than the same report again
	Attempt bool
}

func settlementFromEvent(event *base.WebhookEvent) settlement {
	return settlement{
		Status:                event.Status,
		Amount:                event.Amount,
		ProviderTransactionID: event.TransactionID,
		OccurredAt:            event.OccurredAt,
		FailureReason:         event.FailureReason,
		Attempt:               event.EventID != "",
	}
}

func settlementFromStatus(status *base.StatusResult) settlement {
	return settlement{
		Status:                status.Status,
		Amount:                status.Amount,
		ProviderTransactionID: status.TransactionID,
		OccurredAt:            lo.FromPtr(status.PaidAt),
		FailureReason:         status.FailureReason,
	}
}

// errAlreadySettled aborts the transaction of a settlement that lost the race
// against another one for the same payment
var errAlreadySettled = ierr.NewError("payment already settled").Mark(ierr.ErrTerminalState)

// settle applies outcome to the transaction and, through it, to the invoice and
// subscription. The transaction is written last: its terminal guard decides
// which of two racing settlements commits. It reports whether anything changed.
func (p ServiceParams) settle(ctx context.Context, txnID string, outcome settlement) (bool, error) {
	subService := &subscriptionService{ServiceParams: p}

	var applied bool
	err := p.retryOnConflict(ctx, "settle_payment", func() error {
		applied = false
		return p.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
			txn, err := p.PaymentRepo.Get(txCtx, txnID)
			if err != nil {
				return err
			}
			repeatedFailure := outcome.Attempt &&
				outcome.Status == types.PaymentStatusFailed &&
				txn.PaymentStatus == types.PaymentStatusFailed
			if txn.IsTerminal() || (txn.PaymentStatus == outcome.Status && !repeatedFailure) {
				p.Logger.Warnw("payment outcome ignored",
					"payment_id", txn.ID,
					"current_status", txn.PaymentStatus,
					"reported_status", outcome.Status)
				return nil
			}

			txn.PaymentStatus = outcome.Status
			if txn.ProviderTransactionID == "" {
				txn.ProviderTransactionID = outcome.ProviderTransactionID
			}
			txn.UpdatedAt = p.now()

			switch outcome.Status {
			case types.PaymentStatusSuccess:
				paidAt := lo.Ternary(outcome.OccurredAt.IsZero(), p.now(), outcome.OccurredAt.UTC())
				txn.PaidAt = &paidAt
				if err := p.applyChargeSuccess(txCtx, ob, subService, txn, outcome, paidAt); err != nil {
					return err
				}
			case types.PaymentStatusFailed:
				txn.FailureReason = lo.Ternary(outcome.FailureReason != "", outcome.FailureReason, "payment failed")
				if err := p.applyChargeFailure(txCtx, ob, subService, txn); err != nil {
					return err
				}
			case types.PaymentStatusCanceled:
				txn.FailureReason = lo.Ternary(outcome.FailureReason != "", outcome.FailureReason, "payment canceled")
			}

			if err := p.PaymentRepo.Update(txCtx, txn); err != nil {
				if ierr.IsTerminalState(err) {
					return errAlreadySettled
				}
				return err
			}
			applied = true
			return nil
		})
	})
	if ierr.Is(err, errAlreadySettled) {
		p.Logger.Warnw("payment settled concurrently", "payment_id", txnID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (p ServiceParams) applyChargeSuccess(
	ctx context.Context,
	ob *eventBatch,
	subService *subscriptionService,
	txn *payment.Transaction,
	outcome settlement,
	paidAt time.Time,
) error {
	inv, err := p.InvoiceRepo.Get(ctx, txn.InvoiceID)
	if err != nil {
		return err
	}

	amount := lo.Ternary(outcome.Amount > 0, outcome.Amount, txn.Amount)
	if amount != inv.AmountDue-inv.AmountPaid {
		p.Logger.Warnw("paid amount differs from the amount due",
			"invoice_id", inv.ID,
			"payment_id", txn.ID,
			"amount_due", inv.AmountDue,
			"paid", amount)
	}

	if !inv.MarkPaid(amount, paidAt) {
		p.Logger.Warnw("invoice already paid, subscription left untouched",
			"invoice_id", inv.ID,
			"payment_id", txn.ID)
		return nil
	}
	inv.UpdatedAt = p.now()
	if err := p.InvoiceRepo.Update(ctx, inv); err != nil {
		return err
	}
	if err := ob.add(ctx, types.WebhookEventInvoicePaid, &webhook.InvoiceEvent{Invoice: inv}); err != nil {
		return err
	}

	_, err = subService.applyPaymentSuccess(ctx, ob, inv, paidAt)
	return err
}

func (p ServiceParams) applyChargeFailure(
	ctx context.Context,
	ob *eventBatch,
	subService *subscriptionService,
	txn *payment.Transaction,
) error {
	inv, err := p.InvoiceRepo.Get(ctx, txn.InvoiceID)
	if err != nil {
		return err
	}
	if inv.IsPaid() {
		p.Logger.Warnw("failure reported for a paid invoice, subscription left untouched",
			"invoice_id", inv.ID,
			"payment_id", txn.ID)
		return nil
	}

	if inv.MarkFailed() {
		inv.UpdatedAt = p.now()
		if err := p.InvoiceRepo.Update(ctx, inv); err != nil {
			return err
		}
	}

	_, err = subService.recordPaymentFailure(ctx, ob, inv, txn)
	return err
}
