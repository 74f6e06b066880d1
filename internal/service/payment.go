package service

import (
	"context"
	"fmt"

	"github.com/flexprice/flexbill/internal/api/dto"
	"github.com/flexprice/flexbill/internal/domain/invoice"
	"github.com/flexprice/flexbill/internal/domain/payment"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/idempotency"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/webhook"
	"github.com/samber/lo"
)

// Prefixes of the merchant references of charges and refunds
const (
	referencePrefix       = "ref"
	refundReferencePrefix = "rfd"
)

type PaymentService interface {
	// InitiatePayment starts collection of an invoice with a provider. An open
	// attempt for the same invoice and provider is returned instead of starting another.
	InitiatePayment(ctx context.Context, req dto.InitiatePaymentRequest) (*dto.PaymentResponse, error)
	GetPayment(ctx context.Context, id string) (*dto.PaymentResponse, error)
	ListPayments(ctx context.Context, filter *types.PaymentFilter) (*dto.ListPaymentsResponse, error)
	// RefundPayment refunds a successful charge and records the refund as a new transaction
	RefundPayment(ctx context.Context, id string, req dto.RefundPaymentRequest) (*dto.PaymentResponse, error)
}

type paymentService struct {
	ServiceParams
}

func NewPaymentService(params ServiceParams) PaymentService {
	return &paymentService{
		ServiceParams: params,
	}
}

func (s *paymentService) InitiatePayment(ctx context.Context, req dto.InitiatePaymentRequest) (*dto.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.InvoiceRepo.Get(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.InvoiceStatus.IsPayable() {
		return nil, ierr.NewError("invoice is not payable").
			WithHintf("An invoice in status %s cannot be paid", inv.InvoiceStatus).
			WithReportableDetails(map[string]any{
				"invoice_id": inv.ID,
				"status":     inv.InvoiceStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	attempts, err := s.PaymentRepo.List(ctx, &types.PaymentFilter{
		QueryFilter: types.QueryFilter{Limit: types.MaxFilterLimit},
		InvoiceID:   inv.ID,
	})
	if err != nil {
		return nil, err
	}
	if open, ok := lo.Find(attempts, func(t *payment.Transaction) bool {
		return t.Kind == types.TransactionKindCharge && t.Provider == req.Provider &&
			t.PaymentStatus.IsOpen() && t.PaymentURL != ""
	}); ok {
		s.Logger.Infow("reusing open payment attempt",
			"payment_id", open.ID,
			"invoice_id", inv.ID,
			"provider", req.Provider)
		return &dto.PaymentResponse{Transaction: open}, nil
	}

	adapter, err := s.IntegrationFactory.GetAdapter(ctx, req.Provider)
	if err != nil {
		return nil, err
	}

	cust, err := s.CustomerRepo.Get(ctx, inv.CustomerID)
	if err != nil {
		return nil, err
	}

	txn := &payment.Transaction{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		Kind:              types.TransactionKindCharge,
		SubscriptionID:    inv.SubscriptionID,
		InvoiceID:         inv.ID,
		CustomerID:        inv.CustomerID,
		Provider:          req.Provider,
		Amount:            inv.AmountDue - inv.AmountPaid,
		Currency:          inv.Currency,
		PaymentStatus:     types.PaymentStatusPending,
		ProviderReference: types.GenerateShortIDWithPrefix(referencePrefix),
		BaseModel:         s.baseModel(ctx),
	}
	txn.IdempotencyKey = s.IdempotencyGen.GenerateKey(idempotency.ScopePayment, map[string]interface{}{
		"invoice_id": inv.ID,
		"reference":  txn.ProviderReference,
	})

	// stored before calling out so an early callback finds the reference
	if err := s.PaymentRepo.Create(ctx, txn); err != nil {
		return nil, err
	}

	result, initErr := adapter.InitiatePayment(ctx, &base.InitiateRequest{
		Reference:     txn.ProviderReference,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		Description:   fmt.Sprintf("Invoice %s", inv.InvoiceNumber),
		CustomerName:  cust.Name,
		CustomerEmail: cust.Email,
		Method:        req.Method,
		SuccessURL:    lo.Ternary(req.SuccessURL != "", req.SuccessURL, s.Config.Billing.PaymentSuccessURL),
		CancelURL:     lo.Ternary(req.CancelURL != "", req.CancelURL, s.Config.Billing.PaymentCancelURL),
		Metadata: map[string]string{
			"invoice_id":      inv.ID,
			"subscription_id": inv.SubscriptionID,
			"tenant_id":       types.GetTenantID(ctx),
		},
	})

	if initErr != nil || result == nil || !result.Success {
		txn.PaymentStatus = types.PaymentStatusFailed
		txn.FailureReason = initiateFailureReason(result, initErr)
		if err := s.PaymentRepo.Update(ctx, txn); err != nil {
			return nil, err
		}
		s.Logger.Errorw("payment initiation failed",
			"payment_id", txn.ID,
			"invoice_id", inv.ID,
			"provider", req.Provider,
			"reason", txn.FailureReason)

		if initErr == nil {
			initErr = ierr.NewError("payment provider rejected the payment").
				WithHint(txn.FailureReason).
				Mark(ierr.ErrHTTPClient)
		}
		return &dto.PaymentResponse{Transaction: txn}, initErr
	}

	txn.ProviderTransactionID = result.TransactionID
	txn.PaymentURL = result.PaymentURL
	txn.PaymentStatus = lo.Ternary(result.Status != "", result.Status, types.PaymentStatusInitiated)
	if err := s.PaymentRepo.Update(ctx, txn); err != nil {
		return nil, err
	}

	s.Logger.Infow("initiated payment",
		"payment_id", txn.ID,
		"invoice_id", inv.ID,
		"provider", req.Provider,
		"provider_transaction_id", txn.ProviderTransactionID,
		"amount", txn.Amount,
		"currency", txn.Currency)

	return &dto.PaymentResponse{Transaction: txn}, nil
}

func initiateFailureReason(result *base.InitiateResult, err error) string {
	if result != nil && result.Error != "" {
		return result.Error
	}
	if err != nil {
		return err.Error()
	}
	return "payment initiation failed"
}

func (s *paymentService) GetPayment(ctx context.Context, id string) (*dto.PaymentResponse, error) {
	txn, err := s.PaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.PaymentResponse{Transaction: txn}, nil
}

func (s *paymentService) ListPayments(ctx context.Context, filter *types.PaymentFilter) (*dto.ListPaymentsResponse, error) {
	if filter == nil {
		filter = &types.PaymentFilter{}
	}
	txns, err := s.PaymentRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := lo.Map(txns, func(t *payment.Transaction, _ int) *dto.PaymentResponse {
		return &dto.PaymentResponse{Transaction: t}
	})
	return dto.NewListResponse(items, filter.QueryFilter), nil
}

func (s *paymentService) RefundPayment(ctx context.Context, id string, req dto.RefundPaymentRequest) (*dto.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	charge, err := s.PaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if charge.Kind != types.TransactionKindCharge || charge.PaymentStatus != types.PaymentStatusSuccess {
		return nil, ierr.NewError("payment cannot be refunded").
			WithHint("Only successful charges can be refunded").
			WithReportableDetails(map[string]any{
				"payment_id": charge.ID,
				"kind":       charge.Kind,
				"status":     charge.PaymentStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	amount := lo.Ternary(req.Amount > 0, req.Amount, charge.Amount)
	if amount > charge.Amount {
		return nil, ierr.NewError("refund exceeds the charged amount").
			WithHint("The refund amount cannot be higher than the payment").
			WithReportableDetails(map[string]any{
				"amount":         amount,
				"charged_amount": charge.Amount,
			}).
			Mark(ierr.ErrValidation)
	}

	idempotencyKey := s.IdempotencyGen.GenerateKey(idempotency.ScopeRefund, map[string]interface{}{
		"payment_id": charge.ID,
	})
	siblings, err := s.PaymentRepo.List(ctx, &types.PaymentFilter{
		QueryFilter: types.QueryFilter{Limit: types.MaxFilterLimit},
		InvoiceID:   charge.InvoiceID,
	})
	if err != nil {
		return nil, err
	}
	if lo.ContainsBy(siblings, func(t *payment.Transaction) bool {
		return t.Kind == types.TransactionKindRefund && t.ParentID == charge.ID
	}) {
		return nil, ierr.NewError("payment already refunded").
			WithHint("This payment has already been refunded").
			WithReportableDetails(map[string]any{"payment_id": charge.ID}).
			Mark(ierr.ErrInvalidOperation)
	}

	adapter, err := s.IntegrationFactory.GetAdapter(ctx, charge.Provider)
	if err != nil {
		return nil, err
	}

	result, err := adapter.RefundPayment(ctx, &base.RefundRequest{
		TransactionID: charge.ProviderTransactionID,
		Reference:     charge.ProviderReference,
		Amount:        amount,
		Currency:      charge.Currency,
		Reason:        req.Reason,
	})
	if err != nil {
		s.Logger.Errorw("refund failed",
			"payment_id", charge.ID,
			"provider", charge.Provider,
			"error", err)
		return nil, err
	}
	if result.Status == types.PaymentStatusFailed {
		return nil, ierr.NewError("payment provider rejected the refund").
			WithHint("The refund was declined by the payment provider").
			WithReportableDetails(map[string]any{
				"payment_id": charge.ID,
				"refund_id":  result.RefundID,
			}).
			Mark(ierr.ErrHTTPClient)
	}

	now := s.now()
	refund := &payment.Transaction{
		ID:                    types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		Kind:                  types.TransactionKindRefund,
		ParentID:              charge.ID,
		SubscriptionID:        charge.SubscriptionID,
		InvoiceID:             charge.InvoiceID,
		CustomerID:            charge.CustomerID,
		Provider:              charge.Provider,
		Amount:                lo.Ternary(result.Amount > 0, result.Amount, amount),
		Currency:              charge.Currency,
		PaymentStatus:         types.PaymentStatusRefunded,
		ProviderTransactionID: result.RefundID,
		ProviderReference:     types.GenerateShortIDWithPrefix(refundReferencePrefix),
		IdempotencyKey:        idempotencyKey,
		PaidAt:                &now,
		BaseModel:             s.baseModel(ctx),
	}

	err = s.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
		if err := s.PaymentRepo.Create(txCtx, refund); err != nil {
			return err
		}
		return ob.add(txCtx, types.WebhookEventPaymentRefunded, &webhook.PaymentEvent{
			Transaction: refund,
			InvoiceID:   charge.InvoiceID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("refunded payment",
		"payment_id", charge.ID,
		"refund_id", refund.ID,
		"amount", refund.Amount)

	return &dto.PaymentResponse{Transaction: refund}, nil
}

// invoiceCharges lists the collection attempts made for inv
func (s *paymentService) invoiceCharges(ctx context.Context, inv *invoice.Invoice) ([]*payment.Transaction, error) {
	txns, err := s.PaymentRepo.List(ctx, &types.PaymentFilter{
		QueryFilter: types.QueryFilter{Limit: types.MaxFilterLimit},
		InvoiceID:   inv.ID,
	})
	if err != nil {
		return nil, err
	}
	return lo.Filter(txns, func(t *payment.Transaction, _ int) bool {
		return t.Kind == types.TransactionKindCharge
	}), nil
}
