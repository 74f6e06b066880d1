package service

import (
	"context"
	"fmt"
	"time"

	"github.com/flexprice/flexbill/internal/api/dto"
	"github.com/flexprice/flexbill/internal/domain/invoice"
	"github.com/flexprice/flexbill/internal/domain/plan"
	"github.com/flexprice/flexbill/internal/domain/subscription"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/idempotency"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/webhook"
	"github.com/samber/lo"
)

type InvoiceService interface {
	// GenerateForPeriod issues the invoice of sub for [start, end), billing usage
	// recorded in the same window. A period that was already invoiced returns
	// the existing invoice unchanged.
	GenerateForPeriod(ctx context.Context, sub *subscription.Subscription, start, end time.Time) (*invoice.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error)
}

type invoiceService struct {
	ServiceParams
}

func NewInvoiceService(params ServiceParams) InvoiceService {
	return &invoiceService{
		ServiceParams: params,
	}
}

// billingPeriod is the service period an invoice covers and the window its
// usage is aggregated over. Base charges are billed in advance and usage in
// arrears, so the two differ on renewals.
type billingPeriod struct {
	Start     time.Time
	End       time.Time
	UsageFrom time.Time
	UsageTo   time.Time
}

func samePeriod(start, end time.Time) billingPeriod {
	return billingPeriod{Start: start, End: end, UsageFrom: start, UsageTo: end}
}

func (s *invoiceService) GenerateForPeriod(ctx context.Context, sub *subscription.Subscription, start, end time.Time) (*invoice.Invoice, error) {
	var inv *invoice.Invoice
	err := s.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
		var err error
		inv, _, err = s.generate(txCtx, ob, sub, samePeriod(start, end))
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// generate issues the invoice of sub for period inside the caller's
// transaction. It reports whether a new invoice was created.
func (s *invoiceService) generate(ctx context.Context, ob *eventBatch, sub *subscription.Subscription, period billingPeriod) (*invoice.Invoice, bool, error) {
	start, end := period.Start.UTC(), period.End.UTC()
	key := s.IdempotencyGen.GenerateKey(idempotency.ScopeSubscriptionInvoice, map[string]interface{}{
		"subscription_id": sub.ID,
		"period_start":    start.Format(time.RFC3339),
	})

	existing, err := s.InvoiceRepo.GetByIdempotencyKey(ctx, key)
	if err == nil {
		s.Logger.Debugw("invoice already generated for period",
			"subscription_id", sub.ID,
			"invoice_id", existing.ID,
			"period_start", start)
		return existing, false, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, false, err
	}

	now := s.now()
	lineItems, err := s.buildLineItems(ctx, sub, period)
	if err != nil {
		return nil, false, err
	}

	seq, err := s.InvoiceSequenceRepo.Next(ctx, now.Year())
	if err != nil {
		return nil, false, err
	}

	// grace runs from the end of the period this invoice closes
	dueDate, err := s.dueDate(ctx, period.UsageTo.UTC())
	if err != nil {
		return nil, false, err
	}

	inv := &invoice.Invoice{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		SubscriptionID: sub.ID,
		CustomerID:     sub.CustomerID,
		InvoiceNumber:  types.FormatInvoiceNumber(now.Year(), seq),
		IdempotencyKey: key,
		PeriodStart:    start,
		PeriodEnd:      end,
		DueDate:        dueDate,
		Currency:       sub.Currency,
		InvoiceStatus:  types.InvoiceStatusOpen,
		LineItems:      lineItems,
		Version:        1,
		BaseModel:      s.baseModel(ctx),
	}
	for _, li := range inv.LineItems {
		li.InvoiceID = inv.ID
	}
	inv.AmountDue = inv.Total()

	// nothing to collect, the invoice is settled on issue
	if inv.AmountDue == 0 {
		inv.InvoiceStatus = types.InvoiceStatusPaid
		inv.PaidAt = lo.ToPtr(now)
	}

	if err := inv.Validate(); err != nil {
		return nil, false, err
	}

	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		if ierr.IsAlreadyExists(err) {
			existing, getErr := s.InvoiceRepo.GetByIdempotencyKey(ctx, key)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	s.Logger.Infow("generated invoice",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"subscription_id", sub.ID,
		"amount_due", inv.AmountDue,
		"currency", inv.Currency,
		"period_start", start,
		"period_end", end)

	if err := ob.add(ctx, types.WebhookEventInvoiceCreated, &webhook.InvoiceEvent{Invoice: inv}); err != nil {
		return nil, false, err
	}
	if inv.IsPaid() {
		if err := ob.add(ctx, types.WebhookEventInvoicePaid, &webhook.InvoiceEvent{Invoice: inv}); err != nil {
			return nil, false, err
		}
	}
	return inv, true, nil
}

// buildLineItems prices the subscription's snapshot for period:
// flat bills the base amount, usage bills units above the free allowance and
// hybrid bills both, dropping a zero usage line.
func (s *invoiceService) buildLineItems(ctx context.Context, sub *subscription.Subscription, period billingPeriod) ([]*invoice.LineItem, error) {
	snapshot := sub.PlanSnapshot
	items := make([]*invoice.LineItem, 0, 2)

	if snapshot.PricingModel.HasBase() {
		items = append(items, s.newLineItem(ctx,
			fmt.Sprintf("%s (%s)", snapshot.Name, snapshot.BillingInterval),
			1, snapshot.BaseAmount, types.InvoiceLineItemTypePlan))
	}

	if snapshot.PricingModel.HasUsage() {
		billable, err := s.billableUnits(ctx, sub.ID, snapshot, period)
		if err != nil {
			return nil, err
		}
		if snapshot.PricingModel == types.PricingModelUsage || billable > 0 {
			items = append(items, s.newLineItem(ctx,
				fmt.Sprintf("%s usage", snapshot.UsageMetric),
				billable, snapshot.UnitPrice, types.InvoiceLineItemTypeUsage))
		}
	}

	if len(items) == 0 {
		return nil, ierr.NewError("plan has no billable components").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"pricing_model":   snapshot.PricingModel,
			}).
			Mark(ierr.ErrValidation)
	}
	return items, nil
}

func (s *invoiceService) billableUnits(ctx context.Context, subscriptionID string, snapshot plan.Snapshot, period billingPeriod) (int64, error) {
	if !period.UsageTo.After(period.UsageFrom) {
		return 0, nil
	}
	total, err := s.UsageRepo.SumQuantity(ctx, &types.UsageFilter{
		SubscriptionID: subscriptionID,
		Metric:         snapshot.UsageMetric,
		From:           period.UsageFrom,
		To:             period.UsageTo,
	})
	if err != nil {
		return 0, err
	}
	return max(0, total-snapshot.FreeUnits), nil
}

func (s *invoiceService) newLineItem(ctx context.Context, description string, quantity, unitAmount int64, lineType types.InvoiceLineItemType) *invoice.LineItem {
	return &invoice.LineItem{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_LINE),
		Description: description,
		Quantity:    quantity,
		UnitAmount:  unitAmount,
		TotalAmount: quantity * unitAmount,
		LineType:    lineType,
		BaseModel:   s.baseModel(ctx),
	}
}

// gracePeriodDays reads the tenant's grace period, falling back to the
// configured default for tenants without settings
func (s *invoiceService) dueDate(ctx context.Context, periodEnd time.Time) (time.Time, error) {
	a, err := s.AppRepo.Get(ctx)
	if err != nil {
		if ierr.IsNotFound(err) {
			return periodEnd.AddDate(0, 0, s.Config.Billing.DefaultGracePeriodDays), nil
		}
		return time.Time{}, err
	}
	return a.DueDate(periodEnd), nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.InvoiceResponse{Invoice: inv}, nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error) {
	if filter == nil {
		filter = &types.InvoiceFilter{}
	}
	invoices, err := s.InvoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := lo.Map(invoices, func(inv *invoice.Invoice, _ int) *dto.InvoiceResponse {
		return &dto.InvoiceResponse{Invoice: inv}
	})
	return dto.NewListResponse(items, filter.QueryFilter), nil
}
