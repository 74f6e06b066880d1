package service

import (
	"context"
	"sort"
	"time"

	"github.com/flexprice/flexbill/internal/api/dto"
	"github.com/flexprice/flexbill/internal/domain/invoice"
	"github.com/flexprice/flexbill/internal/domain/payment"
	"github.com/flexprice/flexbill/internal/domain/subscription"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/webhook"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type SubscriptionService interface {
	CreateSubscription(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	ListSubscriptions(ctx context.Context, filter *types.SubscriptionFilter) (*dto.ListSubscriptionsResponse, error)
	CancelSubscription(ctx context.Context, id string, req dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error)
	PauseSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	ResumeSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	ChangePlan(ctx context.Context, id string, req dto.ChangePlanRequest) (*dto.ChangePlanResponse, error)
	GetMRR(ctx context.Context) (*dto.MRRResponse, error)
}

type subscriptionService struct {
	ServiceParams
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
	}
}

func (s *subscriptionService) CreateSubscription(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cust, err := s.CustomerRepo.Get(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	p, err := s.PlanRepo.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive() {
		return nil, ierr.NewError("plan is not active").
			WithHint("Archived plans cannot be subscribed to").
			WithReportableDetails(map[string]any{"plan_id": p.ID}).
			Mark(ierr.ErrInvalidOperation)
	}

	if err := s.checkNoOpenSubscription(ctx, cust.ID); err != nil {
		return nil, err
	}

	now := s.now()
	sub, t := subscription.New(cust, p, now)
	sub.BaseModel = s.baseModel(ctx)

	resp := &dto.SubscriptionResponse{Subscription: sub}
	err = s.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
		if err := s.SubRepo.Create(txCtx, sub); err != nil {
			return err
		}
		if err := ob.transition(txCtx, sub, t); err != nil {
			return err
		}

		if sub.SubscriptionStatus != types.SubscriptionStatusPendingPayment {
			return nil
		}
		inv, err := s.generateFirstInvoice(txCtx, ob, sub)
		if err != nil {
			return err
		}
		resp.LatestInvoice = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("created subscription",
		"subscription_id", sub.ID,
		"customer_id", sub.CustomerID,
		"plan_id", sub.PlanID,
		"status", sub.SubscriptionStatus)

	if req.Provider != "" && resp.LatestInvoice != nil && resp.LatestInvoice.InvoiceStatus.IsPayable() {
		paymentService := NewPaymentService(s.ServiceParams)
		pay, err := paymentService.InitiatePayment(ctx, dto.InitiatePaymentRequest{
			InvoiceID: resp.LatestInvoice.ID,
			Provider:  req.Provider,
		})
		if err != nil {
			// the subscription stands, the invoice can be paid with a new attempt
			s.Logger.Warnw("failed to initiate first payment",
				"subscription_id", sub.ID,
				"invoice_id", resp.LatestInvoice.ID,
				"provider", req.Provider,
				"error", err)
		}
		resp.Payment = pay
	}

	return resp, nil
}

// checkNoOpenSubscription rejects a second open subscription for a customer.
// It only gives a friendly error, the unique index settles concurrent creates.
func (s *subscriptionService) checkNoOpenSubscription(ctx context.Context, customerID string) error {
	open, err := s.SubRepo.CountOpen(ctx, customerID)
	if err != nil {
		return err
	}

	if open > 0 {
		return ierr.NewError("customer already has a subscription").
			WithHint("A customer can have only one active subscription").
			WithReportableDetails(map[string]any{"customer_id": customerID}).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

// generateFirstInvoice bills the first period of a subscription waiting for
// payment. The period is anchored at creation so regeneration finds the same invoice.
func (s *subscriptionService) generateFirstInvoice(ctx context.Context, ob *eventBatch, sub *subscription.Subscription) (*invoice.Invoice, error) {
	start := sub.CreatedAt
	end := types.AddInterval(start, sub.PlanSnapshot.BillingInterval)

	invoiceService := &invoiceService{ServiceParams: s.ServiceParams}
	inv, created, err := invoiceService.generate(ctx, ob, sub, samePeriod(start, end))
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.settleIssuedInvoice(ctx, ob, inv); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

func (s *subscriptionService) GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) ListSubscriptions(ctx context.Context, filter *types.SubscriptionFilter) (*dto.ListSubscriptionsResponse, error) {
	if filter == nil {
		filter = &types.SubscriptionFilter{}
	}
	subs, err := s.SubRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := lo.Map(subs, func(sub *subscription.Subscription, _ int) *dto.SubscriptionResponse {
		return &dto.SubscriptionResponse{Subscription: sub}
	})
	return dto.NewListResponse(items, filter.QueryFilter), nil
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, id string, req dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	now := s.now()
	return s.mutate(ctx, id, "cancel", func(sub *subscription.Subscription) (subscription.Transition, error) {
		if req.Immediately {
			return sub.Cancel(now)
		}
		return sub.ScheduleCancel()
	})
}

func (s *subscriptionService) PauseSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	return s.mutate(ctx, id, "pause", func(sub *subscription.Subscription) (subscription.Transition, error) {
		return sub.Pause()
	})
}

func (s *subscriptionService) ResumeSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	return s.mutate(ctx, id, "resume", func(sub *subscription.Subscription) (subscription.Transition, error) {
		return sub.Resume()
	})
}

// mutate applies a user action to a freshly loaded subscription, replaying it
// when a concurrent writer bumped the version first
func (s *subscriptionService) mutate(
	ctx context.Context,
	id string,
	operation string,
	apply func(sub *subscription.Subscription) (subscription.Transition, error),
) (*dto.SubscriptionResponse, error) {
	var sub *subscription.Subscription
	err := s.retryOnConflict(ctx, operation, func() error {
		return s.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
			var err error
			sub, err = s.SubRepo.Get(txCtx, id)
			if err != nil {
				return err
			}

			t, err := apply(sub)
			if err != nil {
				return err
			}
			sub.UpdatedAt = s.now()
			sub.UpdatedBy = types.GetUserID(txCtx)
			if err := s.SubRepo.Update(txCtx, sub); err != nil {
				return err
			}
			return ob.transition(txCtx, sub, t)
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription updated",
		"subscription_id", sub.ID,
		"operation", operation,
		"status", sub.SubscriptionStatus)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) ChangePlan(ctx context.Context, id string, req dto.ChangePlanRequest) (*dto.ChangePlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	next, err := s.PlanRepo.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !next.IsActive() {
		return nil, ierr.NewError("plan is not active").
			WithHint("Archived plans cannot be subscribed to").
			WithReportableDetails(map[string]any{"plan_id": next.ID}).
			Mark(ierr.ErrInvalidOperation)
	}

	var (
		sub    *subscription.Subscription
		change *subscription.PlanChange
	)
	err = s.retryOnConflict(ctx, "change_plan", func() error {
		return s.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
			var err error
			sub, err = s.SubRepo.Get(txCtx, id)
			if err != nil {
				return err
			}

			change, err = sub.ChangePlan(next, s.now())
			if err != nil {
				return err
			}
			sub.UpdatedAt = s.now()
			sub.UpdatedBy = types.GetUserID(txCtx)
			if err := s.SubRepo.Update(txCtx, sub); err != nil {
				return err
			}

			return ob.add(txCtx, types.WebhookEventSubscriptionUpdated, &webhook.SubscriptionEvent{
				Subscription: sub,
				PlanChange:   change,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("changed subscription plan",
		"subscription_id", sub.ID,
		"old_plan_id", change.OldPlanID,
		"new_plan_id", change.NewPlanID,
		"upgrade", change.Upgrade,
		"prorated_amount", change.ProratedAmount)

	return &dto.ChangePlanResponse{Subscription: sub, PlanChange: change}, nil
}

// GetMRR sums the monthly normalized fixed charges of live subscriptions per currency
func (s *subscriptionService) GetMRR(ctx context.Context) (*dto.MRRResponse, error) {
	subs, err := s.listAll(ctx, &types.SubscriptionFilter{
		Statuses: types.LiveSubscriptionStatuses,
	})
	if err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	for _, sub := range subs {
		totals[sub.Currency] = totals[sub.Currency].Add(sub.PlanSnapshot.MonthlyAmount())
		counts[sub.Currency]++
	}

	resp := &dto.MRRResponse{
		Currencies:          make([]dto.CurrencyMRR, 0, len(totals)),
		ActiveSubscriptions: len(subs),
	}
	for currency, total := range totals {
		amount := total.Round(0).IntPart()
		resp.Currencies = append(resp.Currencies, dto.CurrencyMRR{
			Currency:      currency,
			Amount:        amount,
			DisplayAmount: base.ToMajor(amount, currency).StringFixed(base.CurrencyExponent(currency)),
			Subscriptions: counts[currency],
		})
	}
	sort.Slice(resp.Currencies, func(i, j int) bool {
		return resp.Currencies[i].Currency < resp.Currencies[j].Currency
	})
	return resp, nil
}

// listAll pages through every subscription matching filter
func (s *subscriptionService) listAll(ctx context.Context, filter *types.SubscriptionFilter) ([]*subscription.Subscription, error) {
	var all []*subscription.Subscription
	filter.Limit = types.MaxFilterLimit
	for offset := 0; ; offset += types.MaxFilterLimit {
		filter.Offset = offset
		page, err := s.SubRepo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < types.MaxFilterLimit {
			return all, nil
		}
	}
}

// applyPaymentSuccess drives the subscription of a newly paid invoice and
// enqueues the resulting events. paidAt anchors the new billing period.
func (s *subscriptionService) applyPaymentSuccess(ctx context.Context, ob *eventBatch, inv *invoice.Invoice, paidAt time.Time) (*subscription.Subscription, error) {
	sub, err := s.SubRepo.Get(ctx, inv.SubscriptionID)
	if err != nil {
		return nil, err
	}

	if sub.SubscriptionStatus.IsTerminal() {
		s.Logger.Warnw("payment received for a terminated subscription",
			"subscription_id", sub.ID,
			"invoice_id", inv.ID,
			"status", sub.SubscriptionStatus)
		return sub, nil
	}

	t, err := sub.ApplyPaymentSuccess(paidAt)
	if err != nil {
		return nil, err
	}
	sub.UpdatedAt = s.now()
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}
	if err := ob.transition(ctx, sub, t); err != nil {
		return nil, err
	}

	s.Logger.Infow("applied payment to subscription",
		"subscription_id", sub.ID,
		"invoice_id", inv.ID,
		"from", t.From,
		"to", t.To,
		"period_start", sub.CurrentPeriodStart,
		"period_end", sub.CurrentPeriodEnd)
	return sub, nil
}

// recordPaymentFailure counts a failed collection against the subscription
// and enqueues payment.failed along with any resulting transition
func (s *subscriptionService) recordPaymentFailure(ctx context.Context, ob *eventBatch, inv *invoice.Invoice, txn *payment.Transaction) (*subscription.Subscription, error) {
	sub, err := s.SubRepo.Get(ctx, inv.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.SubscriptionStatus.IsTerminal() {
		s.Logger.Warnw("payment failure for a terminated subscription ignored",
			"subscription_id", sub.ID,
			"invoice_id", inv.ID,
			"status", sub.SubscriptionStatus)
		return sub, nil
	}

	t, err := sub.ApplyPaymentFailure(s.failureThreshold())
	if err != nil {
		return nil, err
	}
	sub.UpdatedAt = s.now()
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	if err := ob.add(ctx, types.WebhookEventPaymentFailed, &webhook.PaymentEvent{
		Transaction:    txn,
		InvoiceID:      inv.ID,
		FailedAttempts: sub.FailedPaymentAttempts,
	}); err != nil {
		return nil, err
	}
	if err := ob.transition(ctx, sub, t); err != nil {
		return nil, err
	}

	s.Logger.Infow("recorded payment failure",
		"subscription_id", sub.ID,
		"invoice_id", inv.ID,
		"failed_attempts", sub.FailedPaymentAttempts,
		"status", sub.SubscriptionStatus)
	return sub, nil
}

// settleIssuedInvoice finishes a freshly generated invoice: a zero invoice is
// paid on issue and drives the subscription right away, anything else is due.
func (s *subscriptionService) settleIssuedInvoice(ctx context.Context, ob *eventBatch, inv *invoice.Invoice) error {
	if inv.IsPaid() {
		_, err := s.applyPaymentSuccess(ctx, ob, inv, lo.FromPtrOr(inv.PaidAt, s.now()))
		return err
	}
	return ob.add(ctx, types.WebhookEventPaymentDue, &webhook.InvoiceEvent{Invoice: inv})
}

// renewalPeriod is what the invoice closing the current period of sub covers:
// base charges for the next period in advance, usage for the closed period in arrears
func renewalPeriod(sub *subscription.Subscription) billingPeriod {
	closedStart, closedEnd := *sub.CurrentPeriodStart, *sub.CurrentPeriodEnd
	nextEnd := types.AddInterval(closedEnd, sub.PlanSnapshot.BillingInterval)

	switch sub.PlanSnapshot.PricingModel {
	case types.PricingModelUsage:
		return samePeriod(closedStart, closedEnd)
	case types.PricingModelHybrid:
		return billingPeriod{Start: closedEnd, End: nextEnd, UsageFrom: closedStart, UsageTo: closedEnd}
	default:
		return billingPeriod{Start: closedEnd, End: nextEnd, UsageFrom: closedEnd, UsageTo: closedEnd}
	}
}

// trialConversionPeriod is the first paid period after a trial. Usage during
// the trial is free.
func trialConversionPeriod(sub *subscription.Subscription) billingPeriod {
	start := *sub.TrialEndsAt
	end := types.AddInterval(start, sub.PlanSnapshot.BillingInterval)
	return billingPeriod{Start: start, End: end, UsageFrom: start, UsageTo: start}
}
