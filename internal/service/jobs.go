package service

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/flexbill/internal/api/dto"
	"github.com/flexprice/flexbill/internal/domain/invoice"
	"github.com/flexprice/flexbill/internal/domain/payment"
	"github.com/flexprice/flexbill/internal/domain/subscription"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/webhook"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
)

// pruneBatchSize bounds the subscriptions removed per tenant and run
const pruneBatchSize = 500

// expiredReason is recorded on charges that never settled within the pending TTL
const expiredReason = "expired"

// DeliverySweeper republishes outgoing deliveries whose next attempt is due
type DeliverySweeper interface {
	SweepDue(ctx context.Context) (int, error)
}

// JobService runs the scheduled billing sweeps
type JobService interface {
	// Run executes job for every tenant and aggregates the outcome
	Run(ctx context.Context, job string) (*dto.JobRunResponse, error)
	// RunForTenant executes job for the tenant in ctx and returns how many records it handled
	RunForTenant(ctx context.Context, job string) (int, error)
}

type jobService struct {
	ServiceParams
	sweeper DeliverySweeper
	jobs    map[string]func(ctx context.Context) (int, error)
}

func NewJobService(params ServiceParams, sweeper DeliverySweeper) JobService {
	s := &jobService{
		ServiceParams: params,
		sweeper:       sweeper,
	}
	s.jobs = map[string]func(ctx context.Context) (int, error){
		types.JobTrialExpiration:    s.expireTrials,
		types.JobRenewalDue:         s.renewDue,
		types.JobPaymentRetry:       s.retryFailedPayments,
		types.JobPendingTransaction: s.pollPendingTransactions,
		types.JobGracePeriodExpiry:  s.expireGracePeriods,
		types.JobScheduledCancel:    s.cancelScheduled,
		types.JobPendingInvoices:    s.invoicePendingSubscriptions,
		types.JobDeliveryRetry:      s.retryDeliveries,
		types.JobPrune:              s.prune,
	}
	return s
}

func (s *jobService) Run(ctx context.Context, job string) (*dto.JobRunResponse, error) {
	if _, ok := s.jobs[job]; !ok {
		return nil, unknownJob(job)
	}

	start := time.Now()
	apps, err := s.AppRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	resp := &dto.JobRunResponse{Job: job, Tenants: len(apps)}

	p := pool.New().WithMaxGoroutines(s.workers())
	for _, a := range apps {
		tenantID := a.TenantID
		p.Go(func() {
			items, err := s.RunForTenant(types.SetTenantID(ctx, tenantID), job)

			mu.Lock()
			defer mu.Unlock()
			resp.Items += items
			if err != nil {
				resp.Errors++
				s.Logger.Errorw("scheduled job failed for tenant",
					"job", job,
					"tenant_id", tenantID,
					"error", err)
			}
		})
	}
	p.Wait()

	outcome := lo.Ternary(resp.Errors == 0, "success", "error")
	s.Metrics.RecordJobRun(job, outcome, resp.Items, time.Since(start))
	s.Logger.Infow("scheduled job finished",
		"job", job,
		"tenants", resp.Tenants,
		"items", resp.Items,
		"errors", resp.Errors,
		"duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

func (s *jobService) RunForTenant(ctx context.Context, job string) (int, error) {
	fn, ok := s.jobs[job]
	if !ok {
		return 0, unknownJob(job)
	}
	return fn(ctx)
}

func (s *jobService) workers() int {
	if s.Config == nil || s.Config.Scheduler.Workers <= 0 {
		return 1
	}
	return s.Config.Scheduler.Workers
}

func unknownJob(job string) error {
	return ierr.NewError("unknown job").
		WithHintf("Job %s does not exist", job).
		WithReportableDetails(map[string]any{
			"job":  job,
			"jobs": types.JobNames,
		}).
		Mark(ierr.ErrNotFound)
}

// forEach applies fn to every item and counts those it handled. One failing
// item is logged and does not stop the sweep, the first error is returned.
func forEach[T any](s *jobService, job string, items []T, id func(T) string, fn func(T) (bool, error)) (int, error) {
	var (
		handled  int
		firstErr error
	)
	for _, item := range items {
		ok, err := fn(item)
		if err != nil {
			s.Logger.Errorw("scheduled job item failed",
				"job", job,
				"id", id(item),
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			handled++
		}
	}
	return handled, firstErr
}

func subID(sub *subscription.Subscription) string { return sub.ID }
func invID(inv *invoice.Invoice) string          { return inv.ID }
func txnID(txn *payment.Transaction) string      { return txn.ID }

func (s *jobService) subscriptionService() *subscriptionService {
	return &subscriptionService{ServiceParams: s.ServiceParams}
}

func (s *jobService) invoiceService() *invoiceService {
	return &invoiceService{ServiceParams: s.ServiceParams}
}

// expireTrials issues the first paid invoice of every trial that ended
func (s *jobService) expireTrials(ctx context.Context) (int, error) {
	now := s.now()
	subs, err := s.subscriptionService().listAll(ctx, &types.SubscriptionFilter{
		Statuses:        []types.SubscriptionStatus{types.SubscriptionStatusTrialing},
		TrialEndsBefore: lo.ToPtr(now),
	})
	if err != nil {
		return 0, err
	}

	return forEach(s, types.JobTrialExpiration, subs, subID, func(sub *subscription.Subscription) (bool, error) {
		if !sub.TrialEnded(now) {
			return false, nil
		}
		var created bool
		err := s.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
			inv, ok, err := s.invoiceService().generate(txCtx, ob, sub, trialConversionPeriod(sub))
			if err != nil || !ok {
				return err
			}
			created = true
			if err := ob.add(txCtx, types.WebhookEventSubscriptionTrialExpired, &webhook.SubscriptionEvent{
				Subscription: sub,
			}); err != nil {
				return err
			}
			return s.subscriptionService().settleIssuedInvoice(txCtx, ob, inv)
		})
		return created, err
	})
}

// renewDue closes every billing period that ended and invoices the next one
func (s *jobService) renewDue(ctx context.Context) (int, error) {
	now := s.now()
	subs, err := s.subscriptionService().listAll(ctx, &types.SubscriptionFilter{
		Statuses: []types.SubscriptionStatus{
			types.SubscriptionStatusActive,
			types.SubscriptionStatusPastDue,
		},
		PeriodEndBefore:   lo.ToPtr(now),
		CancelAtPeriodEnd: lo.ToPtr(false),
	})
	if err != nil {
		return 0, err
	}

	return forEach(s, types.JobRenewalDue, subs, subID, func(sub *subscription.Subscription) (bool, error) {
		return s.closePeriod(ctx, sub.ID, now)
	})
}

// cancelScheduled terminates subscriptions flagged to cancel once their period ended
func (s *jobService) cancelScheduled(ctx context.Context) (int, error) {
	now := s.now()
	subs, err := s.subscriptionService().listAll(ctx, &types.SubscriptionFilter{
		Statuses: []types.SubscriptionStatus{
			types.SubscriptionStatusActive,
			types.SubscriptionStatusTrialing,
			types.SubscriptionStatusPastDue,
			types.SubscriptionStatusPaused,
		},
		PeriodEndBefore:   lo.ToPtr(now),
		CancelAtPeriodEnd: lo.ToPtr(true),
	})
	if err != nil {
		return 0, err
	}

	return forEach(s, types.JobScheduledCancel, subs, subID, func(sub *subscription.Subscription) (bool, error) {
		return s.closePeriod(ctx, sub.ID, now)
	})
}

// closePeriod applies the period end rules to one subscription and issues the
// renewal invoice when it renews. It reports whether anything happened.
func (s *jobService) closePeriod(ctx context.Context, id string, now time.Time) (bool, error) {
	var handled bool
	err := s.retryOnConflict(ctx, "end_period", func() error {
		handled = false
		return s.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
			sub, err := s.SubRepo.Get(txCtx, id)
			if err != nil {
				return err
			}

			t, renewable, err := sub.EndPeriod(now)
			if err != nil {
				return err
			}
			if t.Changed() {
				sub.UpdatedAt = s.now()
				if err := s.SubRepo.Update(txCtx, sub); err != nil {
					return err
				}
				handled = true
				if err := ob.transition(txCtx, sub, t); err != nil {
					return err
				}
			}
			if !renewable {
				return nil
			}

			inv, created, err := s.invoiceService().generate(txCtx, ob, sub, renewalPeriod(sub))
			if err != nil || !created {
				return err
			}
			handled = true
			return s.subscriptionService().settleIssuedInvoice(txCtx, ob, inv)
		})
	})
	return handled, err
}

// invoicePendingSubscriptions makes sure every subscription waiting for its
// first payment has an invoice to pay
func (s *jobService) invoicePendingSubscriptions(ctx context.Context) (int, error) {
	subs, err := s.subscriptionService().listAll(ctx, &types.SubscriptionFilter{
		Statuses: []types.SubscriptionStatus{types.SubscriptionStatusPendingPayment},
	})
	if err != nil {
		return 0, err
	}

	return forEach(s, types.JobPendingInvoices, subs, subID, func(sub *subscription.Subscription) (bool, error) {
		var issued bool
		err := s.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
			before := len(ob.ids)
			if _, err := s.subscriptionService().generateFirstInvoice(txCtx, ob, sub); err != nil {
				return err
			}
			issued = len(ob.ids) > before
			return nil
		})
		return issued, err
	})
}

// retryFailedPayments starts a new collection attempt for failed invoices
// until the retry allowance is used up
func (s *jobService) retryFailedPayments(ctx context.Context) (int, error) {
	invoices, err := s.listInvoices(ctx, &types.InvoiceFilter{
		Statuses: []types.InvoiceStatus{types.InvoiceStatusFailed},
	})
	if err != nil {
		return 0, err
	}

	maxRetries := s.Config.Billing.MaxPaymentRetries
	payments := &paymentService{ServiceParams: s.ServiceParams}

	return forEach(s, types.JobPaymentRetry, invoices, invID, func(inv *invoice.Invoice) (bool, error) {
		charges, err := payments.invoiceCharges(ctx, inv)
		if err != nil {
			return false, err
		}
		if lo.SomeBy(charges, func(t *payment.Transaction) bool { return t.PaymentStatus.IsOpen() }) {
			return false, nil
		}

		failed := lo.Filter(charges, func(t *payment.Transaction, _ int) bool {
			return t.PaymentStatus == types.PaymentStatusFailed
		})
		if len(failed) == 0 || len(failed) > maxRetries {
			return false, nil
		}

		last := lo.MaxBy(failed, func(a, b *payment.Transaction) bool { return a.CreatedAt.After(b.CreatedAt) })
		resp, err := payments.InitiatePayment(ctx, dto.InitiatePaymentRequest{
			InvoiceID: inv.ID,
			Provider:  last.Provider,
		})
		if err != nil {
			return false, err
		}

		s.Logger.Infow("retrying failed payment",
			"invoice_id", inv.ID,
			"payment_id", resp.ID,
			"provider", last.Provider,
			"attempt", len(failed)+1)

		return true, s.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
			return ob.add(txCtx, types.WebhookEventPaymentDue, &webhook.InvoiceEvent{Invoice: inv})
		})
	})
}

// pollPendingTransactions asks providers about charges that never got a
// callback and expires those open past the pending TTL
func (s *jobService) pollPendingTransactions(ctx context.Context) (int, error) {
	txns, err := s.PaymentRepo.List(ctx, &types.PaymentFilter{
		QueryFilter: types.QueryFilter{Limit: types.MaxFilterLimit},
		Statuses: []types.PaymentStatus{
			types.PaymentStatusPending,
			types.PaymentStatusInitiated,
			types.PaymentStatusProcessing,
		},
	})
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.Config.Billing.PendingPaymentTTL)
	charges := lo.Filter(txns, func(t *payment.Transaction, _ int) bool {
		return t.Kind == types.TransactionKindCharge
	})

	return forEach(s, types.JobPendingTransaction, charges, txnID, func(txn *payment.Transaction) (bool, error) {
		if txn.ProviderTransactionID != "" {
			applied, err := s.pollTransaction(ctx, txn)
			if err != nil || applied {
				return applied, err
			}
		}
		if !txn.CreatedAt.Before(cutoff) {
			return false, nil
		}
		return s.expireTransaction(ctx, txn.ID)
	})
}

func (s *jobService) pollTransaction(ctx context.Context, txn *payment.Transaction) (bool, error) {
	adapter, err := s.IntegrationFactory.GetAdapter(ctx, txn.Provider)
	if err != nil {
		return false, err
	}
	status, err := adapter.GetPaymentStatus(ctx, txn.ProviderTransactionID)
	if err != nil {
		return false, err
	}
	if !status.Status.IsTerminal() && status.Status != types.PaymentStatusFailed {
		return false, nil
	}
	return s.settle(ctx, txn.ID, settlementFromStatus(status))
}

// expireTransaction closes an abandoned charge. It does not count as a
// payment failure against the subscription.
func (s *jobService) expireTransaction(ctx context.Context, id string) (bool, error) {
	txn, err := s.PaymentRepo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !txn.PaymentStatus.IsOpen() {
		return false, nil
	}

	txn.PaymentStatus = types.PaymentStatusFailed
	txn.FailureReason = expiredReason
	txn.UpdatedAt = s.now()
	if err := s.PaymentRepo.Update(ctx, txn); err != nil {
		if ierr.IsTerminalState(err) {
			return false, nil
		}
		return false, err
	}

	s.Logger.Infow("expired pending payment",
		"payment_id", txn.ID,
		"invoice_id", txn.InvoiceID,
		"provider", txn.Provider)
	return true, nil
}

// expireGracePeriods moves subscriptions with an overdue invoice to past_due
func (s *jobService) expireGracePeriods(ctx context.Context) (int, error) {
	invoices, err := s.listInvoices(ctx, &types.InvoiceFilter{
		Statuses:  []types.InvoiceStatus{types.InvoiceStatusOpen, types.InvoiceStatusFailed},
		DueBefore: lo.ToPtr(s.now()),
	})
	if err != nil {
		return 0, err
	}

	return forEach(s, types.JobGracePeriodExpiry, invoices, invID, func(inv *invoice.Invoice) (bool, error) {
		var moved bool
		err := s.retryOnConflict(ctx, "grace_period_expiry", func() error {
			moved = false
			return s.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
				sub, err := s.SubRepo.Get(txCtx, inv.SubscriptionID)
				if err != nil {
					return err
				}
				if sub.SubscriptionStatus != types.SubscriptionStatusActive {
					if sub.SubscriptionStatus == types.SubscriptionStatusPastDue {
						s.Logger.Debugw("subscription already past due",
							"subscription_id", sub.ID,
							"invoice_id", inv.ID)
					}
					return nil
				}

				t, err := sub.MarkPastDue()
				if err != nil {
					return err
				}
				sub.UpdatedAt = s.now()
				if err := s.SubRepo.Update(txCtx, sub); err != nil {
					return err
				}
				moved = true
				return ob.transition(txCtx, sub, t)
			})
		})
		return moved, err
	})
}

func (s *jobService) retryDeliveries(ctx context.Context) (int, error) {
	if s.sweeper == nil {
		return 0, nil
	}
	return s.sweeper.SweepDue(ctx)
}

func (s *jobService) prune(ctx context.Context) (int, error) {
	if s.Config.Billing.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -s.Config.Billing.RetentionDays)
	return s.CleanupRepo.PruneSubscriptions(ctx, cutoff, pruneBatchSize)
}

// listInvoices pages through every invoice matching filter
func (s *jobService) listInvoices(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	var all []*invoice.Invoice
	filter.Limit = types.MaxFilterLimit
	for offset := 0; ; offset += types.MaxFilterLimit {
		filter.Offset = offset
		page, err := s.InvoiceRepo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < types.MaxFilterLimit {
			return all, nil
		}
	}
}
