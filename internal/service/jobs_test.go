package service

import (
	"context"
	"testing"
	"time"

	"github.com/flexprice/flexbill/internal/api/dto"
	"github.com/flexprice/flexbill/internal/domain/app"
	"github.com/flexprice/flexbill/internal/domain/customer"
	"github.com/flexprice/flexbill/internal/domain/payment"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type JobServiceSuite struct {
	billingSuite
	jobs JobService
}

func TestJobService(t *testing.T) {
	suite.Run(t, new(JobServiceSuite))
}

type countingSweeper struct {
	calls int
}

func (c *countingSweeper) SweepDue(ctx context.Context) (int, error) {
	c.calls++
	return 2, nil
}

func (s *JobServiceSuite) SetupTest() {
	s.billingSuite.SetupTest()
	s.jobs = NewJobService(s.params, nil)
}

func (s *JobServiceSuite) run(job string) int {
	n, err := s.jobs.RunForTenant(s.GetContext(), job)
	s.Require().NoError(err)
	return n
}

func (s *JobServiceSuite) activeFlatSubscription() *dto.SubscriptionResponse {
	p := s.createPlan(types.PricingModelFlat, 2900, 0, 0, 0)
	resp := s.subscribe(s.createCustomer("c1"), p)
	s.activate(resp, s.GetNow())
	return resp
}

func (s *JobServiceSuite) TestRenewalIssuesOneInvoicePerPeriod() {
	resp := s.activeFlatSubscription()
	sub := s.getSubscription(resp.ID)

	s.SetNow(sub.CurrentPeriodEnd.Add(-time.Minute))
	s.Equal(0, s.run(types.JobRenewalDue))

	s.SetNow(sub.CurrentPeriodEnd.Add(time.Minute))
	s.Equal(1, s.run(types.JobRenewalDue))
	s.Equal(0, s.run(types.JobRenewalDue))

	invoices := s.subscriptionInvoices(sub.ID)
	s.Require().Len(invoices, 2)
	renewal := invoices[1]
	s.True(renewal.PeriodStart.Equal(*sub.CurrentPeriodEnd))
	s.True(renewal.DueDate.Equal(sub.CurrentPeriodEnd.AddDate(0, 0, types.DefaultGracePeriodDays)))
	s.Equal(types.InvoiceStatusOpen, renewal.InvoiceStatus)
	s.Contains(s.events(), types.WebhookEventPaymentDue)

	// the subscription keeps its status until the renewal is paid
	s.Equal(types.SubscriptionStatusActive, s.getSubscription(sub.ID).SubscriptionStatus)
}

func (s *JobServiceSuite) TestTrialExpirationIssuesConversionInvoice() {
	p := s.createPlan(types.PricingModelFlat, 1500, 0, 0, 14)
	resp := s.subscribe(s.createCustomer("c1"), p)
	s.Equal(types.SubscriptionStatusTrialing, resp.SubscriptionStatus)
	s.Nil(resp.LatestInvoice)
	trialEnd := *resp.TrialEndsAt

	s.Equal(0, s.run(types.JobTrialExpiration))

	s.SetNow(trialEnd.Add(time.Hour))
	s.Equal(1, s.run(types.JobTrialExpiration))
	s.Equal(0, s.run(types.JobTrialExpiration))

	invoices := s.subscriptionInvoices(resp.ID)
	s.Require().Len(invoices, 1)
	s.True(invoices[0].PeriodStart.Equal(trialEnd))
	s.Equal(int64(1500), invoices[0].AmountDue)

	events := s.events()
	s.Contains(events, types.WebhookEventSubscriptionTrialExpired)
	s.Contains(events, types.WebhookEventPaymentDue)
	s.Equal(types.SubscriptionStatusTrialing, s.getSubscription(resp.ID).SubscriptionStatus)

	paidAt := s.GetNow()
	txn := s.getPayment(s.initiate(invoices[0]).ID)
	_, err := s.callback("evt_trial_paid", txn, types.PaymentStatusSuccess, paidAt)
	s.Require().NoError(err)

	sub := s.getSubscription(resp.ID)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.Nil(sub.TrialEndsAt)
	s.True(sub.CurrentPeriodStart.Equal(paidAt))
}

func (s *JobServiceSuite) TestFreeTrialConversionActivatesOnIssue() {
	p := s.createPlan(types.PricingModelUsage, 0, 5, 0, 7)
	resp := s.subscribe(s.createCustomer("c1"), p)
	s.Equal(types.SubscriptionStatusTrialing, resp.SubscriptionStatus)

	// trial usage is free
	_, err := NewUsageService(s.params).IngestEvent(s.GetContext(), ingestRequest(resp.ID, "trial_usage", 50, s.GetNow().Add(time.Hour)))
	s.Require().NoError(err)

	s.SetNow(resp.TrialEndsAt.Add(time.Minute))
	s.Equal(1, s.run(types.JobTrialExpiration))

	invoices := s.subscriptionInvoices(resp.ID)
	s.Require().Len(invoices, 1)
	s.Equal(int64(0), invoices[0].AmountDue)
	s.Equal(types.InvoiceStatusPaid, invoices[0].InvoiceStatus)
	s.Equal(types.SubscriptionStatusActive, s.getSubscription(resp.ID).SubscriptionStatus)
	s.Contains(s.events(), types.WebhookEventSubscriptionActivated)
}

func (s *JobServiceSuite) TestGracePeriodExpiryMovesToPastDue() {
	resp := s.activeFlatSubscription()
	sub := s.getSubscription(resp.ID)
	periodEnd := *sub.CurrentPeriodEnd

	s.SetNow(periodEnd.Add(time.Minute))
	s.Equal(1, s.run(types.JobRenewalDue))

	s.SetNow(periodEnd.AddDate(0, 0, types.DefaultGracePeriodDays-1))
	s.Equal(0, s.run(types.JobGracePeriodExpiry))
	s.Equal(types.SubscriptionStatusActive, s.getSubscription(sub.ID).SubscriptionStatus)

	s.SetNow(periodEnd.AddDate(0, 0, types.DefaultGracePeriodDays).Add(time.Hour))
	s.Equal(1, s.run(types.JobGracePeriodExpiry))
	s.Equal(types.SubscriptionStatusPastDue, s.getSubscription(sub.ID).SubscriptionStatus)
	s.Contains(s.events(), types.WebhookEventSubscriptionPastDue)

	// already past due, nothing escalates further
	s.Equal(0, s.run(types.JobGracePeriodExpiry))
	s.Equal(types.SubscriptionStatusPastDue, s.getSubscription(sub.ID).SubscriptionStatus)
}

func (s *JobServiceSuite) TestPendingTransactionSettledByPolling() {
	p := s.createPlan(types.PricingModelFlat, 2900, 0, 0, 0)
	resp := s.subscribe(s.createCustomer("c1"), p)
	txn := s.getPayment(s.initiate(resp.LatestInvoice).ID)

	s.Equal(0, s.run(types.JobPendingTransaction))

	paidAt := s.GetNow().Add(10 * time.Minute)
	s.GetAdapter().Statuses[txn.ProviderTransactionID] = &base.StatusResult{
		TransactionID: txn.ProviderTransactionID,
		Status:        types.PaymentStatusSuccess,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		PaidAt:        &paidAt,
	}
	s.SetNow(paidAt.Add(time.Hour))
	s.Equal(1, s.run(types.JobPendingTransaction))

	s.Equal(types.PaymentStatusSuccess, s.getPayment(txn.ID).PaymentStatus)
	sub := s.getSubscription(resp.ID)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.True(sub.CurrentPeriodStart.Equal(paidAt))
}

func (s *JobServiceSuite) TestPendingTransactionExpiresAfterTTL() {
	p := s.createPlan(types.PricingModelFlat, 2900, 0, 0, 0)
	resp := s.subscribe(s.createCustomer("c1"), p)
	txn := s.getPayment(s.initiate(resp.LatestInvoice).ID)

	s.SetNow(txn.CreatedAt.Add(s.GetConfig().Billing.PendingPaymentTTL - time.Minute))
	s.Equal(0, s.run(types.JobPendingTransaction))

	s.SetNow(txn.CreatedAt.Add(s.GetConfig().Billing.PendingPaymentTTL + time.Minute))
	s.Equal(1, s.run(types.JobPendingTransaction))

	expired := s.getPayment(txn.ID)
	s.Equal(types.PaymentStatusFailed, expired.PaymentStatus)
	s.Equal(expiredReason, expired.FailureReason)

	sub := s.getSubscription(resp.ID)
	s.Equal(0, sub.FailedPaymentAttempts)
	s.Equal(types.SubscriptionStatusPendingPayment, sub.SubscriptionStatus)
	s.Equal(types.InvoiceStatusOpen, s.getInvoice(resp.LatestInvoice.ID).InvoiceStatus)
}

func (s *JobServiceSuite) TestScheduledCancellation() {
	resp := s.activeFlatSubscription()
	_, err := NewSubscriptionService(s.params).CancelSubscription(s.GetContext(), resp.ID, dto.CancelSubscriptionRequest{})
	s.Require().NoError(err)

	sub := s.getSubscription(resp.ID)
	s.True(sub.CancelAtPeriodEnd)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)

	s.SetNow(sub.CurrentPeriodEnd.Add(time.Minute))
	s.Equal(0, s.run(types.JobRenewalDue))
	s.Equal(1, s.run(types.JobScheduledCancel))

	cancelled := s.getSubscription(resp.ID)
	s.Equal(types.SubscriptionStatusCancelled, cancelled.SubscriptionStatus)
	s.NotNil(cancelled.CancelledAt)
	s.Len(s.subscriptionInvoices(resp.ID), 1)
	s.Contains(s.events(), types.WebhookEventSubscriptionCancelled)
}

func (s *JobServiceSuite) TestPaymentRetryStopsAtAllowance() {
	cfg := s.GetConfig()
	maxRetries := cfg.Billing.MaxPaymentRetries
	cfg.Billing.MaxPaymentRetries = 1
	defer func() { cfg.Billing.MaxPaymentRetries = maxRetries }()

	resp := s.activeFlatSubscription()
	sub := s.getSubscription(resp.ID)
	s.SetNow(sub.CurrentPeriodEnd.Add(time.Minute))
	s.Equal(1, s.run(types.JobRenewalDue))
	renewal := s.subscriptionInvoices(sub.ID)[1]

	first := s.getPayment(s.initiate(renewal).ID)
	_, err := s.callback("evt_retry_1", first, types.PaymentStatusFailed, s.GetNow())
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusFailed, s.getInvoice(renewal.ID).InvoiceStatus)

	s.Equal(1, s.run(types.JobPaymentRetry))
	// the retried attempt is still open
	s.Equal(0, s.run(types.JobPaymentRetry))

	charges, err := s.GetStores().PaymentRepo.List(s.GetContext(), &types.PaymentFilter{
		QueryFilter: types.QueryFilter{Limit: types.MaxFilterLimit},
		InvoiceID:   renewal.ID,
	})
	s.Require().NoError(err)
	s.Require().Len(charges, 2)
	retry, ok := lo.Find(charges, func(t *payment.Transaction) bool { return t.ID != first.ID })
	s.Require().True(ok)
	s.True(retry.PaymentStatus.IsOpen())
	s.Equal(first.Provider, retry.Provider)

	_, err = s.callback("evt_retry_2", retry, types.PaymentStatusFailed, s.GetNow())
	s.Require().NoError(err)
	s.Equal(0, s.run(types.JobPaymentRetry))
	s.Equal(2, s.getSubscription(sub.ID).FailedPaymentAttempts)
}

func (s *JobServiceSuite) TestPendingInvoicesBackfillsMissingInvoice() {
	p := s.createPlan(types.PricingModelFlat, 2900, 0, 0, 0)
	resp := s.subscribe(s.createCustomer("c1"), p)
	s.Require().NoError(s.GetStores().InvoiceRepo.InMemoryStore.Delete(s.GetContext(), resp.LatestInvoice.ID))

	s.Equal(1, s.run(types.JobPendingInvoices))
	s.Equal(0, s.run(types.JobPendingInvoices))
	s.Len(s.subscriptionInvoices(resp.ID), 1)
}

func (s *JobServiceSuite) TestPruneRemovesExpiredTerminalSubscriptions() {
	resp := s.activeFlatSubscription()
	_, err := NewSubscriptionService(s.params).CancelSubscription(s.GetContext(), resp.ID, dto.CancelSubscriptionRequest{Immediately: true})
	s.Require().NoError(err)

	s.Equal(0, s.run(types.JobPrune))

	s.AdvanceTime(time.Duration(s.GetConfig().Billing.RetentionDays+1) * 24 * time.Hour)
	s.Equal(1, s.run(types.JobPrune))

	_, err = s.GetStores().SubscriptionRepo.Get(s.GetContext(), resp.ID)
	s.True(ierr.IsNotFound(err))
	s.Empty(s.subscriptionInvoices(resp.ID))
}

func (s *JobServiceSuite) TestDeliveryRetryUsesSweeper() {
	sweeper := &countingSweeper{}
	jobs := NewJobService(s.params, sweeper)

	n, err := jobs.RunForTenant(s.GetContext(), types.JobDeliveryRetry)
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Equal(1, sweeper.calls)
}

func (s *JobServiceSuite) TestRunCoversEveryTenant() {
	s.usageSubscription(s.GetContext())

	other := types.SetTenantID(s.GetContext(), "app_other")
	s.Require().NoError(s.GetStores().AppRepo.Create(other, &app.App{
		ID:              "app_other",
		Name:            "other app",
		GracePeriodDays: types.DefaultGracePeriodDays,
		BaseModel:       types.GetDefaultBaseModel(other),
	}))
	s.usageSubscription(other)

	s.AdvanceTime(32 * 24 * time.Hour)
	resp, err := s.jobs.Run(s.GetContext(), types.JobRenewalDue)
	s.Require().NoError(err)
	s.Equal(2, resp.Tenants)
	s.Equal(2, resp.Items)
	s.Equal(0, resp.Errors)
}

func (s *JobServiceSuite) TestUnknownJob() {
	_, err := s.jobs.Run(s.GetContext(), "compact_everything")
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))

	_, err = s.jobs.RunForTenant(s.GetContext(), "compact_everything")
	s.True(ierr.IsNotFound(err))
}

// usageSubscription subscribes a new customer of the tenant in ctx to a usage plan
func (s *JobServiceSuite) usageSubscription(ctx context.Context) {
	c := &customer.Customer{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CUSTOMER),
		ExternalID: types.GetTenantID(ctx),
		Name:       "usage customer",
		BaseModel:  types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().CustomerRepo.Create(ctx, c))

	req := dto.CreatePlanRequest{
		Name:            "metered",
		PricingModel:    types.PricingModelUsage,
		Currency:        "usd",
		BillingInterval: types.BillingIntervalMonthly,
		UnitPrice:       2,
		UsageMetric:     "api_calls",
	}
	p := req.ToPlan(ctx)
	s.Require().NoError(s.GetStores().PlanRepo.Create(ctx, p))

	_, err := NewSubscriptionService(s.params).CreateSubscription(ctx, dto.CreateSubscriptionRequest{
		CustomerID: c.ID,
		PlanID:     p.ID,
	})
	s.Require().NoError(err)
}
