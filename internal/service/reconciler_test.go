package service

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/flexprice/flexbill/internal/domain/payment"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/testutil"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/stretchr/testify/suite"
)

type ReconcilerSuite struct {
	billingSuite
}

func TestReconciler(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func (s *ReconcilerSuite) TestPaymentActivatesSubscriptionAtPaymentTime() {
	p := s.createPlan(types.PricingModelFlat, 2900, 0, 0, 0)
	resp := s.subscribe(s.createCustomer("c1"), p)
	s.Equal(types.SubscriptionStatusPendingPayment, resp.SubscriptionStatus)
	s.Nil(resp.CurrentPeriodStart)

	paidAt := s.GetNow().Add(2 * time.Hour)
	s.SetNow(paidAt.Add(time.Minute))
	sub, txn := s.activate(resp, paidAt)

	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.Require().NotNil(sub.CurrentPeriodStart)
	s.True(sub.CurrentPeriodStart.Equal(paidAt))
	s.True(sub.CurrentPeriodEnd.Equal(paidAt.AddDate(0, 1, 0)))
	s.Equal(types.PaymentStatusSuccess, txn.PaymentStatus)

	inv := s.getInvoice(resp.LatestInvoice.ID)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
	s.Equal(int64(2900), inv.AmountPaid)

	events := s.events()
	s.Contains(events, types.WebhookEventInvoicePaid)
	s.Contains(events, types.WebhookEventSubscriptionActivated)
}

func (s *ReconcilerSuite) TestDuplicateEventIsIgnored() {
	p := s.createPlan(types.PricingModelFlat, 2900, 0, 0, 0)
	resp := s.subscribe(s.createCustomer("c1"), p)
	txn := s.initiate(resp.LatestInvoice)
	txn = s.getPayment(txn.ID)

	first, err := s.callback("evt_1", txn, types.PaymentStatusSuccess, s.GetNow())
	s.Require().NoError(err)
	s.False(first.Duplicate)
	before := s.getSubscription(resp.ID)
	eventsBefore := s.events()

	second, err := s.callback("evt_1", txn, types.PaymentStatusSuccess, s.GetNow().Add(time.Hour))
	s.Require().NoError(err)
	s.True(second.Duplicate)

	after := s.getSubscription(resp.ID)
	s.Equal(before.Version, after.Version)
	s.Equal(before.SubscriptionStatus, after.SubscriptionStatus)
	s.True(before.CurrentPeriodStart.Equal(*after.CurrentPeriodStart))
	s.Equal(eventsBefore, s.events())

	logs, err := s.GetStores().WebhookLogRepo.ListByDedupKey(s.GetContext(), types.PaymentProviderStripe, "evt_1")
	s.Require().NoError(err)
	s.Require().Len(logs, 2)
	statuses := []types.WebhookLogStatus{logs[0].WebhookStatus, logs[1].WebhookStatus}
	s.ElementsMatch([]types.WebhookLogStatus{types.WebhookLogStatusProcessed, types.WebhookLogStatusIgnored}, statuses)
}

func (s *ReconcilerSuite) TestTerminalTransactionIsImmutable() {
	p := s.createPlan(types.PricingModelFlat, 2900, 0, 0, 0)
	resp := s.subscribe(s.createCustomer("c1"), p)
	sub, txn := s.activate(resp, s.GetNow())

	result, err := s.callback("evt_late_failure", txn, types.PaymentStatusFailed, s.GetNow().Add(time.Hour))
	s.Require().NoError(err)
	s.True(result.Ignored)

	stored := s.getPayment(txn.ID)
	s.Equal(types.PaymentStatusSuccess, stored.PaymentStatus)
	s.Empty(stored.FailureReason)
	s.True(stored.PaidAt.Equal(*txn.PaidAt))

	after := s.getSubscription(sub.ID)
	s.Equal(0, after.FailedPaymentAttempts)
	s.Equal(sub.Version, after.Version)
	s.NotContains(s.events(), types.WebhookEventPaymentFailed)
}

func (s *ReconcilerSuite) TestFailureAfterInvoicePaidChangesNothing() {
	p := s.createPlan(types.PricingModelFlat, 2900, 0, 0, 0)
	resp := s.subscribe(s.createCustomer("c1"), p)

	// a second attempt for the same invoice left open by the customer
	other := &payment.Transaction{
		ID:                    types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		Kind:                  types.TransactionKindCharge,
		SubscriptionID:        resp.ID,
		InvoiceID:             resp.LatestInvoice.ID,
		CustomerID:            resp.CustomerID,
		Provider:              types.PaymentProviderStripe,
		Amount:                resp.LatestInvoice.AmountDue,
		Currency:              resp.LatestInvoice.Currency,
		PaymentStatus:         types.PaymentStatusInitiated,
		ProviderTransactionID: "pi_other",
		ProviderReference:     "REF_OTHER",
		IdempotencyKey:        "other_attempt",
		BaseModel:             types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().PaymentRepo.Create(s.GetContext(), other))

	sub, _ := s.activate(resp, s.GetNow())
	invBefore := s.getInvoice(resp.LatestInvoice.ID)

	_, err := s.callback("evt_other_failed", other, types.PaymentStatusFailed, s.GetNow())
	s.Require().NoError(err)

	after := s.getSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusActive, after.SubscriptionStatus)
	s.Equal(0, after.FailedPaymentAttempts)
	s.Equal(sub.Version, after.Version)

	invAfter := s.getInvoice(resp.LatestInvoice.ID)
	s.Equal(types.InvoiceStatusPaid, invAfter.InvoiceStatus)
	s.Equal(invBefore.Version, invAfter.Version)
	s.NotContains(s.events(), types.WebhookEventPaymentFailed)
}

func (s *ReconcilerSuite) TestRepeatedFailuresMovePastDueAndSuccessResets() {
	p := s.createPlan(types.PricingModelFlat, 2900, 0, 0, 0)
	resp := s.subscribe(s.createCustomer("c1"), p)
	sub, _ := s.activate(resp, s.GetNow())

	s.SetNow(sub.CurrentPeriodEnd.Add(time.Hour))
	jobs := NewJobService(s.params, nil)
	renewed, err := jobs.RunForTenant(s.GetContext(), types.JobRenewalDue)
	s.Require().NoError(err)
	s.Equal(1, renewed)

	invoices := s.subscriptionInvoices(sub.ID)
	s.Require().Len(invoices, 2)
	renewal := invoices[1]
	s.Equal(types.InvoiceStatusOpen, renewal.InvoiceStatus)

	for i := 1; i <= 3; i++ {
		txn := s.getPayment(s.initiate(s.getInvoice(renewal.ID)).ID)
		_, err := s.callback("evt_fail_"+txn.ID, txn, types.PaymentStatusFailed, s.GetNow())
		s.Require().NoError(err)

		current := s.getSubscription(sub.ID)
		s.Equal(i, current.FailedPaymentAttempts)
		if i < 3 {
			s.Equal(types.SubscriptionStatusActive, current.SubscriptionStatus)
		}
	}

	pastDue := s.getSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusPastDue, pastDue.SubscriptionStatus)
	s.Equal(types.InvoiceStatusFailed, s.getInvoice(renewal.ID).InvoiceStatus)
	s.Contains(s.events(), types.WebhookEventSubscriptionPastDue)

	paidAt := s.GetNow().Add(time.Hour)
	txn := s.getPayment(s.initiate(s.getInvoice(renewal.ID)).ID)
	_, err = s.callback("evt_recovered", txn, types.PaymentStatusSuccess, paidAt)
	s.Require().NoError(err)

	recovered := s.getSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusActive, recovered.SubscriptionStatus)
	s.Equal(0, recovered.FailedPaymentAttempts)
	s.True(recovered.CurrentPeriodStart.Equal(paidAt))
	s.Contains(s.events(), types.WebhookEventSubscriptionRenewed)
}

func (s *ReconcilerSuite) TestEachFailedAttemptOnOneTransactionCounts() {
	p := s.createPlan(types.PricingModelFlat, 2900, 0, 0, 0)
	resp := s.subscribe(s.createCustomer("c1"), p)
	sub, _ := s.activate(resp, s.GetNow())

	s.SetNow(sub.CurrentPeriodEnd.Add(time.Hour))
	_, err := NewJobService(s.params, nil).RunForTenant(s.GetContext(), types.JobRenewalDue)
	s.Require().NoError(err)
	invoices := s.subscriptionInvoices(sub.ID)
	s.Require().Len(invoices, 2)

	// one checkout session, the customer retries the card inside it
	txn := s.getPayment(s.initiate(s.getInvoice(invoices[1].ID)).ID)
	for i, eventID := range []string{"evt_card_declined", "evt_insufficient_funds"} {
		result, err := s.callback(eventID, txn, types.PaymentStatusFailed, s.GetNow())
		s.Require().NoError(err)
		s.False(result.Duplicate)
		s.Equal(i+1, s.getSubscription(sub.ID).FailedPaymentAttempts)
	}

	result, err := s.callback("evt_insufficient_funds", txn, types.PaymentStatusFailed, s.GetNow())
	s.Require().NoError(err)
	s.True(result.Duplicate)
	s.Equal(2, s.getSubscription(sub.ID).FailedPaymentAttempts)
	s.Equal(types.PaymentStatusFailed, s.getPayment(txn.ID).PaymentStatus)
}

func (s *ReconcilerSuite) TestInvalidSignatureIsAuditedOnly() {
	req := testutil.FakeWebhookRequest(types.PaymentProviderStripe, base.WebhookEvent{
		EventID: "evt_forged",
		Status:  types.PaymentStatusSuccess,
	})
	req.Headers = http.Header{}

	_, err := NewReconciler(s.params).Process(s.GetContext(), req)
	s.Require().Error(err)
	s.True(ierr.IsInvalidSignature(err))

	logs := s.GetStores().WebhookLogRepo.All()
	s.Require().Len(logs, 1)
	s.Equal(types.WebhookLogStatusFailed, logs[0].WebhookStatus)

	// a failed row does not block the genuine callback
	_, err = NewReconciler(s.params).Process(s.GetContext(), testutil.FakeWebhookRequest(types.PaymentProviderStripe, base.WebhookEvent{
		EventID: "evt_forged",
	}))
	s.Require().NoError(err)
}

func (s *ReconcilerSuite) TestNonActionableEventIsIgnored() {
	result, err := NewReconciler(s.params).Process(s.GetContext(), testutil.FakeWebhookRequest(types.PaymentProviderStripe, base.WebhookEvent{
		EventID:   "evt_info",
		EventType: "customer.updated",
	}))
	s.Require().NoError(err)
	s.True(result.Ignored)
	s.False(result.Duplicate)
}

func (s *ReconcilerSuite) TestUnknownTransactionFails() {
	_, err := NewReconciler(s.params).Process(s.GetContext(), testutil.FakeWebhookRequest(types.PaymentProviderStripe, base.WebhookEvent{
		EventID:       "evt_unknown",
		TransactionID: "pi_missing",
		Reference:     "REF_MISSING",
		Status:        types.PaymentStatusSuccess,
	}))
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))

	logs, err := s.GetStores().WebhookLogRepo.ListByDedupKey(s.GetContext(), types.PaymentProviderStripe, "evt_unknown")
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(types.WebhookLogStatusFailed, logs[0].WebhookStatus)
}

func (s *ReconcilerSuite) TestDedupKeyFallsBackToTransactionAndStatus() {
	s.Equal("evt_1", dedupKey(&base.WebhookEvent{EventID: "evt_1", TransactionID: "pi_1"}))
	s.Equal("pi_1:success", dedupKey(&base.WebhookEvent{TransactionID: "pi_1", Status: types.PaymentStatusSuccess}))
	s.Equal("REF1:failed", dedupKey(&base.WebhookEvent{Reference: "REF1", Status: types.PaymentStatusFailed}))
}

func (s *ReconcilerSuite) TestEndToEndBillingCycle() {
	p := s.createPlan(types.PricingModelHybrid, 1000, 5, 10, 0)
	cust := s.createCustomer("e2e")

	resp := s.subscribe(cust, p)
	s.Equal(types.SubscriptionStatusPendingPayment, resp.SubscriptionStatus)
	s.Require().NotNil(resp.LatestInvoice)
	s.Equal(int64(1000), resp.LatestInvoice.AmountDue)

	sub, _ := s.activate(resp, s.GetNow())
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)

	usageService := NewUsageService(s.params)
	for i, qty := range []int64{20, 15} {
		ts := sub.CurrentPeriodStart.Add(time.Duration(i+1) * 24 * time.Hour)
		_, err := usageService.IngestEvent(s.GetContext(), ingestRequest(sub.ID, fmt.Sprintf("evt_usage_%d", i), qty, ts))
		s.Require().NoError(err)
	}

	s.SetNow(sub.CurrentPeriodEnd.Add(time.Minute))
	renewed, err := NewJobService(s.params, nil).RunForTenant(s.GetContext(), types.JobRenewalDue)
	s.Require().NoError(err)
	s.Equal(1, renewed)

	invoices := s.subscriptionInvoices(sub.ID)
	s.Require().Len(invoices, 2)
	renewal := invoices[1]
	// base in advance plus (35 - 10) units at 5 in arrears
	s.Equal(int64(1000+25*5), renewal.AmountDue)
	s.Equal(renewal.Total(), renewal.AmountDue)
	s.True(renewal.PeriodStart.Equal(*sub.CurrentPeriodEnd))

	paidAt := s.GetNow().Add(3 * time.Hour)
	txn := s.getPayment(s.initiate(renewal).ID)
	_, err = s.callback("evt_renewal", txn, types.PaymentStatusSuccess, paidAt)
	s.Require().NoError(err)

	final := s.getSubscription(sub.ID)
	s.Equal(types.SubscriptionStatusActive, final.SubscriptionStatus)
	s.True(final.CurrentPeriodStart.Equal(paidAt))
	s.Equal(types.InvoiceStatusPaid, s.getInvoice(renewal.ID).InvoiceStatus)

	events := s.events()
	for _, name := range []string{
		types.WebhookEventSubscriptionCreated,
		types.WebhookEventInvoiceCreated,
		types.WebhookEventPaymentDue,
		types.WebhookEventInvoicePaid,
		types.WebhookEventSubscriptionActivated,
		types.WebhookEventSubscriptionRenewed,
	} {
		s.Contains(events, name)
	}
}
