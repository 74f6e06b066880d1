package service

import (
	"time"

	"github.com/flexprice/flexbill/internal/api/dto"
	"github.com/flexprice/flexbill/internal/domain/customer"
	"github.com/flexprice/flexbill/internal/domain/invoice"
	"github.com/flexprice/flexbill/internal/domain/payment"
	"github.com/flexprice/flexbill/internal/domain/plan"
	"github.com/flexprice/flexbill/internal/domain/subscription"
	"github.com/flexprice/flexbill/internal/idempotency"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/testutil"
	"github.com/flexprice/flexbill/internal/types"
)

// billingSuite wires every service over the in-memory stores and provides fixtures
type billingSuite struct {
	testutil.BaseServiceTestSuite
	params ServiceParams
}

func (s *billingSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	stores := s.GetStores()
	s.params = ServiceParams{
		Logger:              s.GetLogger(),
		Config:              s.GetConfig(),
		DB:                  s.GetDB(),
		AppRepo:             stores.AppRepo,
		ConnectionRepo:      stores.ConnectionRepo,
		CustomerRepo:        stores.CustomerRepo,
		PlanRepo:            stores.PlanRepo,
		SubRepo:             stores.SubscriptionRepo,
		InvoiceRepo:         stores.InvoiceRepo,
		InvoiceSequenceRepo: stores.InvoiceSequenceRepo,
		PaymentRepo:         stores.PaymentRepo,
		WebhookLogRepo:      stores.WebhookLogRepo,
		DeliveryRepo:        stores.DeliveryRepo,
		UsageRepo:           stores.UsageRepo,
		CleanupRepo:         stores.CleanupRepo,
		IntegrationFactory:  s.GetIntegrationFactory(),
		EventPublisher:      s.GetDispatcher(),
		EncryptionService:   s.GetEncryptionService(),
		IdempotencyGen:      idempotency.NewGenerator(),
		Metrics:             s.GetMetrics(),
		Clock:               s.GetNow,
	}

	s.SetupApp()
	s.SetupConnection(types.PaymentProviderStripe)
}

func (s *billingSuite) createCustomer(externalID string) *customer.Customer {
	c := &customer.Customer{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CUSTOMER),
		ExternalID: externalID,
		Name:       "Customer " + externalID,
		Email:      externalID + "@example.com",
		BaseModel:  types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().CustomerRepo.Create(s.GetContext(), c))
	return c
}

func (s *billingSuite) createPlan(model types.PricingModel, baseAmount, unitPrice, freeUnits int64, trialDays int) *plan.Plan {
	req := dto.CreatePlanRequest{
		Name:            "Plan " + string(model),
		PricingModel:    model,
		BaseAmount:      baseAmount,
		Currency:        "usd",
		BillingInterval: types.BillingIntervalMonthly,
		UnitPrice:       unitPrice,
		FreeUnits:       freeUnits,
		TrialDays:       trialDays,
	}
	if model.HasUsage() {
		req.UsageMetric = "api_calls"
	}
	p := req.ToPlan(s.GetContext())
	s.Require().NoError(s.GetStores().PlanRepo.Create(s.GetContext(), p))
	return p
}

func (s *billingSuite) subscribe(c *customer.Customer, p *plan.Plan) *dto.SubscriptionResponse {
	resp, err := NewSubscriptionService(s.params).CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{
		CustomerID: c.ID,
		PlanID:     p.ID,
	})
	s.Require().NoError(err)
	return resp
}

func (s *billingSuite) initiate(inv *invoice.Invoice) *payment.Transaction {
	resp, err := NewPaymentService(s.params).InitiatePayment(s.GetContext(), dto.InitiatePaymentRequest{
		InvoiceID: inv.ID,
		Provider:  types.PaymentProviderStripe,
	})
	s.Require().NoError(err)
	return resp.Transaction
}

// callback delivers a signed provider callback for txn through the reconciler
func (s *billingSuite) callback(eventID string, txn *payment.Transaction, status types.PaymentStatus, at time.Time) (*ReconcileResult, error) {
	return NewReconciler(s.params).Process(s.GetContext(), testutil.FakeWebhookRequest(types.PaymentProviderStripe, base.WebhookEvent{
		EventID:       eventID,
		EventType:     "payment." + string(status),
		TransactionID: txn.ProviderTransactionID,
		Reference:     txn.ProviderReference,
		Status:        status,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		OccurredAt:    at,
	}))
}

func (s *billingSuite) getSubscription(id string) *subscription.Subscription {
	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return sub
}

func (s *billingSuite) getInvoice(id string) *invoice.Invoice {
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return inv
}

func (s *billingSuite) getPayment(id string) *payment.Transaction {
	txn, err := s.GetStores().PaymentRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return txn
}

// subscriptionInvoices returns the invoices of a subscription ordered by period
func (s *billingSuite) subscriptionInvoices(subID string) []*invoice.Invoice {
	invs, err := s.GetStores().InvoiceRepo.List(s.GetContext(), &types.InvoiceFilter{
		QueryFilter:    types.QueryFilter{Limit: types.MaxFilterLimit},
		SubscriptionID: subID,
	})
	s.Require().NoError(err)
	return invs
}

// events returns the names of the enqueued outgoing deliveries in order
func (s *billingSuite) events() []string {
	deliveries, err := s.GetStores().DeliveryRepo.List(s.GetContext(), &types.WebhookDeliveryFilter{
		QueryFilter: types.QueryFilter{Limit: types.MaxFilterLimit},
	})
	s.Require().NoError(err)
	names := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		names = append(names, d.EventName)
	}
	return names
}

// activate pays the first invoice of a pending subscription through a callback at paidAt
func (s *billingSuite) activate(resp *dto.SubscriptionResponse, paidAt time.Time) (*subscription.Subscription, *payment.Transaction) {
	s.Require().NotNil(resp.LatestInvoice)
	txn := s.initiate(resp.LatestInvoice)
	_, err := s.callback("evt_activate_"+resp.ID, s.getPayment(txn.ID), types.PaymentStatusSuccess, paidAt)
	s.Require().NoError(err)
	return s.getSubscription(resp.ID), s.getPayment(txn.ID)
}

func ingestRequest(subID, eventID string, quantity int64, at time.Time) dto.IngestUsageRequest {
	return dto.IngestUsageRequest{
		EventID:        eventID,
		SubscriptionID: subID,
		Metric:         "api_calls",
		Quantity:       quantity,
		Timestamp:      &at,
	}
}
