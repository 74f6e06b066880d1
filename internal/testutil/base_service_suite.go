package testutil

import (
	"context"
	"time"

	"github.com/flexprice/flexbill/internal/cache"
	"github.com/flexprice/flexbill/internal/config"
	"github.com/flexprice/flexbill/internal/domain/app"
	"github.com/flexprice/flexbill/internal/domain/connection"
	"github.com/flexprice/flexbill/internal/integration"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/metrics"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/security"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/webhook"
	"github.com/stretchr/testify/suite"
)

// TestWebhookURL is the client endpoint of the test app
const TestWebhookURL = "https://client.example.com/hooks"

// Stores holds the in-memory repositories of a test
type Stores struct {
	AppRepo             *InMemoryAppStore
	ConnectionRepo      *InMemoryConnectionStore
	CustomerRepo        *InMemoryCustomerStore
	PlanRepo            *InMemoryPlanStore
	SubscriptionRepo    *InMemorySubscriptionStore
	InvoiceRepo         *InMemoryInvoiceStore
	InvoiceSequenceRepo *InMemoryInvoiceSequenceStore
	PaymentRepo         *InMemoryPaymentStore
	WebhookLogRepo      *InMemoryWebhookLogStore
	DeliveryRepo        *InMemoryWebhookDeliveryStore
	UsageRepo           *InMemoryUsageStore
	CleanupRepo         *InMemoryCleanupStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx               context.Context
	stores            Stores
	db                postgres.IClient
	logger            *logger.Logger
	config            *config.Configuration
	encryptionService security.EncryptionService
	pubsub            *InMemoryPubSub
	httpClient        *MockHTTPClient
	dispatcher        *webhook.Dispatcher
	factory           *integration.Factory
	adapter           *FakeAdapter
	metrics           *metrics.Metrics
	now               time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	s.config = config.GetDefaultConfig()
	s.config.Secrets.EncryptionKey = "test-encryption-key-for-unit-tests-only"
	s.logger = logger.NewNoopLogger()

	var err error
	s.encryptionService, err = security.NewEncryptionService(security.MasterKey(s.config.Secrets.EncryptionKey))
	if err != nil {
		s.T().Fatalf("failed to create encryption service: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.now = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	s.setupStores()
	s.setupInfra()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	subs := NewInMemorySubscriptionStore()
	invoices := NewInMemoryInvoiceStore()
	payments := NewInMemoryPaymentStore()
	usage := NewInMemoryUsageStore()

	s.stores = Stores{
		AppRepo:             NewInMemoryAppStore(),
		ConnectionRepo:      NewInMemoryConnectionStore(),
		CustomerRepo:        NewInMemoryCustomerStore(),
		PlanRepo:            NewInMemoryPlanStore(),
		SubscriptionRepo:    subs,
		InvoiceRepo:         invoices,
		InvoiceSequenceRepo: NewInMemoryInvoiceSequenceStore(),
		PaymentRepo:         payments,
		WebhookLogRepo:      NewInMemoryWebhookLogStore(),
		DeliveryRepo:        NewInMemoryWebhookDeliveryStore(),
		UsageRepo:           usage,
		CleanupRepo:         NewInMemoryCleanupStore(subs, invoices, payments, usage),
	}
}

func (s *BaseServiceTestSuite) setupInfra() {
	s.db = NewMockPostgresClient()
	s.pubsub = NewInMemoryPubSub()
	s.httpClient = NewMockHTTPClient()
	s.metrics = metrics.New()
	s.adapter = NewFakeAdapter()

	s.factory = integration.NewFactory(s.logger, s.stores.ConnectionRepo, s.encryptionService, cache.NewInMemoryCache(), s.httpClient)
	for _, provider := range []types.PaymentProvider{
		types.PaymentProviderStripe,
		types.PaymentProviderRazorpay,
		types.PaymentProviderNomod,
	} {
		s.factory.Register(provider, func(base.Credentials) base.Adapter { return s.adapter })
	}

	s.dispatcher = webhook.NewDispatcher(
		s.config,
		s.stores.AppRepo,
		s.stores.DeliveryRepo,
		s.encryptionService,
		s.pubsub,
		s.httpClient,
		s.metrics,
		s.logger,
	)
	s.dispatcher.SetClock(s.GetNow)
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.AppRepo.Clear()
	s.stores.ConnectionRepo.Clear()
	s.stores.CustomerRepo.Clear()
	s.stores.PlanRepo.Clear()
	s.stores.SubscriptionRepo.Clear()
	s.stores.InvoiceRepo.Clear()
	s.stores.InvoiceSequenceRepo.Clear()
	s.stores.PaymentRepo.Clear()
	s.stores.WebhookLogRepo.Clear()
	s.stores.DeliveryRepo.Clear()
	s.stores.UsageRepo.Clear()
	s.pubsub.ClearMessages()
	s.httpClient.Clear()
}

// SetupApp stores the test tenant's app with a webhook endpoint subscribed to every event
func (s *BaseServiceTestSuite) SetupApp() *app.App {
	secret, err := s.encryptionService.Encrypt("whsec_test")
	s.Require().NoError(err)

	a := &app.App{
		ID:              TestTenantID,
		Name:            "test app",
		GracePeriodDays: types.DefaultGracePeriodDays,
		WebhookURL:      TestWebhookURL,
		WebhookSecret:   secret,
		BaseModel:       types.GetDefaultBaseModel(s.ctx),
	}
	s.Require().NoError(s.stores.AppRepo.Create(s.ctx, a))
	return a
}

// SetupConnection stores an encrypted connection for provider, answered by the fake adapter
func (s *BaseServiceTestSuite) SetupConnection(provider types.PaymentProvider) *connection.Connection {
	secret, err := s.encryptionService.Encrypt("sk_test_" + string(provider))
	s.Require().NoError(err)

	conn := &connection.Connection{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CONNECTION),
		Provider:  provider,
		SecretKey: secret,
		BaseModel: types.GetDefaultBaseModel(s.ctx),
	}
	s.Require().NoError(s.stores.ConnectionRepo.Upsert(s.ctx, conn))
	return conn
}

// AdvanceTime moves the test clock forward
func (s *BaseServiceTestSuite) AdvanceTime(d time.Duration) {
	s.now = s.now.Add(d)
}

// SetNow pins the test clock
func (s *BaseServiceTestSuite) SetNow(now time.Time) {
	s.now = now.UTC()
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetEncryptionService() security.EncryptionService {
	return s.encryptionService
}

func (s *BaseServiceTestSuite) GetPubSub() *InMemoryPubSub {
	return s.pubsub
}

func (s *BaseServiceTestSuite) GetHTTPClient() *MockHTTPClient {
	return s.httpClient
}

func (s *BaseServiceTestSuite) GetDispatcher() *webhook.Dispatcher {
	return s.dispatcher
}

func (s *BaseServiceTestSuite) GetIntegrationFactory() *integration.Factory {
	return s.factory
}

// GetAdapter returns the fake adapter every provider resolves to
func (s *BaseServiceTestSuite) GetAdapter() *FakeAdapter {
	return s.adapter
}

func (s *BaseServiceTestSuite) GetMetrics() *metrics.Metrics {
	return s.metrics
}
