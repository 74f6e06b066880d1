package internal

import (
	"log"

	"github.com/flexprice/flexbill/internal/cache"
	"github.com/flexprice/flexbill/internal/config"
	"github.com/flexprice/flexbill/internal/httpclient"
	"github.com/flexprice/flexbill/internal/integration"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/metrics"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/pubsub/memory"
	"github.com/flexprice/flexbill/internal/repository"
	"github.com/flexprice/flexbill/internal/security"
	"github.com/flexprice/flexbill/internal/service"
	"github.com/flexprice/flexbill/internal/webhook"
)

// scriptEnv is the service graph a script runs against, built by hand
type scriptEnv struct {
	cfg        *config.Configuration
	logger     *logger.Logger
	db         *postgres.DB
	params     service.ServiceParams
	dispatcher *webhook.Dispatcher
}

func newScriptEnv() *scriptEnv {
	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Initialize database client
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}

	encryptionService, err := security.NewEncryptionService(security.MasterKey(cfg.Secrets.EncryptionKey))
	if err != nil {
		log.Fatalf("Failed to create encryption service: %v", err)
	}

	// Initialize repositories
	appRepo := repository.NewAppRepository(db, logger)
	connectionRepo := repository.NewConnectionRepository(db, logger)
	deliveryRepo := repository.NewWebhookDeliveryRepository(db, logger)

	client := httpclient.NewDefaultClient(httpclient.ClientConfig{Timeout: cfg.Webhook.Timeout})
	m := metrics.New()

	// deliveries queued by a script are picked up by the delivery_retry sweep
	dispatcher := webhook.NewDispatcher(cfg, appRepo, deliveryRepo, encryptionService, memory.NewPubSub(logger), client, m, logger)

	params := service.NewServiceParams(
		logger,
		cfg,
		db,
		appRepo,
		connectionRepo,
		repository.NewCustomerRepository(db, logger),
		repository.NewPlanRepository(db, logger),
		repository.NewSubscriptionRepository(db, logger),
		repository.NewInvoiceRepository(db, logger),
		repository.NewInvoiceSequenceRepository(db, logger),
		repository.NewPaymentRepository(db, logger),
		repository.NewWebhookLogRepository(db, logger),
		deliveryRepo,
		repository.NewUsageRepository(db, logger),
		repository.NewCleanupRepository(db, logger),
		integration.NewFactory(logger, connectionRepo, encryptionService, cache.NewInMemoryCache(), client),
		dispatcher,
		encryptionService,
		m,
	)

	return &scriptEnv{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		params:     params,
		dispatcher: dispatcher,
	}
}

func (e *scriptEnv) Close() {
	e.db.Close()
}
