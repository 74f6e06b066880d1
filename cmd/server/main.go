package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/flexprice/flexbill/internal/api"
	"github.com/flexprice/flexbill/internal/api/cron"
	v1 "github.com/flexprice/flexbill/internal/api/v1"
	"github.com/flexprice/flexbill/internal/auth"
	"github.com/flexprice/flexbill/internal/cache"
	"github.com/flexprice/flexbill/internal/config"
	"github.com/flexprice/flexbill/internal/httpclient"
	"github.com/flexprice/flexbill/internal/integration"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/metrics"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/pubsub"
	"github.com/flexprice/flexbill/internal/pubsub/kafka"
	"github.com/flexprice/flexbill/internal/pubsub/memory"
	pubsubRouter "github.com/flexprice/flexbill/internal/pubsub/router"
	"github.com/flexprice/flexbill/internal/repository"
	"github.com/flexprice/flexbill/internal/scheduler"
	"github.com/flexprice/flexbill/internal/security"
	"github.com/flexprice/flexbill/internal/sentry"
	"github.com/flexprice/flexbill/internal/service"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/webhook"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// @title FlexBill API
// @version 1.0
// @description Subscription billing and payment reconciliation
// @BasePath /v1
// @schemes http https
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name x-api-key

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			metrics.New,
			cache.NewInMemoryCache,
			provideHTTPClient,
			provideEncryptionService,
			providePubSub,
			auth.NewProvider,

			// Repositories
			repository.NewAppRepository,
			repository.NewConnectionRepository,
			repository.NewCustomerRepository,
			repository.NewPlanRepository,
			repository.NewSubscriptionRepository,
			repository.NewInvoiceRepository,
			repository.NewInvoiceSequenceRepository,
			repository.NewPaymentRepository,
			repository.NewWebhookLogRepository,
			repository.NewWebhookDeliveryRepository,
			repository.NewUsageRepository,
			repository.NewCleanupRepository,

			integration.NewFactory,
			pubsubRouter.NewRouter,
		),
		sentry.Module(),
		postgres.Module(),
	)

	// Outgoing webhooks (must be provided before services)
	opts = append(opts,
		fx.Provide(
			webhook.NewDispatcher,
			func(d *webhook.Dispatcher) webhook.EventPublisher { return d },
			func(d *webhook.Dispatcher) service.DeliverySweeper { return d },
			func(d *webhook.Dispatcher) service.DeliveryQueue { return d },
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,
			service.NewCustomerService,
			service.NewPlanService,
			service.NewSubscriptionService,
			service.NewInvoiceService,
			service.NewPaymentService,
			service.NewUsageService,
			service.NewSettingsService,
			service.NewConnectionService,
			service.NewReconciler,
			service.NewJobService,
			service.NewWebhookDeliveryService,
		),
	)

	// API and background processes
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			api.NewRouter,
			scheduler.New,
		),
		fx.Invoke(
			runMigrations,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideHTTPClient(cfg *config.Configuration) httpclient.Client {
	return httpclient.NewDefaultClient(httpclient.ClientConfig{
		Timeout:     cfg.Webhook.Timeout,
		ReadRetries: 2,
	})
}

func provideEncryptionService(cfg *config.Configuration) (security.EncryptionService, error) {
	return security.NewEncryptionService(security.MasterKey(cfg.Secrets.EncryptionKey))
}

// providePubSub picks the delivery queue transport: an in-process channel, or
// kafka when deliveries are consumed by separate processes
func providePubSub(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (pubsub.PubSub, pubsub.Publisher, pubsub.Subscriber, error) {
	var (
		ps  pubsub.PubSub
		err error
	)
	switch cfg.PubSub.Driver {
	case types.KafkaPubSub:
		ps, err = kafka.NewPubSub(cfg, log)
		if err != nil {
			return nil, nil, nil, err
		}
	default:
		ps = memory.NewPubSub(log)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return ps.Close()
		},
	})
	return ps, ps, ps, nil
}

func provideHandlers(
	logger *logger.Logger,
	customerService service.CustomerService,
	planService service.PlanService,
	subscriptionService service.SubscriptionService,
	invoiceService service.InvoiceService,
	paymentService service.PaymentService,
	usageService service.UsageService,
	settingsService service.SettingsService,
	connectionService service.ConnectionService,
	reconciler service.Reconciler,
	deliveryService service.WebhookDeliveryService,
	jobService service.JobService,
) api.Handlers {
	return api.Handlers{
		Health:       v1.NewHealthHandler(logger),
		Customer:     v1.NewCustomerHandler(customerService, logger),
		Plan:         v1.NewPlanHandler(planService, logger),
		Subscription: v1.NewSubscriptionHandler(subscriptionService, logger),
		Invoice:      v1.NewInvoiceHandler(invoiceService, logger),
		Payment:      v1.NewPaymentHandler(paymentService, logger),
		Events:       v1.NewEventsHandler(usageService, logger),
		Settings:     v1.NewSettingsHandler(settingsService, logger),
		Connection:   v1.NewConnectionHandler(connectionService, logger),
		Webhook:      v1.NewWebhookHandler(reconciler, deliveryService, logger),
		CronJobs:     cron.NewJobHandler(jobService, logger),
	}
}

func runMigrations(cfg *config.Configuration, db *postgres.DB, log *logger.Logger) error {
	if !cfg.Postgres.AutoMigrate {
		return nil
	}
	return postgres.Migrate(db, log)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	dispatcher *webhook.Dispatcher,
	router *pubsubRouter.Router,
	subscriber pubsub.Subscriber,
	sched *scheduler.Scheduler,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		startMessageRouter(lc, router, dispatcher, subscriber, log)
		if cfg.Scheduler.Enabled {
			scheduler.RegisterHooks(lc, sched)
		}
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
	case types.ModeConsumer:
		startMessageRouter(lc, router, dispatcher, subscriber, log)
	case types.ModeScheduler:
		// the in-memory queue is only drained by a router in the same process
		if cfg.PubSub.Driver != types.KafkaPubSub {
			startMessageRouter(lc, router, dispatcher, subscriber, log)
		}
		scheduler.RegisterHooks(lc, sched)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return srv.Shutdown(ctx)
		},
	})
}

func startMessageRouter(
	lc fx.Lifecycle,
	router *pubsubRouter.Router,
	dispatcher *webhook.Dispatcher,
	subscriber pubsub.Subscriber,
	log *logger.Logger,
) {
	// Register handlers before starting the router
	dispatcher.RegisterHandler(router, subscriber)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting message router")
			go func() {
				if err := router.Run(context.Background()); err != nil {
					log.Errorw("message router failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping message router")
			return router.Close()
		},
	})
}
