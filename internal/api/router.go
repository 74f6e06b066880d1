package api

import (
	"github.com/flexprice/flexbill/internal/api/cron"
	v1 "github.com/flexprice/flexbill/internal/api/v1"
	"github.com/flexprice/flexbill/internal/auth"
	"github.com/flexprice/flexbill/internal/config"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/metrics"
	"github.com/flexprice/flexbill/internal/rest/middleware"
	"github.com/flexprice/flexbill/internal/sentry"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health       *v1.HealthHandler
	Customer     *v1.CustomerHandler
	Plan         *v1.PlanHandler
	Subscription *v1.SubscriptionHandler
	Invoice      *v1.InvoiceHandler
	Payment      *v1.PaymentHandler
	Events       *v1.EventsHandler
	Settings     *v1.SettingsHandler
	Connection   *v1.ConnectionHandler
	Webhook      *v1.WebhookHandler
	CronJobs     *cron.JobHandler
}

func NewRouter(
	handlers Handlers,
	cfg *config.Configuration,
	logger *logger.Logger,
	authProvider auth.Provider,
	m *metrics.Metrics,
	sentrySvc *sentry.Service,
) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.SentryMiddleware(cfg),
		middleware.CORSMiddleware,
		middleware.RequestIDMiddleware,
		middleware.LoggingMiddleware(logger),
		middleware.ErrorHandler(logger, sentrySvc),
	)

	router.GET("/health", handlers.Health.Health)
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	public := router.Group("/v1")

	// provider callbacks authenticate with the provider's own signature
	public.POST("/webhooks/:provider/:tenant_id", handlers.Webhook.HandleProviderWebhook)

	cronGroup := public.Group("/cron", middleware.CronAuthMiddleware(cfg))
	{
		cronGroup.POST("/:job", handlers.CronJobs.RunJob)
	}

	private := router.Group("/v1",
		middleware.AuthenticateMiddleware(cfg, authProvider, logger),
		middleware.SentryScopeMiddleware,
	)
	registerV1Routes(private, handlers)

	return router
}

func registerV1Routes(v1Private *gin.RouterGroup, handlers Handlers) {
	customers := v1Private.Group("/customers")
	{
		customers.POST("", handlers.Customer.CreateCustomer)
		customers.GET("/:id", handlers.Customer.GetCustomer)
		customers.PUT("/:id", handlers.Customer.UpdateCustomer)
		customers.DELETE("/:id", handlers.Customer.DeleteCustomer)
		customers.GET("/external/:external_id", handlers.Customer.GetCustomerByExternalID)
	}

	plans := v1Private.Group("/plans")
	{
		plans.POST("", handlers.Plan.CreatePlan)
		plans.GET("/:id", handlers.Plan.GetPlan)
		plans.PUT("/:id", handlers.Plan.UpdatePlan)
		plans.POST("/:id/archive", handlers.Plan.ArchivePlan)
		plans.DELETE("/:id", handlers.Plan.DeletePlan)
	}

	subscriptions := v1Private.Group("/subscriptions")
	{
		subscriptions.POST("", handlers.Subscription.CreateSubscription)
		subscriptions.GET("", handlers.Subscription.ListSubscriptions)
		subscriptions.GET("/:id", handlers.Subscription.GetSubscription)
		subscriptions.POST("/:id/cancel", handlers.Subscription.CancelSubscription)
		subscriptions.POST("/:id/pause", handlers.Subscription.PauseSubscription)
		subscriptions.POST("/:id/resume", handlers.Subscription.ResumeSubscription)
		subscriptions.POST("/:id/change-plan", handlers.Subscription.ChangePlan)
	}

	invoices := v1Private.Group("/invoices")
	{
		invoices.GET("", handlers.Invoice.ListInvoices)
		invoices.GET("/:id", handlers.Invoice.GetInvoice)
	}

	payments := v1Private.Group("/payments")
	{
		payments.POST("", handlers.Payment.InitiatePayment)
		payments.GET("", handlers.Payment.ListPayments)
		payments.GET("/:id", handlers.Payment.GetPayment)
		payments.POST("/:id/refund", handlers.Payment.RefundPayment)
	}

	v1Private.POST("/events", handlers.Events.IngestEvent)

	settings := v1Private.Group("/settings")
	{
		settings.GET("", handlers.Settings.GetSettings)
		settings.PUT("/webhook", handlers.Settings.UpdateWebhookSettings)
		settings.PUT("/grace-period", handlers.Settings.UpdateGracePeriod)
	}

	connections := v1Private.Group("/connections")
	{
		connections.PUT("/:provider", handlers.Connection.UpsertConnection)
		connections.GET("/:provider", handlers.Connection.GetConnection)
		connections.DELETE("/:provider", handlers.Connection.DeleteConnection)
		connections.POST("/:provider/test", handlers.Connection.TestConnection)
	}

	deliveries := v1Private.Group("/webhooks/deliveries")
	{
		deliveries.GET("", handlers.Webhook.ListDeliveries)
		deliveries.POST("/:id/retry", handlers.Webhook.RetryDelivery)
	}

	v1Private.GET("/analytics/mrr", handlers.Subscription.GetMRR)
}
