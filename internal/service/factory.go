package service

import (
	"context"
	"strings"
	"time"

	"github.com/flexprice/flexbill/internal/config"
	"github.com/flexprice/flexbill/internal/domain/app"
	"github.com/flexprice/flexbill/internal/domain/cleanup"
	"github.com/flexprice/flexbill/internal/domain/connection"
	"github.com/flexprice/flexbill/internal/domain/customer"
	"github.com/flexprice/flexbill/internal/domain/invoice"
	"github.com/flexprice/flexbill/internal/domain/payment"
	"github.com/flexprice/flexbill/internal/domain/plan"
	"github.com/flexprice/flexbill/internal/domain/subscription"
	"github.com/flexprice/flexbill/internal/domain/usage"
	"github.com/flexprice/flexbill/internal/domain/webhookdelivery"
	"github.com/flexprice/flexbill/internal/domain/webhooklog"
	"github.com/flexprice/flexbill/internal/idempotency"
	"github.com/flexprice/flexbill/internal/integration"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/metrics"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/flexprice/flexbill/internal/security"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/webhook"
	"github.com/samber/lo"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	// Repositories
	AppRepo             app.Repository
	ConnectionRepo      connection.Repository
	CustomerRepo        customer.Repository
	PlanRepo            plan.Repository
	SubRepo             subscription.Repository
	InvoiceRepo         invoice.Repository
	InvoiceSequenceRepo invoice.SequenceRepository
	PaymentRepo         payment.Repository
	WebhookLogRepo      webhooklog.Repository
	DeliveryRepo        webhookdelivery.Repository
	UsageRepo           usage.Repository
	CleanupRepo         cleanup.Repository

	IntegrationFactory *integration.Factory
	EventPublisher     webhook.EventPublisher
	EncryptionService  security.EncryptionService
	IdempotencyGen     *idempotency.Generator
	Metrics            *metrics.Metrics

	// Clock returns the current time, tests pin it
	Clock func() time.Time
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	appRepo app.Repository,
	connectionRepo connection.Repository,
	customerRepo customer.Repository,
	planRepo plan.Repository,
	subRepo subscription.Repository,
	invoiceRepo invoice.Repository,
	invoiceSequenceRepo invoice.SequenceRepository,
	paymentRepo payment.Repository,
	webhookLogRepo webhooklog.Repository,
	deliveryRepo webhookdelivery.Repository,
	usageRepo usage.Repository,
	cleanupRepo cleanup.Repository,
	integrationFactory *integration.Factory,
	eventPublisher webhook.EventPublisher,
	encryptionService security.EncryptionService,
	metrics *metrics.Metrics,
) ServiceParams {
	return ServiceParams{
		Logger:              logger,
		Config:              config,
		DB:                  db,
		AppRepo:             appRepo,
		ConnectionRepo:      connectionRepo,
		CustomerRepo:        customerRepo,
		PlanRepo:            planRepo,
		SubRepo:             subRepo,
		InvoiceRepo:         invoiceRepo,
		InvoiceSequenceRepo: invoiceSequenceRepo,
		PaymentRepo:         paymentRepo,
		WebhookLogRepo:      webhookLogRepo,
		DeliveryRepo:        deliveryRepo,
		UsageRepo:           usageRepo,
		CleanupRepo:         cleanupRepo,
		IntegrationFactory:  integrationFactory,
		EventPublisher:      eventPublisher,
		EncryptionService:   encryptionService,
		IdempotencyGen:      idempotency.NewGenerator(),
		Metrics:             metrics,
		Clock:               func() time.Time { return time.Now().UTC() },
	}
}

func (p ServiceParams) now() time.Time {
	if p.Clock == nil {
		return time.Now().UTC()
	}
	return p.Clock().UTC()
}

// baseModel stamps a new record with the tenant, user and service clock of ctx
func (p ServiceParams) baseModel(ctx context.Context) types.BaseModel {
	return types.NewBaseModel(ctx, p.now())
}

// eventBatch collects the deliveries enqueued inside one transaction
type eventBatch struct {
	publisher webhook.EventPublisher
	ids       []string
}

func (b *eventBatch) add(ctx context.Context, eventName string, data interface{}) error {
	ids, err := b.publisher.Enqueue(ctx, eventName, data)
	if err != nil {
		return err
	}
	b.ids = append(b.ids, ids...)
	return nil
}

// transition enqueues the subscription events of t. Payment events carry a
// different body and are enqueued by the caller.
func (b *eventBatch) transition(ctx context.Context, sub *subscription.Subscription, t subscription.Transition) error {
	events := lo.Filter(t.Events, func(name string, _ int) bool {
		return strings.HasPrefix(name, "subscription.")
	})
	for _, name := range events {
		data := &webhook.SubscriptionEvent{Subscription: sub}
		if t.Changed() {
			data.PreviousStatus = t.From
		}
		if err := b.add(ctx, name, data); err != nil {
			return err
		}
	}
	return nil
}

// withOutbox runs fn in a transaction and publishes the deliveries fn enqueued
// once it committed. A retried fn starts from an empty batch.
func (p ServiceParams) withOutbox(ctx context.Context, fn func(ctx context.Context, ob *eventBatch) error) error {
	ob := &eventBatch{publisher: p.EventPublisher}
	err := p.DB.WithTx(ctx, func(txCtx context.Context) error {
		ob.ids = ob.ids[:0]
		return fn(txCtx, ob)
	})
	if err != nil {
		return err
	}
	if len(ob.ids) > 0 {
		p.EventPublisher.Publish(types.WithoutCancel(ctx), ob.ids...)
	}
	return nil
}

// failureThreshold is the failed payment count that moves a subscription to past_due
func (p ServiceParams) failureThreshold() int {
	if p.Config == nil || p.Config.Billing.FailureThreshold <= 0 {
		return subscription.DefaultFailureThreshold
	}
	return p.Config.Billing.FailureThreshold
}
