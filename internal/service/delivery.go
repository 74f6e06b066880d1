package service

import (
	"context"

	"github.com/flexprice/flexbill/internal/api/dto"
	"github.com/flexprice/flexbill/internal/domain/webhookdelivery"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

// DeliveryQueue is the part of the outgoing dispatcher the API exposes
type DeliveryQueue interface {
	List(ctx context.Context, filter *types.WebhookDeliveryFilter) ([]*webhookdelivery.Delivery, error)
	Requeue(ctx context.Context, id string) (*webhookdelivery.Delivery, error)
}

// WebhookDeliveryService lets an app inspect its outgoing deliveries and retry failed ones
type WebhookDeliveryService interface {
	ListDeliveries(ctx context.Context, filter *types.WebhookDeliveryFilter) (*dto.ListWebhookDeliveriesResponse, error)
	RetryDelivery(ctx context.Context, id string) (*dto.WebhookDeliveryResponse, error)
}

type webhookDeliveryService struct {
	queue  DeliveryQueue
	logger *logger.Logger
}

func NewWebhookDeliveryService(queue DeliveryQueue, logger *logger.Logger) WebhookDeliveryService {
	return &webhookDeliveryService{
		queue:  queue,
		logger: logger,
	}
}

func (s *webhookDeliveryService) ListDeliveries(ctx context.Context, filter *types.WebhookDeliveryFilter) (*dto.ListWebhookDeliveriesResponse, error) {
	if filter == nil {
		filter = &types.WebhookDeliveryFilter{}
	}

	deliveries, err := s.queue.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(deliveries, func(d *webhookdelivery.Delivery, _ int) *dto.WebhookDeliveryResponse {
		return &dto.WebhookDeliveryResponse{Delivery: d}
	})
	return dto.NewListResponse(items, filter.QueryFilter), nil
}

func (s *webhookDeliveryService) RetryDelivery(ctx context.Context, id string) (*dto.WebhookDeliveryResponse, error) {
	delivery, err := s.queue.Requeue(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("webhook delivery requeued",
		"delivery_id", id,
		"event", delivery.EventName,
		"tenant_id", types.GetTenantID(ctx))
	return &dto.WebhookDeliveryResponse{Delivery: delivery}, nil
}
