package service

import (
	"context"

	"github.com/flexprice/flexbill/internal/api/dto"
	ierr "github.com/flexprice/flexbill/internal/errors"
)

type UsageService interface {
	// IngestEvent records a metered event once per event id
	IngestEvent(ctx context.Context, req dto.IngestUsageRequest) (*dto.IngestUsageResponse, error)
}

type usageService struct {
	ServiceParams
}

func NewUsageService(params ServiceParams) UsageService {
	return &usageService{
		ServiceParams: params,
	}
}

func (s *usageService) IngestEvent(ctx context.Context, req dto.IngestUsageRequest) (*dto.IngestUsageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.SubscriptionStatus.IsTerminal() {
		return nil, ierr.NewError("subscription is no longer billed").
			WithHintf("Usage cannot be recorded on a %s subscription", sub.SubscriptionStatus).
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"status":          sub.SubscriptionStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	event := req.ToEvent(ctx, sub.CustomerID, s.now())
	created, err := s.UsageRepo.Create(ctx, event)
	if err != nil {
		return nil, err
	}
	if !created {
		s.Logger.Warnw("duplicate usage event ignored",
			"event_id", req.EventID,
			"subscription_id", sub.ID)
		return &dto.IngestUsageResponse{Duplicate: true}, nil
	}

	return &dto.IngestUsageResponse{ID: event.ID}, nil
}
