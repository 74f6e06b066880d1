package service

import (
	"context"

	"github.com/flexprice/flexbill/internal/api/dto"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/types"
)

type PlanService interface {
	CreatePlan(ctx context.Context, req dto.CreatePlanRequest) (*dto.PlanResponse, error)
	GetPlan(ctx context.Context, id string) (*dto.PlanResponse, error)
	UpdatePlan(ctx context.Context, id string, req dto.UpdatePlanRequest) (*dto.PlanResponse, error)
	// ArchivePlan stops new subscriptions to the plan, existing ones keep running
	ArchivePlan(ctx context.Context, id string) (*dto.PlanResponse, error)
	DeletePlan(ctx context.Context, id string) error
}

type planService struct {
	ServiceParams
}

func NewPlanService(params ServiceParams) PlanService {
	return &planService{
		ServiceParams: params,
	}
}

func (s *planService) CreatePlan(ctx context.Context, req dto.CreatePlanRequest) (*dto.PlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := req.ToPlan(ctx)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.PlanRepo.Create(ctx, p); err != nil {
		return nil, err
	}
	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) GetPlan(ctx context.Context, id string) (*dto.PlanResponse, error) {
	p, err := s.PlanRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) UpdatePlan(ctx context.Context, id string, req dto.UpdatePlanRequest) (*dto.PlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.PlanRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.BaseAmount != nil {
		p.BaseAmount = *req.BaseAmount
	}
	if req.UnitPrice != nil {
		p.UnitPrice = *req.UnitPrice
	}
	if req.FreeUnits != nil {
		p.FreeUnits = *req.FreeUnits
	}
	if req.TrialDays != nil {
		p.TrialDays = *req.TrialDays
	}
	if req.UsageMetric != nil {
		p.UsageMetric = *req.UsageMetric
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.Touch(ctx, s.now())
	if err := s.PlanRepo.Update(ctx, p); err != nil {
		return nil, err
	}
	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) ArchivePlan(ctx context.Context, id string) (*dto.PlanResponse, error) {
	p, err := s.PlanRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.PlanStatus == types.PlanStatusArchived {
		return &dto.PlanResponse{Plan: p}, nil
	}

	p.PlanStatus = types.PlanStatusArchived
	p.Touch(ctx, s.now())
	if err := s.PlanRepo.Update(ctx, p); err != nil {
		return nil, err
	}
	return &dto.PlanResponse{Plan: p}, nil
}

// DeletePlan removes a plan no subscription references anymore
func (s *planService) DeletePlan(ctx context.Context, id string) error {
	if _, err := s.PlanRepo.Get(ctx, id); err != nil {
		return err
	}

	count, err := s.SubRepo.CountByPlan(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ierr.NewError("plan is referenced by subscriptions").
			WithHint("Archive the plan instead, it still has active subscriptions").
			WithReportableDetails(map[string]any{
				"plan_id":       id,
				"subscriptions": count,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	return s.PlanRepo.Delete(ctx, id)
}
