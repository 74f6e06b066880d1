package service

import (
	"context"

	"github.com/flexprice/flexbill/internal/api/dto"
	"github.com/flexprice/flexbill/internal/domain/customer"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/webhook"
)

type CustomerService interface {
	CreateCustomer(ctx context.Context, req dto.CreateCustomerRequest) (*dto.CustomerResponse, error)
	GetCustomer(ctx context.Context, id string) (*dto.CustomerResponse, error)
	GetCustomerByExternalID(ctx context.Context, externalID string) (*dto.CustomerResponse, error)
	UpdateCustomer(ctx context.Context, id string, req dto.UpdateCustomerRequest) (*dto.CustomerResponse, error)
	DeleteCustomer(ctx context.Context, id string) error
}

type customerService struct {
	ServiceParams
}

func NewCustomerService(params ServiceParams) CustomerService {
	return &customerService{
		ServiceParams: params,
	}
}

func (s *customerService) CreateCustomer(ctx context.Context, req dto.CreateCustomerRequest) (*dto.CustomerResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cust := req.ToCustomer(ctx)
	err := s.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
		if err := s.CustomerRepo.Create(txCtx, cust); err != nil {
			return err
		}
		return ob.add(txCtx, types.WebhookEventCustomerCreated, &webhook.CustomerEvent{Customer: cust})
	})
	if err != nil {
		return nil, err
	}

	return &dto.CustomerResponse{Customer: cust}, nil
}

func (s *customerService) GetCustomer(ctx context.Context, id string) (*dto.CustomerResponse, error) {
	cust, err := s.CustomerRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.CustomerResponse{Customer: cust}, nil
}

func (s *customerService) GetCustomerByExternalID(ctx context.Context, externalID string) (*dto.CustomerResponse, error) {
	cust, err := s.CustomerRepo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return &dto.CustomerResponse{Customer: cust}, nil
}

func (s *customerService) UpdateCustomer(ctx context.Context, id string, req dto.UpdateCustomerRequest) (*dto.CustomerResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var cust *customer.Customer
	err := s.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
		var err error
		cust, err = s.CustomerRepo.Get(txCtx, id)
		if err != nil {
			return err
		}

		if req.Name != nil {
			cust.Name = *req.Name
		}
		if req.Email != nil {
			cust.Email = *req.Email
		}
		cust.UpdatedAt = s.now()
		cust.UpdatedBy = types.GetUserID(txCtx)

		if err := s.CustomerRepo.Update(txCtx, cust); err != nil {
			return err
		}
		return ob.add(txCtx, types.WebhookEventCustomerUpdated, &webhook.CustomerEvent{Customer: cust})
	})
	if err != nil {
		return nil, err
	}

	return &dto.CustomerResponse{Customer: cust}, nil
}

func (s *customerService) DeleteCustomer(ctx context.Context, id string) error {
	return s.withOutbox(ctx, func(txCtx context.Context, ob *eventBatch) error {
		cust, err := s.CustomerRepo.Get(txCtx, id)
		if err != nil {
			return err
		}
		open, err := s.SubRepo.CountOpen(txCtx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return ierr.NewError("customer has an open subscription").
				WithHint("Cancel the customer's subscription before deleting the customer").
				WithReportableDetails(map[string]any{"customer_id": id}).
				Mark(ierr.ErrInvalidOperation)
		}
		if err := s.CustomerRepo.Delete(txCtx, id); err != nil {
			return err
		}
		cust.Status = types.StatusDeleted
		return ob.add(txCtx, types.WebhookEventCustomerDeleted, &webhook.CustomerEvent{Customer: cust})
	})
}
