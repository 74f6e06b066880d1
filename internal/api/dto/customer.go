package dto

import (
	"context"

	"github.com/flexprice/flexbill/internal/domain/customer"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/flexprice/flexbill/internal/validator"
)

type CreateCustomerRequest struct {
	ExternalID string `json:"external_id" validate:"required,max=255"`
	Name       string `json:"name" validate:"omitempty,max=255"`
	Email      string `json:"email" validate:"omitempty,email"`
}

type UpdateCustomerRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=255"`
	Email *string `json:"email" validate:"omitempty,email"`
}

type CustomerResponse struct {
	*customer.Customer
}

func (r *CreateCustomerRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *CreateCustomerRequest) ToCustomer(ctx context.Context) *customer.Customer {
	return &customer.Customer{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CUSTOMER),
		ExternalID: r.ExternalID,
		Name:       r.Name,
		Email:      r.Email,
		BaseModel:  types.GetDefaultBaseModel(ctx),
	}
}

func (r *UpdateCustomerRequest) Validate() error {
	return validator.ValidateRequest(r)
}
