package dto

import "github.com/flexprice/flexbill/internal/types"

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message"`
}

type PaginationResponse struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ListResponse wraps one page of items
type ListResponse[T any] struct {
	Items      []T                `json:"items"`
	Pagination PaginationResponse `json:"pagination"`
}

func NewListResponse[T any](items []T, filter types.QueryFilter) *ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return &ListResponse[T]{
		Items: items,
		Pagination: PaginationResponse{
			Limit:  filter.GetLimit(),
			Offset: filter.Offset,
		},
	}
}
