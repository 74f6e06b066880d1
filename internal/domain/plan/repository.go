package plan

import (
	"context"
)

type Repository interface {
	Create(ctx context.Context, plan *Plan) error
	Get(ctx context.Context, id string) (*Plan, error)
	Update(ctx context.Context, plan *Plan) error
	// Delete soft deletes the plan. Callers must check it is no longer referenced.
	Delete(ctx context.Context, id string) error
}
