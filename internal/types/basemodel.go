package types

import (
	"context"
	"time"
)

// BaseModel carries the tenant scoping and audit columns every billing record shares.
// Records are scoped to the app of the request that created them.
type BaseModel struct {
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
}

// NewBaseModel stamps a published record for the tenant and user of ctx at now
func NewBaseModel(ctx context.Context, now time.Time) BaseModel {
	userID := GetUserID(ctx)
	return BaseModel{
		TenantID:  GetTenantID(ctx),
		Status:    StatusPublished,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
		CreatedBy: userID,
		UpdatedBy: userID,
	}
}

func GetDefaultBaseModel(ctx context.Context) BaseModel {
	return NewBaseModel(ctx, time.Now())
}

// Touch records an update by the user of ctx
func (b *BaseModel) Touch(ctx context.Context, now time.Time) {
	b.UpdatedAt = now.UTC()
	b.UpdatedBy = GetUserID(ctx)
}
