package testutil

import (
	"context"

	"github.com/flexprice/flexbill/internal/types"
)

// TestTenantID is the app every service test runs as
const TestTenantID = "app_test"

func SetupContext() context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, types.CtxTenantID, TestTenantID)
	ctx = context.WithValue(ctx, types.CtxUserID, types.DefaultUserID)
	ctx = context.WithValue(ctx, types.CtxRequestID, types.GenerateUUID())
	return ctx
}
