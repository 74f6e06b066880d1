package internal

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/flexprice/flexbill/internal/service"
	"github.com/flexprice/flexbill/internal/types"
)

// RunJob runs one scheduled job, for TENANT_ID only when it is set
func RunJob() error {
	job := strings.ReplaceAll(os.Getenv("JOB"), "-", "_")
	if job == "" {
		return fmt.Errorf("JOB is required, one of %v", types.JobNames)
	}

	env := newScriptEnv()
	defer env.Close()

	jobs := service.NewJobService(env.params, env.dispatcher)
	ctx := context.Background()

	if tenantID := os.Getenv("TENANT_ID"); tenantID != "" {
		items, err := jobs.RunForTenant(types.SetTenantID(ctx, tenantID), job)
		if err != nil {
			return err
		}
		fmt.Printf("%s for %s handled %d items\n", job, tenantID, items)
		return nil
	}

	resp, err := jobs.Run(ctx, job)
	if err != nil {
		return err
	}
	fmt.Printf("%s: tenants=%d items=%d errors=%d\n", resp.Job, resp.Tenants, resp.Items, resp.Errors)
	return nil
}
