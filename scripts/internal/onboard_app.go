package internal

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/flexprice/flexbill/internal/api/dto"
	"github.com/flexprice/flexbill/internal/auth"
	"github.com/flexprice/flexbill/internal/service"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
)

// OnboardApp creates the app of TENANT_ID, registers its webhook endpoint and
// payment connection when given, and prints an API key for it
func OnboardApp() error {
	tenantID := os.Getenv("TENANT_ID")
	if tenantID == "" {
		return fmt.Errorf("TENANT_ID is required")
	}

	env := newScriptEnv()
	defer env.Close()

	ctx := types.SetTenantID(context.Background(), tenantID)
	userID := os.Getenv("USER_ID")
	if userID == "" {
		userID = types.DefaultUserID
	}
	ctx = types.SetUserID(ctx, userID)

	settings := service.NewSettingsService(env.params)
	a, err := settings.EnsureApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	fmt.Printf("App: %s (grace period %d days)\n", a.ID, a.GracePeriodDays)

	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		events := lo.Compact(strings.Split(os.Getenv("WEBHOOK_EVENTS"), ","))
		resp, err := settings.UpdateWebhookSettings(ctx, dto.UpdateWebhookSettingsRequest{
			URL:    url,
			Events: events,
		})
		if err != nil {
			return fmt.Errorf("failed to set webhook endpoint: %w", err)
		}
		fmt.Printf("Webhook endpoint: %s\n", resp.WebhookURL)
		if resp.WebhookSecret != "" {
			fmt.Printf("Webhook signing secret: %s\n", resp.WebhookSecret)
		}
	}

	if provider := types.PaymentProvider(os.Getenv("PROVIDER")); provider != "" {
		if err := provider.Validate(); err != nil {
			return err
		}
		connections := service.NewConnectionService(env.params)
		if _, err := connections.UpsertConnection(ctx, provider, dto.UpsertConnectionRequest{
			SecretKey:     os.Getenv("PROVIDER_SECRET_KEY"),
			PublicKey:     os.Getenv("PROVIDER_PUBLIC_KEY"),
			MerchantID:    os.Getenv("PROVIDER_MERCHANT_ID"),
			WebhookSecret: os.Getenv("PROVIDER_WEBHOOK_SECRET"),
		}); err != nil {
			return fmt.Errorf("failed to store %s connection: %w", provider, err)
		}

		result, err := connections.TestConnection(ctx, provider)
		if err != nil {
			return err
		}
		fmt.Printf("Connection %s: ok=%t %s\n", provider, result.OK, result.Error)
	}

	key := auth.GenerateAPIKey()
	fmt.Printf("API key: %s\n", key)
	fmt.Printf("Add to auth.api_keys: %q: %q\n", auth.HashAPIKey(key), tenantID)
	return nil
}
