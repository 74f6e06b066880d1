package service

import (
	"context"

	"github.com/flexprice/flexbill/internal/api/dto"
	"github.com/flexprice/flexbill/internal/domain/app"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/security"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

// webhookSecretPrefix marks outgoing signing secrets
const webhookSecretPrefix = "whsec_"

// SettingsService manages the per-app settings of the tenant in context
type SettingsService interface {
	// EnsureApp returns the tenant's app, creating it with defaults on first use
	EnsureApp(ctx context.Context) (*app.App, error)
	GetSettings(ctx context.Context) (*dto.SettingsResponse, error)
	UpdateWebhookSettings(ctx context.Context, req dto.UpdateWebhookSettingsRequest) (*dto.SettingsResponse, error)
	UpdateGracePeriod(ctx context.Context, req dto.UpdateGracePeriodRequest) (*dto.SettingsResponse, error)
}

type settingsService struct {
	ServiceParams
}

func NewSettingsService(params ServiceParams) SettingsService {
	return &settingsService{
		ServiceParams: params,
	}
}

func (s *settingsService) EnsureApp(ctx context.Context) (*app.App, error) {
	a, err := s.AppRepo.Get(ctx)
	if err == nil {
		return a, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	tenantID := types.GetTenantID(ctx)
	a = &app.App{
		ID:              tenantID,
		Name:            tenantID,
		GracePeriodDays: s.Config.Billing.DefaultGracePeriodDays,
		WebhookEvents:   pq.StringArray{},
		BaseModel:       s.baseModel(ctx),
	}
	if err := s.AppRepo.Create(ctx, a); err != nil {
		// lost a race with another request creating the same app
		if ierr.IsAlreadyExists(err) {
			return s.AppRepo.Get(ctx)
		}
		return nil, err
	}

	s.Logger.Infow("created app for tenant", "app_id", a.ID)
	return a, nil
}

func (s *settingsService) GetSettings(ctx context.Context) (*dto.SettingsResponse, error) {
	a, err := s.EnsureApp(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.SettingsResponse{App: a}, nil
}

func (s *settingsService) UpdateWebhookSettings(ctx context.Context, req dto.UpdateWebhookSettingsRequest) (*dto.SettingsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	a, err := s.EnsureApp(ctx)
	if err != nil {
		return nil, err
	}

	resp := &dto.SettingsResponse{App: a}
	a.WebhookURL = req.URL
	a.WebhookEvents = pq.StringArray(lo.Uniq(lo.Compact(req.Events)))

	if req.URL != "" && (a.WebhookSecret == "" || req.RotateSecret) {
		secret, err := generateWebhookSecret()
		if err != nil {
			return nil, err
		}
		encrypted, err := s.EncryptionService.Encrypt(secret)
		if err != nil {
			return nil, err
		}
		a.WebhookSecret = encrypted
		resp.WebhookSecret = secret
	}

	a.Touch(ctx, s.now())
	if err := s.AppRepo.Update(ctx, a); err != nil {
		return nil, err
	}

	s.Logger.Infow("updated webhook settings",
		"app_id", a.ID,
		"webhook_url", a.WebhookURL,
		"events", len(a.WebhookEvents),
		"secret_rotated", resp.WebhookSecret != "")
	return resp, nil
}

func (s *settingsService) UpdateGracePeriod(ctx context.Context, req dto.UpdateGracePeriodRequest) (*dto.SettingsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	a, err := s.EnsureApp(ctx)
	if err != nil {
		return nil, err
	}

	a.GracePeriodDays = req.Days
	a.Touch(ctx, s.now())
	if err := s.AppRepo.Update(ctx, a); err != nil {
		return nil, err
	}
	return &dto.SettingsResponse{App: a}, nil
}

func generateWebhookSecret() (string, error) {
	key, err := security.GenerateRandomKey()
	if err != nil {
		return "", err
	}
	return webhookSecretPrefix + key, nil
}
