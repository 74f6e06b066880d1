package service

import (
	"context"
	"strings"

	"github.com/flexprice/flexbill/internal/api/dto"
	"github.com/flexprice/flexbill/internal/domain/connection"
	"github.com/flexprice/flexbill/internal/types"
)

// ConnectionService manages the tenant's payment provider credentials
type ConnectionService interface {
	UpsertConnection(ctx context.Context, provider types.PaymentProvider, req dto.UpsertConnectionRequest) (*dto.ConnectionResponse, error)
	GetConnection(ctx context.Context, provider types.PaymentProvider) (*dto.ConnectionResponse, error)
	TestConnection(ctx context.Context, provider types.PaymentProvider) (*dto.TestConnectionResponse, error)
	DeleteConnection(ctx context.Context, provider types.PaymentProvider) error
}

type connectionService struct {
	ServiceParams
}

// NewConnectionService creates a new connection service
func NewConnectionService(params ServiceParams) ConnectionService {
	return &connectionService{
		ServiceParams: params,
	}
}

func (s *connectionService) UpsertConnection(ctx context.Context, provider types.PaymentProvider, req dto.UpsertConnectionRequest) (*dto.ConnectionResponse, error) {
	if err := provider.Validate(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	secretKey, err := s.EncryptionService.Encrypt(req.SecretKey)
	if err != nil {
		return nil, err
	}

	var webhookSecret string
	if req.WebhookSecret != "" {
		webhookSecret, err = s.EncryptionService.Encrypt(req.WebhookSecret)
		if err != nil {
			return nil, err
		}
	}

	conn := &connection.Connection{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CONNECTION),
		Provider:      provider,
		SecretKey:     secretKey,
		PublicKey:     req.PublicKey,
		MerchantID:    req.MerchantID,
		APIBaseURL:    strings.TrimRight(req.APIBaseURL, "/"),
		WebhookSecret: webhookSecret,
		BaseModel:     s.baseModel(ctx),
	}
	if err := s.ConnectionRepo.Upsert(ctx, conn); err != nil {
		return nil, err
	}
	s.IntegrationFactory.InvalidateCredentials(ctx, provider)

	s.Logger.Infow("stored payment provider connection",
		"provider", provider,
		"connection_id", conn.ID)

	return s.toResponse(ctx, conn), nil
}

func (s *connectionService) GetConnection(ctx context.Context, provider types.PaymentProvider) (*dto.ConnectionResponse, error) {
	if err := provider.Validate(); err != nil {
		return nil, err
	}
	conn, err := s.ConnectionRepo.GetByProvider(ctx, provider)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, conn), nil
}

// TestConnection makes an authenticated call with the stored credentials.
// A rejected call is reported in the response, not as an error.
func (s *connectionService) TestConnection(ctx context.Context, provider types.PaymentProvider) (*dto.TestConnectionResponse, error) {
	if err := provider.Validate(); err != nil {
		return nil, err
	}
	adapter, err := s.IntegrationFactory.GetAdapter(ctx, provider)
	if err != nil {
		return nil, err
	}

	resp := &dto.TestConnectionResponse{Provider: provider, OK: true}
	if err := adapter.TestConnection(ctx); err != nil {
		s.Logger.Warnw("payment provider connection test failed",
			"provider", provider,
			"error", err)
		resp.OK = false
		resp.Error = err.Error()
	}
	return resp, nil
}

func (s *connectionService) DeleteConnection(ctx context.Context, provider types.PaymentProvider) error {
	if err := provider.Validate(); err != nil {
		return err
	}
	if err := s.ConnectionRepo.Delete(ctx, provider); err != nil {
		return err
	}
	s.IntegrationFactory.InvalidateCredentials(ctx, provider)
	return nil
}

func (s *connectionService) toResponse(ctx context.Context, conn *connection.Connection) *dto.ConnectionResponse {
	resp := &dto.ConnectionResponse{
		Connection:       conn,
		HasWebhookSecret: conn.WebhookSecret != "",
	}
	if adapter, err := s.IntegrationFactory.GetAdapter(ctx, conn.Provider); err == nil {
		resp.SupportedMethods = adapter.GetSupportedMethods()
	}
	return resp
}
