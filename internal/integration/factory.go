package integration

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/flexbill/internal/cache"
	"github.com/flexprice/flexbill/internal/domain/connection"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/httpclient"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/integration/nomod"
	"github.com/flexprice/flexbill/internal/integration/razorpay"
	"github.com/flexprice/flexbill/internal/integration/stripe"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/security"
	"github.com/flexprice/flexbill/internal/types"
)

// CredentialsTTL bounds how long decrypted credentials stay in the process cache
const CredentialsTTL = 5 * time.Minute

// Builder creates an adapter from a decrypted credential bundle
type Builder func(creds base.Credentials) base.Adapter

// Factory builds payment adapters for the tenant in context from its stored connections
type Factory struct {
	logger            *logger.Logger
	connectionRepo    connection.Repository
	encryptionService security.EncryptionService
	cache             cache.Cache

	mu       sync.RWMutex
	builders map[types.PaymentProvider]Builder
}

// NewFactory creates a new integration factory with the stripe, razorpay and nomod adapters registered
func NewFactory(
	logger *logger.Logger,
	connectionRepo connection.Repository,
	encryptionService security.EncryptionService,
	cache cache.Cache,
	client httpclient.Client,
) *Factory {
	f := &Factory{
		logger:            logger,
		connectionRepo:    connectionRepo,
		encryptionService: encryptionService,
		cache:             cache,
		builders:          make(map[types.PaymentProvider]Builder),
	}

	f.Register(types.PaymentProviderStripe, func(creds base.Credentials) base.Adapter {
		return stripe.NewAdapter(creds, logger)
	})
	f.Register(types.PaymentProviderRazorpay, func(creds base.Credentials) base.Adapter {
		return razorpay.NewAdapter(creds, client, logger)
	})
	f.Register(types.PaymentProviderNomod, func(creds base.Credentials) base.Adapter {
		return nomod.NewAdapter(creds, client, logger)
	})
	return f
}

// Register sets the builder used for provider, replacing any previous one
func (f *Factory) Register(provider types.PaymentProvider, builder Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[provider] = builder
}

// GetAdapter returns an adapter for provider configured with the tenant's credentials
func (f *Factory) GetAdapter(ctx context.Context, provider types.PaymentProvider) (base.Adapter, error) {
	f.mu.RLock()
	builder, ok := f.builders[provider]
	f.mu.RUnlock()
	if !ok {
		return nil, ierr.NewError("unsupported payment provider").
			WithHintf("Payment provider %s is not supported", provider).
			WithReportableDetails(map[string]any{"provider": provider}).
			Mark(ierr.ErrValidation)
	}

	creds, err := f.GetCredentials(ctx, provider)
	if err != nil {
		return nil, err
	}
	return builder(*creds), nil
}

// GetCredentials loads and decrypts the tenant's connection for provider,
// read through the credentials cache
func (f *Factory) GetCredentials(ctx context.Context, provider types.PaymentProvider) (*base.Credentials, error) {
	key := cache.GenerateKey(cache.PrefixConnection, types.GetTenantID(ctx), provider)
	if cached, found := f.cache.Get(ctx, key); found {
		if creds, ok := cached.(*base.Credentials); ok {
			return creds, nil
		}
	}

	conn, err := f.connectionRepo.GetByProvider(ctx, provider)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.WithError(err).
				WithHintf("No %s connection is configured", provider).
				WithReportableDetails(map[string]any{"provider": provider}).
				Mark(ierr.ErrNotFound)
		}
		return nil, err
	}

	creds, err := f.decrypt(conn)
	if err != nil {
		return nil, err
	}

	f.cache.Set(ctx, key, creds, CredentialsTTL)
	return creds, nil
}

// InvalidateCredentials drops the cached credentials of the tenant's connection for provider
func (f *Factory) InvalidateCredentials(ctx context.Context, provider types.PaymentProvider) {
	f.cache.Delete(ctx, cache.GenerateKey(cache.PrefixConnection, types.GetTenantID(ctx), provider))
}

func (f *Factory) decrypt(conn *connection.Connection) (*base.Credentials, error) {
	secretKey, err := f.encryptionService.Decrypt(conn.SecretKey)
	if err != nil {
		f.logger.Errorw("failed to decrypt connection secret key",
			"connection_id", conn.ID,
			"provider", conn.Provider,
			"error", err)
		return nil, err
	}

	var webhookSecret string
	if conn.WebhookSecret != "" {
		webhookSecret, err = f.encryptionService.Decrypt(conn.WebhookSecret)
		if err != nil {
			f.logger.Errorw("failed to decrypt connection webhook secret",
				"connection_id", conn.ID,
				"provider", conn.Provider,
				"error", err)
			return nil, err
		}
	}

	return &base.Credentials{
		SecretKey:     secretKey,
		PublicKey:     conn.PublicKey,
		MerchantID:    conn.MerchantID,
		APIBaseURL:    conn.APIBaseURL,
		WebhookSecret: webhookSecret,
	}, nil
}
