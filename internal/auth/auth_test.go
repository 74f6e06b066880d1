package auth

import (
	"context"
	"testing"
	"time"

	"github.com/flexprice/flexbill/internal/config"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Configuration {
	cfg := config.GetDefaultConfig()
	cfg.Auth.Secret = "test-secret"
	return cfg
}

func TestTokenRoundTrip(t *testing.T) {
	provider := NewProvider(testConfig())

	token, err := provider.GenerateToken("user_1", "app_1", time.Hour)
	require.NoError(t, err)

	claims, err := provider.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user_1", claims.UserID)
	assert.Equal(t, "app_1", claims.TenantID)
}

func TestValidateTokenRejects(t *testing.T) {
	cfg := testConfig()
	provider := NewProvider(cfg)

	other := testConfig()
	other.Auth.Secret = "other-secret"
	forged, err := NewProvider(other).GenerateToken("user_1", "app_1", time.Hour)
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":   "user_1",
		"tenant_id": "app_1",
		"exp":       time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(cfg.Auth.Secret))
	require.NoError(t, err)

	noTenant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "user_1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(cfg.Auth.Secret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: forged},
		{name: "expired", token: expired},
		{name: "missing tenant", token: noTenant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.ValidateToken(context.Background(), tt.token)
			require.Error(t, err)
			assert.True(t, ierr.IsPermissionDenied(err))
		})
	}
}

func TestValidateAPIKey(t *testing.T) {
	cfg := testConfig()
	key := GenerateAPIKey()
	cfg.Auth.APIKeys = map[string]string{HashAPIKey(key): "app_1"}

	tenantID, ok := ValidateAPIKey(cfg, key)
	assert.True(t, ok)
	assert.Equal(t, "app_1", tenantID)

	_, ok = ValidateAPIKey(cfg, "unknown")
	assert.False(t, ok)

	_, ok = ValidateAPIKey(cfg, "")
	assert.False(t, ok)
}
