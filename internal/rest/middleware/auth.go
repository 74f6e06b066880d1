package middleware

import (
	"net/http"
	"strings"

	"github.com/flexprice/flexbill/internal/auth"
	"github.com/flexprice/flexbill/internal/config"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/gin-gonic/gin"
)

// AuthenticateMiddleware is a middleware that authenticates requests based on either:
// 1. API key in the x-api-key header
// 2. JWT token in the Authorization header as a Bearer token
// It sets the user ID and tenant ID in the request context for downstream handlers
func AuthenticateMiddleware(cfg *config.Configuration, provider auth.Provider, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// First check for API key
		apiKeyHeader := c.GetHeader(types.HeaderAPIKey)
		if apiKeyHeader != "" {
			tenantID, valid := auth.ValidateAPIKey(cfg, apiKeyHeader)
			if !valid {
				logger.Debugw("invalid api key")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
				c.Abort()
				return
			}

			ctx := types.SetTenantID(c.Request.Context(), tenantID)
			ctx = types.SetUserID(ctx, types.DefaultUserID)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		// If no API key, check for JWT token
		authHeader := c.GetHeader(types.HeaderAuthorization)
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := provider.ValidateToken(c.Request.Context(), tokenString)
		if err != nil {
			logger.Debugw("failed to validate token", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		ctx := types.SetUserID(c.Request.Context(), claims.UserID)
		ctx = types.SetTenantID(ctx, claims.TenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CronAuthMiddleware guards the manual job triggers. They run across every app,
// so a tenant token is not enough: the caller must present the configured cron key.
func CronAuthMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(types.HeaderAPIKey)
		if cfg.Auth.CronKey == "" || key == "" || auth.HashAPIKey(key) != cfg.Auth.CronKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
