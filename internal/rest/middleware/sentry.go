package middleware

import (
	"time"

	"github.com/flexprice/flexbill/internal/config"
	"github.com/flexprice/flexbill/internal/types"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// SentryMiddleware returns a middleware that captures panics and performance data
func SentryMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	if !cfg.Sentry.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// SentryScopeMiddleware tags the request's sentry scope with the app and request
// ids. It runs after authentication so the tenant is known.
func SentryScopeMiddleware(c *gin.Context) {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		ctx := c.Request.Context()
		hub.Scope().SetTag("tenant_id", types.GetTenantID(ctx))
		hub.Scope().SetTag("request_id", types.GetRequestID(ctx))
	}
	c.Next()
}
