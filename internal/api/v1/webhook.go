package v1

import (
	"io"
	"net/http"

	"github.com/flexprice/flexbill/internal/api/dto"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/integration/base"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/service"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/gin-gonic/gin"
)

// maxWebhookBodyBytes bounds provider callback bodies
const maxWebhookBodyBytes = 1 << 20

// WebhookHandler receives provider callbacks and exposes the app's outgoing deliveries
type WebhookHandler struct {
	reconciler service.Reconciler
	deliveries service.WebhookDeliveryService
	logger     *logger.Logger
}

func NewWebhookHandler(
	reconciler service.Reconciler,
	deliveries service.WebhookDeliveryService,
	logger *logger.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		deliveries: deliveries,
		logger:     logger,
	}
}

// @Summary Receive provider webhook
// @Description Provider callbacks are authenticated by the provider's own
// @Description signature scheme, not by an API key. The tenant comes from the path.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param provider path string true "Payment provider" Enums(stripe, razorpay, nomod)
// @Param tenant_id path string true "App ID"
// @Success 200 {object} dto.WebhookReceivedResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 401 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /webhooks/{provider}/{tenant_id} [post]
func (h *WebhookHandler) HandleProviderWebhook(c *gin.Context) {
	provider := types.PaymentProvider(c.Param("provider"))
	tenantID := c.Param("tenant_id")
	if tenantID == "" {
		c.Error(ierr.NewError("tenant_id is required").
			WithHint("Tenant ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	// the signature covers the raw bytes, so the body is read once and never re-encoded
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Failed to read request body").
			Mark(ierr.ErrValidation))
		return
	}

	ctx := types.SetTenantID(c.Request.Context(), tenantID)
	h.logger.Debugw("received provider webhook",
		"provider", provider,
		"tenant_id", tenantID,
		"content_length", len(body))

	result, err := h.reconciler.Process(ctx, &base.InboundRequest{
		Provider: provider,
		Body:     body,
		Headers:  c.Request.Header.Clone(),
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.WebhookReceivedResponse{
		Received:  true,
		Duplicate: result.Duplicate,
		Ignored:   result.Ignored,
		LogID:     result.LogID,
	})
}

// @Summary List webhook deliveries
// @Description Outgoing deliveries of the app's billing events
// @Tags Webhooks
// @Produce json
// @Security ApiKeyAuth
// @Param filter query types.WebhookDeliveryFilter false "Filter"
// @Success 200 {object} dto.ListWebhookDeliveriesResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /webhooks/deliveries [get]
func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	var filter types.WebhookDeliveryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.deliveries.ListDeliveries(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Retry webhook delivery
// @Description Send a permanently failed delivery again with a fresh set of attempts
// @Tags Webhooks
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Delivery ID"
// @Success 200 {object} dto.WebhookDeliveryResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /webhooks/deliveries/{id}/retry [post]
func (h *WebhookHandler) RetryDelivery(c *gin.Context) {
	resp, err := h.deliveries.RetryDelivery(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
