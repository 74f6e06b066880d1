package v1

import (
	"net/http"

	"github.com/flexprice/flexbill/internal/api/dto"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/service"
	"github.com/gin-gonic/gin"
)

type EventsHandler struct {
	service service.UsageService
	log     *logger.Logger
}

func NewEventsHandler(service service.UsageService, log *logger.Logger) *EventsHandler {
	return &EventsHandler{
		service: service,
		log:     log,
	}
}

// @Summary Ingest usage event
// @Description Record metered usage for a subscription. Events are deduplicated by event_id.
// @Tags Events
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param event body dto.IngestUsageRequest true "Usage event"
// @Success 202 {object} dto.IngestUsageResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /events [post]
func (h *EventsHandler) IngestEvent(c *gin.Context) {
	var req dto.IngestUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.IngestEvent(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}
