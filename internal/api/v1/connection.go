package v1

import (
	"net/http"

	"github.com/flexprice/flexbill/internal/api/dto"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/service"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/gin-gonic/gin"
)

type ConnectionHandler struct {
	service service.ConnectionService
	log     *logger.Logger
}

func NewConnectionHandler(service service.ConnectionService, log *logger.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		service: service,
		log:     log,
	}
}

func providerParam(c *gin.Context) (types.PaymentProvider, error) {
	provider := types.PaymentProvider(c.Param("provider"))
	if err := provider.Validate(); err != nil {
		return "", err
	}
	return provider, nil
}

// @Summary Upsert provider connection
// @Description Store the credentials of a payment provider, encrypted at rest
// @Tags Connections
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param provider path string true "Payment provider" Enums(stripe, razorpay, nomod)
// @Param connection body dto.UpsertConnectionRequest true "Credentials"
// @Success 200 {object} dto.ConnectionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /connections/{provider} [put]
func (h *ConnectionHandler) UpsertConnection(c *gin.Context) {
	provider, err := providerParam(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req dto.UpsertConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.UpsertConnection(c.Request.Context(), provider, req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get provider connection
// @Description Secrets are never returned
// @Tags Connections
// @Produce json
// @Security ApiKeyAuth
// @Param provider path string true "Payment provider" Enums(stripe, razorpay, nomod)
// @Success 200 {object} dto.ConnectionResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /connections/{provider} [get]
func (h *ConnectionHandler) GetConnection(c *gin.Context) {
	provider, err := providerParam(c)
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.service.GetConnection(c.Request.Context(), provider)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Test provider connection
// @Description Make an authenticated read call with the stored credentials
// @Tags Connections
// @Produce json
// @Security ApiKeyAuth
// @Param provider path string true "Payment provider" Enums(stripe, razorpay, nomod)
// @Success 200 {object} dto.TestConnectionResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /connections/{provider}/test [post]
func (h *ConnectionHandler) TestConnection(c *gin.Context) {
	provider, err := providerParam(c)
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.service.TestConnection(c.Request.Context(), provider)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Delete provider connection
// @Tags Connections
// @Security ApiKeyAuth
// @Param provider path string true "Payment provider" Enums(stripe, razorpay, nomod)
// @Success 204
// @Failure 404 {object} ierr.ErrorResponse
// @Router /connections/{provider} [delete]
func (h *ConnectionHandler) DeleteConnection(c *gin.Context) {
	provider, err := providerParam(c)
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.service.DeleteConnection(c.Request.Context(), provider); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
