package cron

import (
	"net/http"
	"strings"

	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/service"
	"github.com/gin-gonic/gin"
)

// JobHandler triggers the scheduled jobs by hand. A run covers every app.
type JobHandler struct {
	jobService service.JobService
	logger     *logger.Logger
}

func NewJobHandler(jobService service.JobService, logger *logger.Logger) *JobHandler {
	return &JobHandler{
		jobService: jobService,
		logger:     logger,
	}
}

// @Summary Run scheduled job
// @Description Run one scheduled job now, across every app
// @Tags Cron
// @Produce json
// @Param job path string true "Job name, for example renewal_due or renewal-due"
// @Success 200 {object} dto.JobRunResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /cron/{job} [post]
func (h *JobHandler) RunJob(c *gin.Context) {
	job := strings.ReplaceAll(c.Param("job"), "-", "_")

	h.logger.Infow("starting cron job", "job", job)

	response, err := h.jobService.Run(c.Request.Context(), job)
	if err != nil {
		h.logger.Errorw("cron job failed",
			"job", job,
			"error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response)
}
