package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/osvaldoandrade/formfill/internal/services"
	"github.com/osvaldoandrade/formfill/pkg/persistence"

	"github.com/gin-gonic/gin"
)

type getLogsController struct{ svc services.JobQueryService }

func NewGetLogsController(svc services.JobQueryService) *getLogsController {
	return &getLogsController{svc}
}

// Handle serves both GET /?jobId= and GET /v1/formfill/jobs/:id/logs.
// The root path without a job id doubles as a plain-text health check.
func (h *getLogsController) Handle(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("id"))
	if jobID == "" {
		jobID = strings.TrimSpace(c.Query("jobId"))
	}
	if jobID == "" {
		c.String(http.StatusOK, "OK")
		return
	}

	ctx := c.Request.Context()
	logs, err := h.svc.Logs(ctx, jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	body := gin.H{"success": true, "logs": logs}

	st, err := h.svc.State(ctx, jobID)
	switch {
	case err == nil:
		body["status"] = st
	case !errors.Is(err, persistence.ErrNotFound):
		loggerFrom(c).Warn("job state read failed", "jobId", jobID, "err", err)
	}
	c.JSON(http.StatusOK, body)
}
