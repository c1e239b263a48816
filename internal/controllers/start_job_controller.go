package controllers

import (
	"errors"
	"net/http"

	"github.com/osvaldoandrade/formfill/internal/services"
	"github.com/osvaldoandrade/formfill/pkg/domain"

	"github.com/gin-gonic/gin"
)

type startJobController struct{ svc services.JobService }

func NewStartJobController(svc services.JobService) *startJobController {
	return &startJobController{svc}
}

// Handle runs the job to completion before responding. Browser clients
// fire this request without awaiting it and follow progress by polling.
func (h *startJobController) Handle(c *gin.Context) {
	var req domain.JobRequest
	// The browser client posts JSON as text/plain, so bind by body, not header.
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.StartResult{Success: false, Message: "invalid body"})
		return
	}

	res, err := h.svc.Start(c.Request.Context(), req)
	c.JSON(statusFor(err), res)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrJobExists):
		return http.StatusConflict
	case errors.Is(err, services.ErrLockTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
