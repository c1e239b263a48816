package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthChecker interface {
	Health(ctx context.Context) error
}

type healthController struct{ store healthChecker }

// NewHealthController reports storage reachability. Unlike GET / it fails
// when the backend is down, which is what readiness probes want.
func NewHealthController(store healthChecker) *healthController {
	return &healthController{store}
}

func (h *healthController) Handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Health(ctx); err != nil {
		loggerFrom(c).Warn("storage health check failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
