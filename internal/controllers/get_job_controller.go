package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/osvaldoandrade/formfill/internal/services"
	"github.com/osvaldoandrade/formfill/pkg/persistence"

	"github.com/gin-gonic/gin"
)

type getJobController struct{ svc services.JobQueryService }

func NewGetJobController(svc services.JobQueryService) *getJobController {
	return &getJobController{svc}
}

func (h *getJobController) Handle(c *gin.Context) {
	st, err := h.svc.State(c.Request.Context(), c.Param("id"))
	if errors.Is(err, persistence.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func loggerFrom(c *gin.Context) *slog.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}
