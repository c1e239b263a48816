package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware stores a request-scoped logger under "logger" and emits one
// access line per request. Health probes on "/" are logged at debug.
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		reqLogger := logger
		if id, ok := c.Get(requestIDKey); ok {
			reqLogger = logger.With("request_id", id)
		}
		c.Set("logger", reqLogger)

		c.Next()

		level := slog.LevelInfo
		if c.Request.Method == "GET" && c.FullPath() == "/" {
			level = slog.LevelDebug
		}
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		reqLogger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
