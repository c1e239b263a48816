package app

import (
	"github.com/osvaldoandrade/formfill/internal/controllers"
	"github.com/osvaldoandrade/formfill/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupMappings(app *Application) {
	start := controllers.NewStartJobController(app.Jobs).Handle
	logs := controllers.NewGetLogsController(app.Queries).Handle
	limit := middleware.RateLimitStart(app.RateLimiter, app.Config)

	// Root routes keep the contract of the browser client.
	app.Engine.POST("/", limit, start)
	app.Engine.GET("/", logs)

	v1 := app.Engine.Group("/v1/formfill")
	{
		v1.POST("/jobs", limit, start)
		v1.GET("/jobs/:id", controllers.NewGetJobController(app.Queries).Handle)
		v1.GET("/jobs/:id/logs", logs)
	}

	app.Engine.GET("/healthz", controllers.NewHealthController(app.Store).Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
