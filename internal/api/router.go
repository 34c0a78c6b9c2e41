package api

import (
	"net/http"

	"github.com/datallboy/datascan/internal/api/controllers"
	"github.com/datallboy/datascan/internal/app"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	dsCtrl := &controllers.DatasetsController{App: app}

	e.GET("/healthz", func(c *echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.POST("/api/datasets/ingest", dsCtrl.Ingest)
	e.GET("/api/datasets", dsCtrl.List)
	e.GET("/api/datasets/:id", dsCtrl.Get)
	e.GET("/api/datasets/:id/files", dsCtrl.Files)
}
