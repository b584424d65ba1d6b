package router

import (
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/metrics"
)

// HttpRouter mounts the operational endpoints.
type HttpRouter struct {
	health   *controllers.HealthController
	docsFile string
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	if h.health != nil {
		app.Get("/healthz", h.health.HandleHealth)
	}

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	// fiber dashboard, only when credentials are configured
	user := env.GetEnv("MONITOR_USER", "")
	password := env.GetEnv("MONITOR_PASSWORD", "")
	if user != "" && password != "" {
		app.Get("/monitor", basicauth.New(basicauth.Config{
			Users: map[string]string{user: password},
		}), monitor.New(monitor.Config{Title: "PayFox"}))
	}

	// SWAGGER / OPENAPI
	if h.docsFile != "" {
		if _, err := os.Stat(h.docsFile); err != nil {
			log.Warnf("[Router] OpenAPI file %s not found, /docs/api disabled", h.docsFile)
			return
		}
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: h.docsFile,
			Path:     "v1",
		}))
	}
}

func NewHttpRouter(health *controllers.HealthController, docsFile string) *HttpRouter {
	return &HttpRouter{health: health, docsFile: docsFile}
}
