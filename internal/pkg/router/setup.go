package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the controllers the routers mount.
type Dependencies struct {
	Webhooks *controllers.WebhookController
	Health   *controllers.HealthController
	// DocsFile is the OpenAPI document served under /docs/api; empty disables it.
	DocsFile string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewHttpRouter(deps.Health, deps.DocsFile), NewWebhookRouter(deps.Webhooks))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
