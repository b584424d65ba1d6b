package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/app/models"
)

// WebhookRouter mounts one POST route per payment provider.
type WebhookRouter struct {
	controller *controllers.WebhookController
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	if h.controller == nil {
		return
	}
	webhooks := app.Group("/webhooks")
	webhooks.Post("/paypal", h.controller.Handle(models.ProviderPayPal))
	webhooks.Post("/stripe", h.controller.Handle(models.ProviderStripe))
}

func NewWebhookRouter(controller *controllers.WebhookController) *WebhookRouter {
	return &WebhookRouter{controller: controller}
}
