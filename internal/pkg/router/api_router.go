package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/schoolpay/schoolpay/app/controllers"
)

type ApiRouter struct {
}

const gatewayWebhookPath = "/api/v1/webhooks/gateway"

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Gateway callbacks are exempt from the limiter. Gateways retry on any
	// non-2xx, so a 429 during a settlement burst would cause a retry storm
	// and drop deliveries before they reach the ledger.
	api := app.Group("/api", limiter.New(limiter.Config{
		Max: 120,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == gatewayWebhookPath
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "schoolpay reconciliation api",
		})
	})

	v1 := api.Group("/v1")

	// Gateway callbacks. Always acknowledged with 200, see the controller.
	v1.Post("/webhooks/gateway", controllers.HandleGatewayWebhook)

	// Operator surface over the audit ledger.
	v1.Get("/webhooks", controllers.HandleListWebhookLedger)
	v1.Get("/webhooks/:id", controllers.HandleGetWebhookLedgerEntry)
	v1.Post("/webhooks/retry", controllers.HandleRetryFailedWebhooks)

	// Order intake and status lookup.
	v1.Post("/orders", controllers.HandleCreateOrder)
	v1.Get("/orders", controllers.HandleListOrders)
	v1.Get("/payments/:ref/status", controllers.HandleGetPaymentStatus)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
