package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/schoolpay/schoolpay/app/repository"
	"github.com/schoolpay/schoolpay/internal/pkg/reconcile"
)

// HandleGetPaymentStatus answers a free-text order reference with the
// reconciled status view. Unknown references come back as a not-found view,
// not an HTTP error; the client polls again.
func HandleGetPaymentStatus(c *fiber.Ctx) error {
	ref := c.Params("ref")

	repos := repository.GetGlobalRepositories()
	var gatewayClient reconcile.GatewayClient
	if client := reconcile.NewGatewayClientFromEnv(); client != nil {
		gatewayClient = client
	}
	query := reconcile.NewQueryService(repos.Order, repos.Payment, gatewayClient)

	view, err := query.GetStatus(c.UserContext(), ref)
	if err != nil {
		return err
	}
	return c.JSON(view)
}
