package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/schoolpay/schoolpay/app/repository"
	"github.com/schoolpay/schoolpay/internal/pkg/ledger"
	"github.com/schoolpay/schoolpay/internal/pkg/reconcile"
)

const webhookAttemptTimeout = 30 * time.Second

// webhookOrderBody is the order block of a webhook acknowledgement.
type webhookOrderBody struct {
	OrderID           uint    `json:"orderId"`
	CustomOrderID     string  `json:"customOrderId"`
	Status            string  `json:"status"`
	OrderAmount       float64 `json:"orderAmount"`
	TransactionAmount float64 `json:"transactionAmount"`
	PreviousStatus    string  `json:"previousStatus"`
}

// webhookResponse is always delivered with HTTP 200. Gateways retry on any
// non-2xx, and a retry storm over a payload we already recorded helps nobody.
type webhookResponse struct {
	Success   bool              `json:"success"`
	WebhookID string            `json:"webhookId"`
	Message   string            `json:"message"`
	Order     *webhookOrderBody `json:"order,omitempty"`
}

// HandleGatewayWebhook ingests one gateway notification: audit first, then
// normalize and reconcile, then close the audit row. Nothing thrown inside
// the pipeline ever crosses this boundary as an HTTP error.
func HandleGatewayWebhook(c *fiber.Ctx) error {
	started := time.Now()
	rawBody := append([]byte(nil), c.BodyRaw()...)
	gateway := resolveGatewayName(c)

	repos := repository.GetGlobalRepositories()
	ledgerSvc := ledger.NewService(repos.Ledger)
	engine := reconcile.NewService(repos.Order, repos.Payment)

	entry, err := ledgerSvc.Record(gateway, rawBody, requestHeaders(c), c.IP())
	if err != nil {
		// Without an audit row there is nothing to retry against; still no 5xx.
		log.Errorf("[Webhook] ledger append failed: %v", err)
		return c.JSON(webhookResponse{Success: false, Message: "webhook could not be recorded"})
	}

	if err := ledgerSvc.BeginProcessing(entry.WebhookID); err != nil {
		log.Warnf("[Webhook] mark processing failed for %s: %v", entry.WebhookID, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookAttemptTimeout)
	defer cancel()

	result, err := engine.ProcessRaw(ctx, gateway, rawBody)
	if err != nil {
		if ferr := ledgerSvc.Fail(entry, err); ferr != nil {
			log.Errorf("[Webhook] failure bookkeeping for %s: %v", entry.WebhookID, ferr)
		}
		message := "webhook processing failed"
		if errors.Is(err, reconcile.ErrUnknownShape) {
			message = "unrecognized webhook payload"
		}
		return c.JSON(webhookResponse{
			Success:   false,
			WebhookID: entry.WebhookID,
			Message:   message,
		})
	}

	resp := webhookResponse{
		Success:   true,
		WebhookID: entry.WebhookID,
		Message:   "webhook processed",
	}
	switch result.Outcome {
	case reconcile.OutcomeOrderNotFound:
		resp.Success = false
		resp.Message = "order_not_found"
	case reconcile.OutcomeSkipped:
		resp.Message = "duplicate or stale event ignored"
		resp.Order = orderBody(result)
	default:
		resp.Order = orderBody(result)
	}

	if err := ledgerSvc.CloseProcessed(entry, result.CustomOrderID, result, started); err != nil {
		log.Errorf("[Webhook] ledger close failed for %s: %v", entry.WebhookID, err)
	}
	return c.JSON(resp)
}

func orderBody(result *reconcile.Result) *webhookOrderBody {
	return &webhookOrderBody{
		OrderID:           result.OrderID,
		CustomOrderID:     result.CustomOrderID,
		Status:            result.Status,
		OrderAmount:       result.OrderAmount,
		TransactionAmount: result.TransactionAmount,
		PreviousStatus:    result.PreviousStatus,
	}
}

func resolveGatewayName(c *fiber.Ctx) string {
	if v := strings.TrimSpace(c.Query("gateway")); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.Get("X-Gateway-Name")); v != "" {
		return v
	}
	return "edviron"
}
