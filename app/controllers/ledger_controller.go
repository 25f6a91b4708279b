package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/schoolpay/schoolpay/app/repository"
	"github.com/schoolpay/schoolpay/internal/pkg/ledger"
)

// HandleListWebhookLedger lists audit entries for operator tooling,
// filterable by lifecycle status, order reference and gateway.
func HandleListWebhookLedger(c *fiber.Ctx) error {
	offset, limit, page := parsePagination(c)
	filter := repository.LedgerFilter{
		Status:   strings.TrimSpace(c.Query("status")),
		OrderRef: strings.TrimSpace(c.Query("order_ref")),
		Gateway:  strings.TrimSpace(c.Query("gateway")),
	}

	repos := repository.GetGlobalRepositories()
	entries, total, err := ledger.NewService(repos.Ledger).List(filter, offset, limit)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    entries,
		"pagination": fiber.Map{
			"current_page":   page,
			"items_per_page": limit,
			"total_items":    total,
		},
	})
}

// HandleGetWebhookLedgerEntry fetches one audit entry by webhook id.
func HandleGetWebhookLedgerEntry(c *fiber.Ctx) error {
	repos := repository.GetGlobalRepositories()
	entry, found, err := ledger.NewService(repos.Ledger).Get(c.Params("id"))
	if err != nil {
		return err
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "webhook not found",
		})
	}
	return c.JSON(fiber.Map{"success": true, "data": entry})
}

// HandleRetryFailedWebhooks triggers one retry sweep and reports per-entry
// results. A sweep already holding the lease yields 409, not a double run.
func HandleRetryFailedWebhooks(c *fiber.Ctx) error {
	sweeper := ledger.DefaultSweeper()
	if sweeper == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "retry sweeper not initialized")
	}

	summary, err := sweeper.RunOnce(c.UserContext())
	if err != nil {
		if errors.Is(err, ledger.ErrSweepActive) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "a retry sweep is already running",
			})
		}
		return err
	}

	return c.JSON(fiber.Map{
		"processed": summary.Processed,
		"results":   summary.Results,
		"summary": fiber.Map{
			"successful":  summary.Successful,
			"rescheduled": summary.Rescheduled,
			"exhausted":   summary.Exhausted,
		},
	})
}
