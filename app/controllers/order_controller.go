package controllers

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/schoolpay/schoolpay/app/models"
	"github.com/schoolpay/schoolpay/app/repository"
)

var orderValidate = validator.New()

// createOrderRequest is the payload for registering a fee order ahead of
// payment collection.
type createOrderRequest struct {
	CustomOrderID string            `json:"custom_order_id" validate:"omitempty,min=4,max=64"`
	SchoolID      string            `json:"school_id" validate:"required,min=1,max=64"`
	Gateway       string            `json:"gateway" validate:"required,min=1,max=32"`
	Amount        float64           `json:"amount" validate:"required,gt=0"`
	StudentName   string            `json:"student_name" validate:"omitempty,max=255"`
	StudentID     string            `json:"student_id" validate:"omitempty,max=64"`
	StudentEmail  string            `json:"student_email" validate:"omitempty,email,max=255"`
	Metadata      map[string]string `json:"metadata" validate:"omitempty,max=32"`
}

// HandleCreateOrder registers a fee order so later webhooks can resolve it.
func HandleCreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid request body",
		})
	}
	if err := orderValidate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	customOrderID := strings.TrimSpace(req.CustomOrderID)
	if customOrderID == "" {
		customOrderID = newCustomOrderID()
	}

	order := &models.Order{
		CustomOrderID: customOrderID,
		SchoolID:      req.SchoolID,
		StudentName:   req.StudentName,
		StudentID:     req.StudentID,
		StudentEmail:  req.StudentEmail,
		Gateway:       req.Gateway,
		Amount:        req.Amount,
	}
	if len(req.Metadata) > 0 {
		meta := make(map[string]string, len(req.Metadata))
		for key, value := range req.Metadata {
			meta[key] = value
		}
		if err := order.SetMetadata(meta); err != nil {
			return err
		}
	}

	repos := repository.GetGlobalRepositories()
	if err := repos.Order.Create(order); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "order could not be created",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    order,
	})
}

// HandleListOrders pages through registered orders, optionally by school.
func HandleListOrders(c *fiber.Ctx) error {
	offset, limit, page := parsePagination(c)
	schoolID := strings.TrimSpace(c.Query("school_id"))

	repos := repository.GetGlobalRepositories()
	orders, total, err := repos.Order.List(schoolID, offset, limit)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"current_page":   page,
			"items_per_page": limit,
			"total_items":    total,
		},
	})
}

func newCustomOrderID() string {
	fragment := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "ORD_" + fragment[:16]
}
