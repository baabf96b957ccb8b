package http

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/bookshop/pkg/mylogger"
	"github.com/sakashimaa/bookshop/pkg/utils"
	"github.com/sakashimaa/bookshop/services/order/internal/repository"
	"github.com/sakashimaa/bookshop/services/order/internal/service"
	"go.uber.org/zap"
)

type SubmitOrderRequest struct {
	Isbn     string `json:"isbn" validate:"required"`
	Quantity *int   `json:"quantity" validate:"required,min=1"`
}

var orderMessages = utils.FieldMessages{
	"isbn.required":     "The book ISBN must be defined.",
	"quantity.required": "The book quantity must be defined.",
	"quantity.min":      "You must order at least 1 item.",
}

type OrderHandler struct {
	service     service.OrderService
	logger      *zap.Logger
	validate    *validator.Validate
	maxQuantity int
}

func NewOrderHandler(service service.OrderService, logger *zap.Logger, maxQuantity int) *OrderHandler {
	return &OrderHandler{
		service:     service,
		logger:      logger,
		validate:    validator.New(),
		maxQuantity: maxQuantity,
	}
}

func (h *OrderHandler) Submit(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var input SubmitOrderRequest
	if err := c.BodyParser(&input); err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"Failed to parse body in submit",
			zap.Error(err),
		)

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if validationErrors := h.validateSubmit(&input); len(validationErrors) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": validationErrors,
		})
	}

	order, err := h.service.SubmitOrder(ctx, input.Isbn, *input.Quantity, ownerFrom(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOrder):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, service.ErrEventPublish) && order != nil:
			// The order is stored and will be announced by the reconciler; a resubmit would duplicate it.
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   fmt.Sprintf("Order %d was saved but its dispatch is delayed. It will be processed automatically, do not submit it again.", order.ID),
				"orderId": order.ID,
				"status":  order.Status,
			})
		default:
			mylogger.Error(
				ctx,
				h.logger,
				"Submit order failed",
				zap.Error(err),
			)

			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(order)
}

func (h *OrderHandler) validateSubmit(input *SubmitOrderRequest) map[string]string {
	if err := h.validate.Struct(input); err != nil {
		return utils.FormatValidationError(err, orderMessages)
	}

	if h.maxQuantity > 0 && *input.Quantity > h.maxQuantity {
		return map[string]string{
			"quantity": fmt.Sprintf("You cannot order more than %d items.", h.maxQuantity),
		}
	}

	return nil
}

func (h *OrderHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	orders, err := h.service.ListOrders(ctx, ownerFrom(c))
	if err != nil {
		mylogger.Error(
			ctx,
			h.logger,
			"List orders failed",
			zap.Error(err),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	return c.JSON(orders)
}

func (h *OrderHandler) Get(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}

	order, err := h.service.GetOrder(ctx, id, ownerFrom(c))
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
		}

		mylogger.Error(
			ctx,
			h.logger,
			"Get order failed",
			zap.Int64("order_id", id),
			zap.Error(err),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	return c.JSON(order)
}
