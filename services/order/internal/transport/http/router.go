package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sakashimaa/bookshop/pkg/utils"
)

func RegisterRoutes(app *fiber.App, h *OrderHandler, jwtSecret string, gatherer prometheus.Gatherer) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "UP"})
	})
	app.Get("/metrics", utils.MetricsHandler(gatherer))

	orders := app.Group("/orders", NewOwnerMiddleware(jwtSecret))
	orders.Post("", h.Submit)
	orders.Get("", h.List)
	orders.Get("/:id", h.Get)
}
