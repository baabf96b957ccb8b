package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sakashimaa/bookshop/pkg/utils"
)

func RegisterRoutes(app *fiber.App, h *BookHandler, gatherer prometheus.Gatherer) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "UP"})
	})
	app.Get("/metrics", utils.MetricsHandler(gatherer))

	books := app.Group("/books")
	books.Get("", h.List)
	books.Get("/:isbn", h.Get)
	books.Post("", h.Create)
	books.Put("/:isbn", h.Update)
	books.Delete("/:isbn", h.Delete)
}
