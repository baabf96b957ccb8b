package utils

import (
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// NewFiberApp builds an app with tracing and a per-IP rate limit.
// A zero maxRequests disables the limiter.
func NewFiberApp(appName string, maxRequests int, expiration time.Duration) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
	})

	app.Use(otelfiber.Middleware())

	if maxRequests > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        maxRequests,
			Expiration: expiration,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests. Try again later.",
				})
			},
		}))
	}

	return app
}
