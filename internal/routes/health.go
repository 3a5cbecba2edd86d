package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthTimeout = 2 * time.Second

// RegisterHealthRoutes adds a readiness endpoint that pings the document
// store and, when configured, the Redis cache.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()

		checks := fiber.Map{"store": "ok"}
		healthy := true
		if err := d.Store.Ping(ctx); err != nil {
			checks["store"] = err.Error()
			healthy = false
		}
		if d.Cache != nil {
			checks["cache"] = "ok"
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				checks["cache"] = err.Error()
				healthy = false
			}
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"driver":    d.Cfg.StoreDriver,
			"status":    checks,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
