package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/accounts/internal/accounts"
	"github.com/congo-pay/accounts/internal/auth"
	"github.com/congo-pay/accounts/internal/config"
	"github.com/congo-pay/accounts/internal/docstore"
	"github.com/congo-pay/accounts/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	Store    docstore.Store
	Cache    redis.UniversalClient // optional
	Accounts *accounts.Service
	Tokens   *auth.Issuer
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Store == nil {
		return errors.New("document store is required")
	}
	if d.Accounts == nil {
		return errors.New("accounts service is required")
	}
	if d.Tokens == nil {
		return errors.New("access token issuer is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var idem []fiber.Handler
	if d.Cache != nil {
		idem = append(idem, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterUserRoutes(api, d.Accounts, UserRouteOptions{
		Tokens:      d.Tokens,
		Protect:     middleware.JWTAuth(d.Tokens, d.Accounts),
		Idempotency: idem,
		RateLimit:   middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRatePerMin),
	})

	return nil
}
