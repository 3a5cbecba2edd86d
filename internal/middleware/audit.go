package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit writes one structured line per request. Client errors are logged at
// warn, everything else that failed at error.
func Audit(logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("route", c.Route().Path),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if reqID := RequestIDFrom(c); reqID != "" {
			attrs = append(attrs, slog.String("request_id", reqID))
		}

		ctx := c.UserContext()
		switch {
		case err == nil:
			logger.InfoContext(ctx, "request completed", attrs...)
		case status < fiber.StatusInternalServerError:
			logger.WarnContext(ctx, "request rejected", append(attrs, slog.String("reason", err.Error()))...)
		default:
			logger.ErrorContext(ctx, "request failed", append(attrs, slog.Any("error", err))...)
		}
		return err
	}
}
