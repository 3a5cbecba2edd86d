package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accounts/internal/auth"
	"github.com/congo-pay/accounts/internal/users"
)

const (
	LocalUserID   = "user_id"
	LocalUserName = "user_name"
)

// SubjectResolver loads the live account for a token subject.
type SubjectResolver interface {
	Resolve(ctx context.Context, userID string) (users.Record, error)
}

// JWTAuth validates the bearer access token and checks that its account
// still exists and is not locked out.
func JWTAuth(tokens *auth.Issuer, resolver SubjectResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := tokens.Parse(strings.TrimSpace(authz[7:]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		rec, err := resolver.Resolve(c.UserContext(), claims.Subject)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "token invalidated")
		}

		c.Locals(LocalUserID, rec.ID)
		c.Locals(LocalUserName, rec.Name)
		return c.Next()
	}
}
