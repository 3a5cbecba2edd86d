package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accounts/internal/accounts"
	"github.com/congo-pay/accounts/internal/auth"
	"github.com/congo-pay/accounts/internal/middleware"
	"github.com/congo-pay/accounts/internal/users"
)

// UserRouteOptions carries the token issuer and middleware for account
// endpoints. Tokens and Protect are required.
type UserRouteOptions struct {
	Tokens      *auth.Issuer
	Protect     fiber.Handler
	Idempotency []fiber.Handler
	RateLimit   fiber.Handler
}

type sessionResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   string       `json:"expires_at"`
	User        userResponse `json:"user"`
}

type userResponse struct {
	ID          string         `json:"user_id"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	State       string         `json:"state"`
	LastLoginAt string         `json:"last_login_at,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

func toResponse(svc *accounts.Service, rec users.Record) userResponse {
	resp := userResponse{
		ID:    rec.ID,
		Name:  rec.Name,
		Email: rec.Email,
		State: string(svc.State(rec)),
		Extra: rec.Extra,
	}
	if rec.LastLoginAt != nil {
		resp.LastLoginAt = rec.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// RegisterUserRoutes wires signup, confirmation, login and account lookup.
func RegisterUserRoutes(r fiber.Router, svc *accounts.Service, opts UserRouteOptions) {
	create := append(append([]fiber.Handler{}, opts.Idempotency...), func(c *fiber.Ctx) error {
		var req struct {
			Name     string         `json:"name"`
			Email    string         `json:"email"`
			Password string         `json:"password"`
			Extra    map[string]any `json:"extra"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		rec, err := svc.Register(c.UserContext(), accounts.RegisterInput{
			Name: req.Name, Email: req.Email, Password: req.Password, Extra: req.Extra,
		})
		if err != nil {
			return httpError(err)
		}
		return c.Status(http.StatusCreated).JSON(toResponse(svc, rec))
	})
	r.Post("/users", create...)

	r.Post("/users/confirm", func(c *fiber.Ctx) error {
		var req struct {
			Token string `json:"token"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		rec, err := svc.Confirm(c.UserContext(), req.Token)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(toResponse(svc, rec))
	})

	r.Post("/users/confirm/renew", func(c *fiber.Ctx) error {
		var req struct {
			Email string `json:"email"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if _, err := svc.RenewSignupToken(c.UserContext(), req.Email); err != nil {
			return httpError(err)
		}
		return c.SendStatus(http.StatusAccepted)
	})

	login := func(c *fiber.Ctx) error {
		var req struct {
			Name     string `json:"name"`
			Password string `json:"password"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		rec, err := svc.Authenticate(c.UserContext(), req.Name, req.Password)
		if err != nil {
			return httpError(err)
		}
		tok, exp, err := opts.Tokens.Issue(rec)
		if err != nil {
			return err
		}
		return c.JSON(sessionResponse{
			AccessToken: tok,
			TokenType:   "Bearer",
			ExpiresAt:   exp.UTC().Format(time.RFC3339),
			User:        toResponse(svc, rec),
		})
	}
	if opts.RateLimit != nil {
		r.Post("/sessions", opts.RateLimit, login)
	} else {
		r.Post("/sessions", login)
	}

	// An account may only read or delete itself.
	self := func(c *fiber.Ctx) error {
		if name, _ := c.Locals(middleware.LocalUserName).(string); name == "" || name != c.Params("name") {
			return fiber.NewError(http.StatusForbidden, "forbidden")
		}
		return c.Next()
	}

	r.Get("/users/:name", opts.Protect, self, func(c *fiber.Ctx) error {
		rec, ok, err := svc.Lookup(c.UserContext(), c.Params("name"))
		if err != nil {
			return httpError(err)
		}
		if !ok {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		return c.JSON(toResponse(svc, rec))
	})

	r.Delete("/users/:name", opts.Protect, self, func(c *fiber.Ctx) error {
		if err := svc.Remove(c.UserContext(), c.Params("name")); err != nil {
			return httpError(err)
		}
		return c.SendStatus(http.StatusNoContent)
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, accounts.ErrInvalidInput), errors.Is(err, users.ErrInvalidRecord):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, users.ErrDuplicateUser), errors.Is(err, accounts.ErrAlreadyVerified):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, users.ErrUserNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, accounts.ErrInvalidToken), errors.Is(err, accounts.ErrTokenExpired):
		return fiber.NewError(http.StatusGone, err.Error())
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, accounts.ErrNotVerified), errors.Is(err, accounts.ErrLockedOut):
		return fiber.NewError(http.StatusForbidden, err.Error())
	default:
		return err
	}
}
