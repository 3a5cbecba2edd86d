package middleware

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accounts/internal/auth"
	"github.com/congo-pay/accounts/internal/users"
)

type staticResolver map[string]users.Record

func (r staticResolver) Resolve(_ context.Context, id string) (users.Record, error) {
	rec, ok := r[id]
	if !ok {
		return users.Record{}, errors.New("gone")
	}
	return rec, nil
}

func authStatus(t *testing.T, app *fiber.App, header string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set(fiber.HeaderAuthorization, header)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestJWTAuth(t *testing.T) {
	tokens, err := auth.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Minute, "accounts")
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	alice := users.Record{ID: "u-1", Name: "alice"}
	resolver := staticResolver{"u-1": alice}

	app := fiber.New()
	app.Get("/me", JWTAuth(tokens, resolver), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(LocalUserName).(string))
	})

	tok, _, err := tokens.Issue(alice)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if status, body := authStatus(t, app, "Bearer "+tok); status != fiber.StatusOK || body != "alice" {
		t.Fatalf("expected 200 alice, got %d %s", status, body)
	}
	if status, _ := authStatus(t, app, ""); status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", status)
	}
	if status, _ := authStatus(t, app, "Bearer nope"); status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", status)
	}

	delete(resolver, "u-1")
	if status, _ := authStatus(t, app, "Bearer "+tok); status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 once the account is gone, got %d", status)
	}
}
