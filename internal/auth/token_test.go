package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/accounts/internal/users"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestIssuer(t *testing.T, now *time.Time) *Issuer {
	t.Helper()
	iss, err := NewIssuer(testSecret, 15*time.Minute, "accounts")
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	iss.SetClock(func() time.Time { return *now })
	return iss
}

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := newTestIssuer(t, &now)

	tok, exp, err := iss.Issue(users.Record{ID: "u-1", Name: "alice"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", exp)
	}

	claims, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "u-1" || claims.Name != "alice" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := newTestIssuer(t, &now)
	tok, _, err := iss.Issue(users.Record{ID: "u-1", Name: "alice"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(16 * time.Minute)
	if _, err := iss.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestParseRejectsForeignTokens(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(t, &now)

	other, err := NewIssuer([]byte(strings.Repeat("x", MinSecretLen)), time.Minute, "accounts")
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	forged, _, _ := other.Issue(users.Record{ID: "u-1", Name: "alice"})

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "accounts", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "accounts"},
	})
	eternal, err := noExp.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for name, tok := range map[string]string{"other secret": forged, "alg none": unsigned, "no expiry": eternal, "garbage": "a.b.c"} {
		if _, err := iss.Parse(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestNewIssuerValidation(t *testing.T) {
	if _, err := NewIssuer([]byte("short"), time.Minute, "x"); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected weak secret error, got %v", err)
	}
	if _, err := NewIssuer(testSecret, 0, "x"); err == nil {
		t.Fatalf("expected ttl error")
	}
	secret, err := GenerateSecret()
	if err != nil || len(secret) != MinSecretLen {
		t.Fatalf("generate secret: %v (len %d)", err, len(secret))
	}
}
