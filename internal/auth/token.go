// Package auth issues and verifies the short-lived access tokens handed out
// on login.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/accounts/internal/users"
)

// MinSecretLen is the shortest HS256 signing secret accepted.
const MinSecretLen = 32

var (
	ErrWeakSecret   = errors.New("auth: signing secret too short")
	ErrInvalidToken = errors.New("auth: invalid access token")
)

// Claims carry the account identity inside an access token.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
}

// Issuer signs and parses HS256 access tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewIssuer validates the secret and ttl and builds an Issuer.
func NewIssuer(secret []byte, ttl time.Duration, issuer string) (*Issuer, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrWeakSecret, MinSecretLen, len(secret))
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("auth: access token ttl must be positive, got %s", ttl)
	}
	return &Issuer{secret: secret, ttl: ttl, issuer: issuer, now: time.Now}, nil
}

// GenerateSecret returns a random signing secret for local development.
func GenerateSecret() ([]byte, error) {
	b := make([]byte, MinSecretLen)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("auth: generate secret: %w", err)
	}
	return b, nil
}

// SetClock overrides the time source; used by tests.
func (i *Issuer) SetClock(now func() time.Time) {
	if now != nil {
		i.now = now
	}
}

// Issue signs an access token for rec.
func (i *Issuer) Issue(rec users.Record) (string, time.Time, error) {
	if rec.ID == "" {
		return "", time.Time{}, errors.New("auth: record has no id")
	}
	now := i.now()
	exp := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   rec.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Name: rec.Name,
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies signature, algorithm, issuer and expiry and returns the claims.
func (i *Issuer) Parse(tokenString string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
