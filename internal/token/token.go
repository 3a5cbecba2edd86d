// Package token issues signup tokens and computes their expiry.
package token

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrTokenGeneration wraps failures of the random source.
var ErrTokenGeneration = errors.New("token: generation failed")

// ErrInvalidTTL is returned by ParseTTL for empty, malformed or non-positive values.
var ErrInvalidTTL = errors.New("token: invalid ttl")

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Issuer produces random version 4 UUID tokens.
type Issuer struct{}

// NewIssuer returns a token issuer.
func NewIssuer() Issuer {
	return Issuer{}
}

// Issue returns a new unguessable token.
func (Issuer) Issue() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return id.String(), nil
}

// ExpiryFrom returns now + ttl.
func ExpiryFrom(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl)
}

// ParseTTL parses a human readable duration. On top of time.ParseDuration it
// understands "d" (24h) and "w" (7d) units, optionally combined with the
// standard ones, e.g. "7d", "1w2d", "1d12h".
func ParseTTL(value string) (time.Duration, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidTTL)
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidTTL, value)
	}
	s = strings.TrimPrefix(s, "+")
	// a sign is only allowed up front; "1d-1h" must not shorten the total
	if strings.ContainsAny(s, "+-") {
		return 0, fmt.Errorf("%w: %q has a sign inside the value", ErrInvalidTTL, value)
	}

	var total time.Duration
	rest := s
	for {
		i := strings.IndexAny(rest, "dw")
		if i < 0 {
			break
		}
		j := i
		for j > 0 && isNumeric(rest[j-1]) {
			j--
		}
		// anything before the number must be a standard unit chunk
		if j == i {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTTL, value)
		}
		n, err := strconv.ParseFloat(rest[j:i], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTTL, value)
		}
		unit := day
		if rest[i] == 'w' {
			unit = week
		}
		part := n * float64(unit)
		if part >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidTTL, value)
		}
		if total, err = addTTL(total, time.Duration(part)); err != nil {
			return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidTTL, value)
		}
		rest = rest[:j] + rest[i+1:]
	}

	if rest != "" {
		d, err := time.ParseDuration(rest)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTTL, value)
		}
		if total, err = addTTL(total, d); err != nil {
			return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidTTL, value)
		}
	}

	if total <= 0 {
		return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidTTL, value)
	}
	return total, nil
}

func addTTL(a, b time.Duration) (time.Duration, error) {
	if b > math.MaxInt64-a {
		return 0, errors.New("overflow")
	}
	return a + b, nil
}

func isNumeric(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.'
}
