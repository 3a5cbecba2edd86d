package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIssueReturnsUniqueV4Tokens(t *testing.T) {
	iss := NewIssuer()
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		tok, err := iss.Issue()
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		id, err := uuid.Parse(tok)
		if err != nil {
			t.Fatalf("token %q is not a uuid: %v", tok, err)
		}
		if id.Version() != 4 {
			t.Fatalf("expected version 4, got %d", id.Version())
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %s", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestParseTTL(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"1h", time.Hour},
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"1d12h", 36 * time.Hour},
		{"12h1d", 36 * time.Hour},
		{"1.5d", 36 * time.Hour},
		{" 30m ", 30 * time.Minute},
	}
	for _, tc := range cases {
		got, err := ParseTTL(tc.in)
		if err != nil {
			t.Fatalf("ParseTTL(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseTTL(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseTTLRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "d", "abc", "0d", "0s", "-1h", "1xd"} {
		if _, err := ParseTTL(in); !errors.Is(err, ErrInvalidTTL) {
			t.Fatalf("ParseTTL(%q): expected ErrInvalidTTL, got %v", in, err)
		}
	}
}

func TestExpiryFrom(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, in := range []string{"1h", "24h", "7d"} {
		ttl, err := ParseTTL(in)
		if err != nil {
			t.Fatalf("ParseTTL(%q): %v", in, err)
		}
		exp := ExpiryFrom(now, ttl)
		if exp.Sub(now) != ttl {
			t.Fatalf("expiry delta %s, want %s", exp.Sub(now), ttl)
		}
	}
}

func TestParseTTLRejectsInnerSign(t *testing.T) {
	for _, in := range []string{"1d-1h", "1d+1h", "2w-3d", "1h-30m"} {
		if got, err := ParseTTL(in); !errors.Is(err, ErrInvalidTTL) {
			t.Fatalf("ParseTTL(%q) = %s, %v; expected ErrInvalidTTL", in, got, err)
		}
	}
	got, err := ParseTTL("+1d")
	if err != nil || got != 24*time.Hour {
		t.Fatalf("ParseTTL(+1d) = %s, %v", got, err)
	}
}

func TestParseTTLOutOfRange(t *testing.T) {
	for _, in := range []string{"100000w", "200000d", "15250w2d", "106751d24h"} {
		_, err := ParseTTL(in)
		if !errors.Is(err, ErrInvalidTTL) {
			t.Fatalf("ParseTTL(%q): expected ErrInvalidTTL, got %v", in, err)
		}
		if !strings.Contains(err.Error(), "out of range") {
			t.Fatalf("ParseTTL(%q): expected range error, got %v", in, err)
		}
	}
}
