// Package lifecycle holds side-effect free decisions over user records.
// Callers apply the resulting mutations through users.Store.Update.
package lifecycle

import (
	"time"

	"github.com/congo-pay/accounts/internal/users"
)

// DefaultMaxAttempts is the lockout threshold used when none is configured.
const DefaultMaxAttempts = 5

// State is the derived lifecycle position of a record.
type State string

const (
	// StatePending: signup token issued and still valid.
	StatePending State = "pending"
	// StateExpired: signup token issued but past its expiry.
	StateExpired State = "expired"
	// StateVerified: signup token consumed, logins allowed.
	StateVerified State = "verified"
	// StateLockedOut: too many failed logins.
	StateLockedOut State = "locked_out"
)

// IsSignupTokenValid reports whether rec still carries an unexpired signup
// token at now. The expiry instant itself is inclusive.
func IsSignupTokenValid(rec users.Record, now time.Time) bool {
	if rec.SignupToken == "" {
		return false
	}
	return !now.After(rec.SignupTokenExpires)
}

// IsLockedOut reports whether failed logins reached maxAttempts.
func IsLockedOut(rec users.Record, maxAttempts int) bool {
	return rec.FailedLoginAttempts >= maxAttempts
}

// StateOf derives the lifecycle state. Lockout takes precedence over the
// signup phase.
func StateOf(rec users.Record, now time.Time, maxAttempts int) State {
	switch {
	case IsLockedOut(rec, maxAttempts):
		return StateLockedOut
	case rec.Verified():
		return StateVerified
	case IsSignupTokenValid(rec, now):
		return StatePending
	default:
		return StateExpired
	}
}

// CanConfirm reports whether presenting token may verify rec at now.
func CanConfirm(rec users.Record, token string, now time.Time) bool {
	return token != "" && rec.SignupToken == token && IsSignupTokenValid(rec, now)
}

// CanAuthenticate reports whether a login attempt may proceed.
func CanAuthenticate(rec users.Record, now time.Time, maxAttempts int) bool {
	return StateOf(rec, now, maxAttempts) == StateVerified
}
