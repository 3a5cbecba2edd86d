package users

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateUser indicates the name or email is already taken.
	ErrDuplicateUser = errors.New("users: duplicate user")

	// ErrUserNotFound indicates an update or remove target does not exist.
	// Plain lookups report absence through Find's boolean instead.
	ErrUserNotFound = errors.New("users: user not found")

	// ErrUnknownField is returned by Find for unsupported lookup keys.
	ErrUnknownField = errors.New("users: unknown lookup field")

	// ErrInvalidRecord is returned by Update for records violating invariants.
	ErrInvalidRecord = errors.New("users: invalid record")
)

// DuplicateUserError names the unique field that rejected a write.
type DuplicateUserError struct {
	Field string
	Value string
}

func (e *DuplicateUserError) Error() string {
	if e.Field == "" {
		return ErrDuplicateUser.Error()
	}
	return fmt.Sprintf("users: duplicate user %s=%q", e.Field, e.Value)
}

func (e *DuplicateUserError) Unwrap() error { return ErrDuplicateUser }

// UserNotFoundError carries the key used to address the missing user.
type UserNotFoundError struct {
	Key   string
	Value string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("users: user not found (%s=%q)", e.Key, e.Value)
}

func (e *UserNotFoundError) Unwrap() error { return ErrUserNotFound }
