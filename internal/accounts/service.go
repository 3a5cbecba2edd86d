// Package accounts is a reference signup, confirmation and login flow built
// on users.Store and the lifecycle policy.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/congo-pay/accounts/internal/credential"
	"github.com/congo-pay/accounts/internal/lifecycle"
	"github.com/congo-pay/accounts/internal/notification"
	"github.com/congo-pay/accounts/internal/token"
	"github.com/congo-pay/accounts/internal/users"
)

const minPasswordLen = 6

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidToken       = errors.New("invalid signup token")
	ErrTokenExpired       = errors.New("signup token expired")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("account not verified")
	ErrLockedOut          = errors.New("account locked")
)

// RegisterInput is the signup request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Extra    map[string]any
}

// Options configure the flow.
type Options struct {
	MaxAttempts int
	TokenTTL    time.Duration
}

// Service manages the account lifecycle on top of the user store.
type Service struct {
	store    *users.Store
	notifier notification.Notifier
	issuer   token.Issuer
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a new account service.
func NewService(store *users.Store, notifier notification.Notifier, opts Options, logger *slog.Logger) *Service {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = lifecycle.DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logger)
	}
	return &Service{
		store:    store,
		notifier: notifier,
		issuer:   token.NewIssuer(),
		opts:     opts,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock overrides the time source; used by tests.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register validates input, creates the record and sends the signup token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (users.Record, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" {
		return users.Record{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return users.Record{}, fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLen {
		return users.Record{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	rec, err := s.store.Create(ctx, in.Name, in.Email, in.Password, in.Extra)
	if err != nil {
		return users.Record{}, err
	}

	s.sendToken(ctx, rec)
	s.logger.InfoContext(ctx, "account registered", slog.String("user_id", rec.ID), slog.String("name", rec.Name))
	return rec, nil
}

// Confirm consumes a signup token.
func (s *Service) Confirm(ctx context.Context, signupToken string) (users.Record, error) {
	rec, ok, err := s.store.Find(ctx, users.FieldSignupToken, signupToken)
	if err != nil {
		return users.Record{}, err
	}
	if !ok {
		return users.Record{}, ErrInvalidToken
	}
	if !lifecycle.CanConfirm(rec, signupToken, s.now()) {
		return users.Record{}, ErrTokenExpired
	}

	rec.SignupToken = ""
	updated, err := s.store.Update(ctx, rec)
	if err != nil {
		return users.Record{}, err
	}
	s.logger.InfoContext(ctx, "account confirmed", slog.String("user_id", updated.ID))
	return updated, nil
}

// RenewSignupToken issues a fresh token for an unverified account.
func (s *Service) RenewSignupToken(ctx context.Context, email string) (users.Record, error) {
	rec, ok, err := s.store.Find(ctx, users.FieldEmail, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return users.Record{}, err
	}
	if !ok {
		return users.Record{}, &users.UserNotFoundError{Key: string(users.FieldEmail), Value: email}
	}
	if rec.Verified() {
		return users.Record{}, ErrAlreadyVerified
	}
	if s.opts.TokenTTL <= 0 {
		return users.Record{}, fmt.Errorf("%w: token ttl not configured", ErrInvalidInput)
	}

	tok, err := s.issuer.Issue()
	if err != nil {
		return users.Record{}, err
	}
	now := s.now().UTC()
	rec.SignupToken = tok
	rec.SignupTimestamp = now
	rec.SignupTokenExpires = token.ExpiryFrom(now, s.opts.TokenTTL)

	updated, err := s.store.Update(ctx, rec)
	if err != nil {
		return users.Record{}, err
	}
	s.sendToken(ctx, updated)
	return updated, nil
}

// Authenticate verifies the password, counting failures toward lockout.
func (s *Service) Authenticate(ctx context.Context, name, password string) (users.Record, error) {
	rec, ok, err := s.store.Find(ctx, users.FieldName, strings.TrimSpace(name))
	if err != nil {
		return users.Record{}, err
	}
	if !ok {
		return users.Record{}, ErrInvalidCredentials
	}

	now := s.now()
	switch lifecycle.StateOf(rec, now, s.opts.MaxAttempts) {
	case lifecycle.StateLockedOut:
		return users.Record{}, ErrLockedOut
	case lifecycle.StatePending, lifecycle.StateExpired:
		return users.Record{}, ErrNotVerified
	}

	cred, err := rec.Credential()
	if err != nil {
		return users.Record{}, fmt.Errorf("decode credential for %s: %w", rec.ID, err)
	}

	if !s.store.Hasher().Verify(password, cred) {
		rec.FailedLoginAttempts++
		updated, err := s.store.Update(ctx, rec)
		if err != nil {
			return users.Record{}, err
		}
		if lifecycle.IsLockedOut(updated, s.opts.MaxAttempts) {
			s.logger.WarnContext(ctx, "account locked", slog.String("user_id", updated.ID), slog.Int("attempts", updated.FailedLoginAttempts))
			if err := s.notifier.Send(ctx, notification.Message{Kind: notification.KindLockout, Destination: updated.Email}); err != nil {
				s.logger.WarnContext(ctx, "lockout notification failed", slog.Any("error", err))
			}
			return users.Record{}, ErrLockedOut
		}
		return users.Record{}, ErrInvalidCredentials
	}

	loggedIn := now.UTC()
	rec.FailedLoginAttempts = 0
	rec.LastLoginAt = &loggedIn
	s.upgradeCredential(ctx, &rec, password, cred)
	return s.store.Update(ctx, rec)
}

type rehasher interface {
	NeedsRehash(c credential.Credential) bool
}

// upgradeCredential re-derives a credential produced with stale hasher
// parameters. Failure keeps the old, still valid credential.
func (s *Service) upgradeCredential(ctx context.Context, rec *users.Record, password string, cred credential.Credential) {
	h := s.store.Hasher()
	r, ok := h.(rehasher)
	if !ok || !r.NeedsRehash(cred) {
		return
	}
	fresh, err := h.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "credential rehash failed", slog.String("user_id", rec.ID), slog.Any("error", err))
		return
	}
	rec.CredentialSalt, rec.CredentialHash = fresh.Encode()
	s.logger.InfoContext(ctx, "credential rehashed", slog.String("user_id", rec.ID))
}

// Resolve loads the account behind an access token subject. Removed and
// locked-out accounts no longer resolve.
func (s *Service) Resolve(ctx context.Context, userID string) (users.Record, error) {
	rec, ok, err := s.store.Find(ctx, users.FieldID, userID)
	if err != nil {
		return users.Record{}, err
	}
	if !ok {
		return users.Record{}, &users.UserNotFoundError{Key: string(users.FieldID), Value: userID}
	}
	if lifecycle.IsLockedOut(rec, s.opts.MaxAttempts) {
		return users.Record{}, ErrLockedOut
	}
	return rec, nil
}

// Lookup fetches an account by name.
func (s *Service) Lookup(ctx context.Context, name string) (users.Record, bool, error) {
	return s.store.Find(ctx, users.FieldName, name)
}

// Remove deletes an account by name.
func (s *Service) Remove(ctx context.Context, name string) error {
	if _, err := s.store.Remove(ctx, name); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "account removed", slog.String("name", name))
	return nil
}

// State reports the lifecycle state of rec under the service's policy.
func (s *Service) State(rec users.Record) lifecycle.State {
	return lifecycle.StateOf(rec, s.now(), s.opts.MaxAttempts)
}

func (s *Service) sendToken(ctx context.Context, rec users.Record) {
	msg := notification.Message{Kind: notification.KindSignupToken, Destination: rec.Email, Body: rec.SignupToken}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "signup token notification failed", slog.String("user_id", rec.ID), slog.Any("error", err))
	}
}
