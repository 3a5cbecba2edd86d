// Package users persists user records on a document store.
package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/congo-pay/accounts/internal/credential"
	"github.com/congo-pay/accounts/internal/docstore"
	"github.com/congo-pay/accounts/internal/token"
)

const defaultCollection = "users"

// Options mirror the deployment configuration of the store.
type Options struct {
	Collection string
	UniqueName bool
	UseExtra   bool
	TokenTTL   time.Duration
}

// TokenIssuer produces signup tokens.
type TokenIssuer interface {
	Issue() (string, error)
}

// Store owns the user record lifecycle on top of a docstore.Store. It holds
// no locks; uniqueness is enforced by the indexes built in EnsureIndexes.
type Store struct {
	db     docstore.Store
	opts   Options
	hasher credential.Hasher
	issuer TokenIssuer
	now    func() time.Time
	logger *slog.Logger
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithHasher overrides the default argon2id hasher.
func WithHasher(h credential.Hasher) StoreOption {
	return func(s *Store) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithIssuer overrides the signup token issuer.
func WithIssuer(i TokenIssuer) StoreOption {
	return func(s *Store) {
		if i != nil {
			s.issuer = i
		}
	}
}

// WithClock injects the time source used for signup timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger; output is discarded by default.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore builds a user store on db.
func NewStore(db docstore.Store, opts Options, storeOpts ...StoreOption) (*Store, error) {
	if db == nil {
		return nil, errors.New("users: document store is required")
	}
	if opts.TokenTTL <= 0 {
		return nil, fmt.Errorf("users: signup token ttl must be positive, got %s", opts.TokenTTL)
	}
	if opts.Collection == "" {
		opts.Collection = defaultCollection
	}

	s := &Store{
		db:     db,
		opts:   opts,
		hasher: credential.NewArgon2Hasher(credential.DefaultWorkFactor),
		issuer: token.NewIssuer(),
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range storeOpts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Hasher exposes the configured hasher so callers can verify secrets
// against records produced by this store.
func (s *Store) Hasher() credential.Hasher {
	return s.hasher
}

// EnsureIndexes creates the indexes the store relies on. Call once at
// startup, before any Create.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []docstore.Index{
		{Field: string(FieldEmail), Unique: true},
		{Field: string(FieldName), Unique: s.opts.UniqueName},
		{Field: string(FieldSignupToken)},
	}
	for _, idx := range indexes {
		if err := s.db.CreateIndex(ctx, s.opts.Collection, idx); err != nil {
			return fmt.Errorf("ensure index %s.%s: %w", s.opts.Collection, idx.Field, err)
		}
		s.logger.Debug("index ensured", "collection", s.opts.Collection, "field", idx.Field, "unique", idx.Unique)
	}
	return nil
}

// Create builds a new record with a fresh signup token and credential and
// persists it. Input validation is the caller's job.
func (s *Store) Create(ctx context.Context, name, email, secret string, extra map[string]any) (Record, error) {
	now := s.now().UTC()

	tok, err := s.issuer.Issue()
	if err != nil {
		return Record{}, fmt.Errorf("create user %q: %w", name, err)
	}

	cred, err := s.hasher.Hash(secret)
	if err != nil {
		return Record{}, fmt.Errorf("create user %q: %w", name, err)
	}
	salt, hash := cred.Encode()

	rec := Record{
		Name:                name,
		Email:               email,
		CredentialSalt:      salt,
		CredentialHash:      hash,
		SignupToken:         tok,
		SignupTimestamp:     now,
		SignupTokenExpires:  token.ExpiryFrom(now, s.opts.TokenTTL),
		FailedLoginAttempts: 0,
	}
	if s.opts.UseExtra {
		rec.Extra = extra
	}

	doc, err := docstore.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	ack, err := s.db.Save(ctx, s.opts.Collection, doc)
	if err != nil {
		return Record{}, mapWriteError(err)
	}
	rec.ID = ack.ID

	s.logger.Debug("user created", "id", rec.ID, "name", rec.Name)
	return rec, nil
}

// Find looks a record up by one field. The boolean is false when no record
// matches; that is not an error.
func (s *Store) Find(ctx context.Context, field Field, value string) (Record, bool, error) {
	if !field.valid() {
		return Record{}, false, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if value == "" {
		return Record{}, false, nil
	}

	doc, err := s.db.FindOne(ctx, s.opts.Collection, docstore.By(string(field), value))
	if err != nil {
		if errors.Is(err, docstore.ErrNoDocument) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("find user by %s: %w", field, err)
	}

	var rec Record
	if err := docstore.Unmarshal(doc, &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Update replaces the stored record identified by rec.ID with rec in full
// and returns the canonical stored value read back afterwards. The write
// and the read are not atomic as a pair: a concurrent writer may land in
// between, so the result is a recent snapshot.
func (s *Store) Update(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		return Record{}, &UserNotFoundError{Key: string(FieldID), Value: rec.ID}
	}
	if rec.FailedLoginAttempts < 0 {
		return Record{}, fmt.Errorf("%w: failed login attempts %d", ErrInvalidRecord, rec.FailedLoginAttempts)
	}
	if !s.opts.UseExtra {
		rec.Extra = nil
	}

	doc, err := docstore.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	if _, err := s.db.Save(ctx, s.opts.Collection, doc, docstore.MustExist()); err != nil {
		if errors.Is(err, docstore.ErrNoDocument) {
			return Record{}, &UserNotFoundError{Key: string(FieldID), Value: rec.ID}
		}
		return Record{}, mapWriteError(err)
	}

	canonical, ok, err := s.Find(ctx, FieldID, rec.ID)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, &UserNotFoundError{Key: string(FieldID), Value: rec.ID}
	}
	return canonical, nil
}

// Remove physically deletes the record named name.
func (s *Store) Remove(ctx context.Context, name string) (bool, error) {
	n, err := s.db.Remove(ctx, s.opts.Collection, docstore.By(string(FieldName), name))
	if err != nil {
		return false, fmt.Errorf("remove user %q: %w", name, err)
	}
	if n == 0 {
		return false, &UserNotFoundError{Key: string(FieldName), Value: name}
	}
	s.logger.Debug("user removed", "name", name, "count", n)
	return true, nil
}

func mapWriteError(err error) error {
	var dup *docstore.DuplicateKeyError
	if errors.As(err, &dup) {
		return &DuplicateUserError{Field: dup.Field, Value: dup.Value}
	}
	return err
}
