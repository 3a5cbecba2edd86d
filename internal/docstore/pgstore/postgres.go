// Package pgstore implements docstore.Store on a PostgreSQL JSONB table.
// Indexes are partial expression indexes over body->>'field' scoped to one
// collection, so uniqueness is enforced by Postgres itself.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/congo-pay/accounts/internal/docstore"
)

const uniqueViolation = "23505"

//go:embed migrations/*.sql
var migrations embed.FS

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store persists documents in the documents table.
type Store struct {
	db      *sql.DB
	release func()
}

var _ docstore.Store = (*Store)(nil)

// New wraps a database/sql handle using the pgx driver. Close closes db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open builds a store on top of a pgx pool. Close releases both the sql
// handle and the pool.
func Open(pool *pgxpool.Pool) *Store {
	s := New(stdlib.OpenDBFromPool(pool))
	s.release = pool.Close
	return s
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}

	logger.Info("applying migrations")
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}

// CreateIndex creates a partial expression index for one collection field.
func (s *Store) CreateIndex(ctx context.Context, coll string, index docstore.Index) error {
	stmt, err := createIndexSQL(coll, index)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return mapError(coll, nil, fmt.Errorf("create index: %w", err))
	}
	return nil
}

// FindOne returns the first document matching filter.
func (s *Store) FindOne(ctx context.Context, coll string, filter docstore.Filter) (docstore.Document, error) {
	where, args, err := whereClause(coll, filter)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE `+where+` LIMIT 1`, args...).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, docstore.ErrNoDocument
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return docstore.Decode(body)
}

// Save upserts a document by identifier, or replaces it when MustExist is set.
func (s *Store) Save(ctx context.Context, coll string, doc docstore.Document, opts ...docstore.SaveOption) (docstore.Ack, error) {
	o := docstore.ApplySaveOptions(opts...)
	stored, err := docstore.Clone(doc)
	if err != nil {
		return docstore.Ack{}, err
	}
	id := stored.ID()
	if id == "" {
		if o.MustExist {
			return docstore.Ack{}, docstore.ErrNoDocument
		}
		id = uuid.NewString()
	}
	stored[docstore.IDField] = id
	payload, err := json.Marshal(stored)
	if err != nil {
		return docstore.Ack{}, fmt.Errorf("marshal document: %w", err)
	}

	if o.MustExist {
		res, err := s.db.ExecContext(ctx, `UPDATE documents SET body = $3, updated_at = NOW()
		WHERE collection = $1 AND id = $2`, coll, id, payload)
		if err != nil {
			return docstore.Ack{}, mapError(coll, stored, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return docstore.Ack{}, fmt.Errorf("update document: %w", err)
		}
		if n == 0 {
			return docstore.Ack{}, docstore.ErrNoDocument
		}
		return docstore.Ack{ID: id}, nil
	}

	var inserted bool
	err = s.db.QueryRowContext(ctx, `INSERT INTO documents (collection, id, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
		RETURNING (xmax = 0)`, coll, id, payload).Scan(&inserted)
	if err != nil {
		return docstore.Ack{}, mapError(coll, stored, err)
	}
	return docstore.Ack{ID: id, Inserted: inserted}, nil
}

// Remove deletes the documents matching filter.
func (s *Store) Remove(ctx context.Context, coll string, filter docstore.Filter) (int64, error) {
	where, args, err := whereClause(coll, filter)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("remove documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove documents: %w", err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the sql handle and, for Open, the pool.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.release != nil {
		s.release()
	}
	return err
}

func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", docstore.ErrInvalidField, name)
	}
	return nil
}

func indexName(coll, field string, unique bool) string {
	kind := "idx"
	if unique {
		kind = "uniq"
	}
	return "documents_" + coll + "__" + field + "__" + kind
}

// fieldFromIndex recovers the field from a name produced by indexName.
func fieldFromIndex(coll, constraint string) string {
	prefix := "documents_" + coll + "__"
	if !strings.HasPrefix(constraint, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(constraint, prefix)
	i := strings.LastIndex(rest, "__")
	if i <= 0 {
		return ""
	}
	return rest[:i]
}

func createIndexSQL(coll string, index docstore.Index) (string, error) {
	if err := validIdent(coll); err != nil {
		return "", err
	}
	if index.Field == docstore.IDField {
		return "", fmt.Errorf("%w: %q is the primary key", docstore.ErrInvalidField, index.Field)
	}
	if err := validIdent(index.Field); err != nil {
		return "", err
	}
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	name := pgx.Identifier{indexName(coll, index.Field, index.Unique)}.Sanitize()
	return fmt.Sprintf(`CREATE %sINDEX IF NOT EXISTS %s ON documents ((body->>'%s')) WHERE collection = '%s'`,
		unique, name, index.Field, coll), nil
}

// whereClause builds the predicate for filter. The collection and field
// names are validated and inlined so the planner can match the partial
// expression indexes even under a generic plan; values stay parameters.
func whereClause(coll string, filter docstore.Filter) (string, []any, error) {
	if err := validIdent(coll); err != nil {
		return "", nil, err
	}
	conds := []string{fmt.Sprintf("collection = '%s'", coll)}
	args := make([]any, 0, len(filter))

	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		args = append(args, filter[field])
		if field == docstore.IDField {
			conds = append(conds, fmt.Sprintf("id = $%d", len(args)))
			continue
		}
		if err := validIdent(field); err != nil {
			return "", nil, err
		}
		conds = append(conds, fmt.Sprintf("body->>'%s' = $%d", field, len(args)))
	}
	return strings.Join(conds, " AND "), args, nil
}

func mapError(coll string, doc docstore.Document, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		field := fieldFromIndex(coll, pgErr.ConstraintName)
		var value string
		if doc != nil && field != "" {
			value, _ = docstore.FieldString(doc, field)
		}
		return &docstore.DuplicateKeyError{Collection: coll, Field: field, Value: value}
	}
	return err
}
