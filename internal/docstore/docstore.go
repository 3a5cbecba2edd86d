// Package docstore defines the document-store contract the user store runs
// on, plus helpers shared by the backends.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// IDField is the document key holding the store-assigned identifier.
const IDField = "_id"

var (
	// ErrNoDocument is returned by FindOne when nothing matches, and by Save
	// with MustExist when the target identifier is absent.
	ErrNoDocument = errors.New("docstore: no document")

	// ErrDuplicateKey signals a unique index violation.
	ErrDuplicateKey = errors.New("docstore: duplicate key")

	// ErrInvalidField is returned for collection or field names a backend cannot address.
	ErrInvalidField = errors.New("docstore: invalid field")
)

// DuplicateKeyError carries the index that rejected a write.
type DuplicateKeyError struct {
	Collection string
	Field      string
	Value      string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("docstore: duplicate key %s.%s=%q", e.Collection, e.Field, e.Value)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// Document is a schemaless record. Values follow encoding/json decoding rules.
type Document map[string]any

// ID returns the document identifier or "" when unassigned.
func (d Document) ID() string {
	v, _ := FieldString(d, IDField)
	return v
}

// Filter matches documents whose fields equal the given string values.
type Filter map[string]string

// By builds a single field equality filter.
func By(field, value string) Filter {
	return Filter{field: value}
}

// Index describes a secondary index on one top-level field.
type Index struct {
	Field  string
	Unique bool
}

// Ack acknowledges a save.
type Ack struct {
	ID       string
	Inserted bool
}

// SaveOptions tune Save.
type SaveOptions struct {
	MustExist bool
}

// SaveOption mutates SaveOptions.
type SaveOption func(*SaveOptions)

// MustExist turns Save into a replace that fails with ErrNoDocument when the
// identifier is unknown, instead of inserting.
func MustExist() SaveOption {
	return func(o *SaveOptions) { o.MustExist = true }
}

// ApplySaveOptions folds opts into a SaveOptions value.
func ApplySaveOptions(opts ...SaveOption) SaveOptions {
	var o SaveOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Store is the document store collaborator. The handle is shared by all
// callers for the life of the process.
type Store interface {
	CreateIndex(ctx context.Context, collection string, index Index) error
	FindOne(ctx context.Context, collection string, filter Filter) (Document, error)
	Save(ctx context.Context, collection string, doc Document, opts ...SaveOption) (Ack, error)
	Remove(ctx context.Context, collection string, filter Filter) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Marshal converts v into a Document through its JSON representation.
func Marshal(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return Decode(raw)
}

// Unmarshal populates v from doc through its JSON representation.
func Unmarshal(doc Document, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	return nil
}

// Decode parses a JSON object into a Document.
func Decode(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode document: not an object")
	}
	return doc, nil
}

// Clone returns a deep copy of doc.
func Clone(doc Document) (Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return Decode(raw)
}

// FieldString returns the string form of a scalar field used for index and
// filter comparisons. Missing, null and composite values report false.
func FieldString(doc Document, field string) (string, bool) {
	v, ok := doc[field]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

// Matches reports whether doc satisfies every equality in filter.
func Matches(doc Document, filter Filter) bool {
	for field, want := range filter {
		got, ok := FieldString(doc, field)
		if !ok || got != want {
			return false
		}
	}
	return true
}
