// Package memory is an in-process docstore.Store used for tests and local runs.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/congo-pay/accounts/internal/docstore"
)

var errClosed = errors.New("memory store closed")

type collection struct {
	docs    map[string]docstore.Document
	indexes map[string]docstore.Index
	// field -> value -> ids
	entries map[string]map[string]map[string]struct{}
}

func newCollection() *collection {
	return &collection{
		docs:    make(map[string]docstore.Document),
		indexes: make(map[string]docstore.Index),
		entries: make(map[string]map[string]map[string]struct{}),
	}
}

// Store keeps documents in maps guarded by a single mutex.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	closed      bool
}

var _ docstore.Store = (*Store)(nil)

// New builds an empty in-memory store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) collection(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = newCollection()
		s.collections[name] = c
	}
	return c
}

// CreateIndex registers an index and backfills it from existing documents.
func (s *Store) CreateIndex(_ context.Context, name string, index docstore.Index) error {
	if index.Field == "" || index.Field == docstore.IDField {
		return docstore.ErrInvalidField
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	c := s.collection(name)
	entries := make(map[string]map[string]struct{})
	for id, doc := range c.docs {
		value, ok := docstore.FieldString(doc, index.Field)
		if !ok {
			continue
		}
		ids := entries[value]
		if ids == nil {
			ids = make(map[string]struct{})
			entries[value] = ids
		}
		if index.Unique && len(ids) > 0 {
			return &docstore.DuplicateKeyError{Collection: name, Field: index.Field, Value: value}
		}
		ids[id] = struct{}{}
	}

	c.indexes[index.Field] = index
	c.entries[index.Field] = entries
	return nil
}

// FindOne returns a copy of the first document matching filter.
func (s *Store) FindOne(_ context.Context, name string, filter docstore.Filter) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}

	c, ok := s.collections[name]
	if !ok {
		return nil, docstore.ErrNoDocument
	}
	for _, id := range c.candidates(filter) {
		doc := c.docs[id]
		if doc != nil && docstore.Matches(doc, filter) {
			return docstore.Clone(doc)
		}
	}
	return nil, docstore.ErrNoDocument
}

// Save inserts or replaces a document by identifier.
func (s *Store) Save(_ context.Context, name string, doc docstore.Document, opts ...docstore.SaveOption) (docstore.Ack, error) {
	o := docstore.ApplySaveOptions(opts...)
	stored, err := docstore.Clone(doc)
	if err != nil {
		return docstore.Ack{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.Ack{}, errClosed
	}

	c := s.collection(name)
	id := stored.ID()
	previous, exists := c.docs[id]
	if id == "" || !exists {
		if o.MustExist {
			return docstore.Ack{}, docstore.ErrNoDocument
		}
		if id == "" {
			id = uuid.NewString()
		}
	}
	stored[docstore.IDField] = id

	for field, index := range c.indexes {
		if !index.Unique {
			continue
		}
		value, ok := docstore.FieldString(stored, field)
		if !ok {
			continue
		}
		for other := range c.entries[field][value] {
			if other != id {
				return docstore.Ack{}, &docstore.DuplicateKeyError{Collection: name, Field: field, Value: value}
			}
		}
	}

	if exists {
		c.unindex(id, previous)
	}
	c.docs[id] = stored
	c.index(id, stored)

	return docstore.Ack{ID: id, Inserted: !exists}, nil
}

// Remove deletes every document matching filter.
func (s *Store) Remove(_ context.Context, name string, filter docstore.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}

	c, ok := s.collections[name]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, id := range c.candidates(filter) {
		doc := c.docs[id]
		if doc == nil || !docstore.Matches(doc, filter) {
			continue
		}
		c.unindex(id, doc)
		delete(c.docs, id)
		removed++
	}
	return removed, nil
}

// Ping fails once the store is closed.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// Close marks the store unusable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// candidates narrows the scan to an id or index hit when the filter allows it.
func (c *collection) candidates(filter docstore.Filter) []string {
	if id, ok := filter[docstore.IDField]; ok {
		return []string{id}
	}
	for field, value := range filter {
		if entries, ok := c.entries[field]; ok {
			ids := make([]string, 0, len(entries[value]))
			for id := range entries[value] {
				ids = append(ids, id)
			}
			return ids
		}
	}
	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	return ids
}

func (c *collection) index(id string, doc docstore.Document) {
	for field := range c.indexes {
		value, ok := docstore.FieldString(doc, field)
		if !ok {
			continue
		}
		ids := c.entries[field][value]
		if ids == nil {
			ids = make(map[string]struct{})
			c.entries[field][value] = ids
		}
		ids[id] = struct{}{}
	}
}

func (c *collection) unindex(id string, doc docstore.Document) {
	for field := range c.indexes {
		value, ok := docstore.FieldString(doc, field)
		if !ok {
			continue
		}
		delete(c.entries[field][value], id)
		if len(c.entries[field][value]) == 0 {
			delete(c.entries[field], value)
		}
	}
}
