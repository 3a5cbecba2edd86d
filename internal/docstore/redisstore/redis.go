// Package redisstore implements docstore.Store on Redis. Documents are JSON
// strings; every index value maps to a set of document ids and unique
// checks run under WATCH so concurrent writers cannot both claim a value.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/accounts/internal/docstore"
)

const (
	defaultPrefix = "docstore:"
	maxTxAttempts = 16
)

// ErrContention is returned when optimistic transactions keep losing races.
var ErrContention = errors.New("redisstore: transaction contention")

type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// Store is a Redis-backed document store.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ docstore.Store = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithPrefix namespaces every key written by the store.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New wraps an established Redis client. The store owns the client from
// here on and closes it in Close.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) docKey(coll, id string) string { return s.prefix + coll + ":doc:" + id }
func (s *Store) idsKey(coll string) string     { return s.prefix + coll + ":ids" }
func (s *Store) metaKey(coll string) string    { return s.prefix + coll + ":indexes" }
func (s *Store) idxKey(coll, field, value string) string {
	return s.prefix + coll + ":idx:" + field + ":" + value
}

// CreateIndex records the index definition and backfills it. Meant to run at
// startup before writers begin.
func (s *Store) CreateIndex(ctx context.Context, coll string, index docstore.Index) error {
	if index.Field == "" || index.Field == docstore.IDField {
		return docstore.ErrInvalidField
	}

	ids, err := s.client.SMembers(ctx, s.idsKey(coll)).Result()
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	owners := make(map[string]string, len(ids))
	for _, id := range ids {
		doc, err := s.load(ctx, s.client, coll, id)
		if err != nil {
			return err
		}
		if doc == nil {
			continue
		}
		value, ok := docstore.FieldString(doc, index.Field)
		if !ok {
			continue
		}
		if owner, taken := owners[value]; taken && index.Unique && owner != id {
			return &docstore.DuplicateKeyError{Collection: coll, Field: index.Field, Value: value}
		}
		owners[value] = id
	}

	flag := "0"
	if index.Unique {
		flag = "1"
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for value, id := range owners {
			pipe.SAdd(ctx, s.idxKey(coll, index.Field, value), id)
		}
		pipe.HSet(ctx, s.metaKey(coll), index.Field, flag)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create index %s.%s: %w", coll, index.Field, err)
	}
	return nil
}

// FindOne returns the first document matching filter.
func (s *Store) FindOne(ctx context.Context, coll string, filter docstore.Filter) (docstore.Document, error) {
	ids, err := s.candidates(ctx, coll, filter)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		doc, err := s.load(ctx, s.client, coll, id)
		if err != nil {
			return nil, err
		}
		if doc != nil && docstore.Matches(doc, filter) {
			return doc, nil
		}
	}
	return nil, docstore.ErrNoDocument
}

// Save inserts or replaces a document atomically with its index entries.
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

	var ack docstore.Ack
	err = s.watch(ctx, func(tx *redis.Tx) error {
		indexes, err := s.indexes(ctx, tx, coll)
		if err != nil {
			return err
		}
		previous, err := s.load(ctx, tx, coll, id)
		if err != nil {
			return err
		}
		if previous == nil && o.MustExist {
			return docstore.ErrNoDocument
		}

		var claimed []string
		for field := range indexes {
			if value, ok := docstore.FieldString(stored, field); ok {
				claimed = append(claimed, s.idxKey(coll, field, value))
			}
		}
		if len(claimed) > 0 {
			if err := tx.Watch(ctx, claimed...).Err(); err != nil {
				return err
			}
		}

		for field, unique := range indexes {
			if !unique {
				continue
			}
			value, ok := docstore.FieldString(stored, field)
			if !ok {
				continue
			}
			owners, err := tx.SMembers(ctx, s.idxKey(coll, field, value)).Result()
			if err != nil {
				return err
			}
			for _, owner := range owners {
				if owner != id {
					return &docstore.DuplicateKeyError{Collection: coll, Field: field, Value: value}
				}
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previous != nil {
				s.unindex(ctx, pipe, coll, id, previous, indexes)
			}
			pipe.Set(ctx, s.docKey(coll, id), payload, 0)
			pipe.SAdd(ctx, s.idsKey(coll), id)
			s.index(ctx, pipe, coll, id, stored, indexes)
			return nil
		})
		if err != nil {
			return err
		}
		ack = docstore.Ack{ID: id, Inserted: previous == nil}
		return nil
	}, s.docKey(coll, id), s.metaKey(coll))
	if err != nil {
		return docstore.Ack{}, err
	}
	return ack, nil
}

// Remove deletes every document matching filter and reports how many went.
func (s *Store) Remove(ctx context.Context, coll string, filter docstore.Filter) (int64, error) {
	ids, err := s.candidates(ctx, coll, filter)
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, id := range ids {
		err := s.watch(ctx, func(tx *redis.Tx) error {
			doc, err := s.load(ctx, tx, coll, id)
			if err != nil {
				return err
			}
			if doc == nil || !docstore.Matches(doc, filter) {
				return nil
			}
			indexes, err := s.indexes(ctx, tx, coll)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				s.unindex(ctx, pipe, coll, id, doc, indexes)
				pipe.Del(ctx, s.docKey(coll, id))
				pipe.SRem(ctx, s.idsKey(coll), id)
				return nil
			})
			if err != nil {
				return err
			}
			removed++
			return nil
		}, s.docKey(coll, id), s.metaKey(coll))
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w on %v", ErrContention, keys)
}

// indexes maps field name to uniqueness.
func (s *Store) indexes(ctx context.Context, r reader, coll string) (map[string]bool, error) {
	raw, err := r.HGetAll(ctx, s.metaKey(coll)).Result()
	if err != nil {
		return nil, fmt.Errorf("load indexes: %w", err)
	}
	out := make(map[string]bool, len(raw))
	for field, flag := range raw {
		out[field] = flag == "1"
	}
	return out, nil
}

func (s *Store) load(ctx context.Context, r reader, coll, id string) (docstore.Document, error) {
	raw, err := r.Get(ctx, s.docKey(coll, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	return docstore.Decode(raw)
}

func (s *Store) candidates(ctx context.Context, coll string, filter docstore.Filter) ([]string, error) {
	if id, ok := filter[docstore.IDField]; ok {
		return []string{id}, nil
	}
	indexes, err := s.indexes(ctx, s.client, coll)
	if err != nil {
		return nil, err
	}
	key := s.idsKey(coll)
	for field, value := range filter {
		if _, ok := indexes[field]; ok {
			key = s.idxKey(coll, field, value)
			break
		}
	}
	ids, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return ids, nil
}

func (s *Store) index(ctx context.Context, pipe redis.Pipeliner, coll, id string, doc docstore.Document, indexes map[string]bool) {
	for field := range indexes {
		if value, ok := docstore.FieldString(doc, field); ok {
			pipe.SAdd(ctx, s.idxKey(coll, field, value), id)
		}
	}
}

func (s *Store) unindex(ctx context.Context, pipe redis.Pipeliner, coll, id string, doc docstore.Document, indexes map[string]bool) {
	for field := range indexes {
		if value, ok := docstore.FieldString(doc, field); ok {
			pipe.SRem(ctx, s.idxKey(coll, field, value), id)
		}
	}
}
