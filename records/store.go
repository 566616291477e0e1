// Package records keeps a local cache of the user's records in sync with the
// document store. Every successful mutation is followed by a full reload.
package records

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/docstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const CollectionName = "records"

// Record is one stored record. Fields hold scalar or string values.
type Record struct {
	ID     string
	Fields map[string]any
}

type Option func(s *Store)

func WithCollection(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.collection = name
		}
	}
}

// Store is safe for concurrent use. Racing mutations leave the cache holding
// whichever reload finished last.
type Store struct {
	docs       docstore.Store
	collection string

	mu    sync.RWMutex
	cache []Record
}

func NewStore(docs docstore.Store, options ...Option) (*Store, error) {
	if docs == nil {
		return nil, errors.New("[NewStore] docstore is required")
	}
	s := &Store{docs: docs, collection: CollectionName}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// ListAll replaces the cache with the store's contents. On failure the cache is
// left as it was.
func (s *Store) ListAll(ctx context.Context) ([]Record, error) {
	docs, err := s.docs.ListCollection(ctx, s.collection)
	if err != nil {
		log.Err(err).Str("collection", s.collection).Msg("list records failed")
		return nil, &Error{Op: "ListAll", Kind: KindFetchFailure, Err: err}
	}
	fresh := make([]Record, 0, len(docs))
	for _, d := range docs {
		fresh = append(fresh, Record{ID: d.ID, Fields: copyFields(d.Fields)})
	}

	s.mu.Lock()
	s.cache = fresh
	s.mu.Unlock()
	return cloneRecords(fresh), nil
}

func (s *Store) Create(ctx context.Context, fields map[string]any) error {
	const op = "Create"
	if fields == nil {
		fields = map[string]any{}
	}
	id, err := s.docs.AddDocument(ctx, s.collection, fields)
	if err != nil {
		return &Error{Op: op, Kind: KindWriteFailure, Err: err}
	}
	log.Debug().Str("id", id).Msg("record created")
	return s.refresh(ctx, op)
}

// Update replaces the record's fields; keys not in fields are dropped.
func (s *Store) Update(ctx context.Context, id string, fields map[string]any) error {
	const op = "Update"
	if id == "" {
		return &Error{Op: op, Kind: KindNotFound}
	}
	if fields == nil {
		fields = map[string]any{}
	}
	if err := s.docs.UpdateDocument(ctx, s.collection, id, fields); err != nil {
		return writeError(op, err)
	}
	return s.refresh(ctx, op)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	const op = "Delete"
	if id == "" {
		return &Error{Op: op, Kind: KindNotFound}
	}
	if err := s.docs.DeleteDocument(ctx, s.collection, id); err != nil {
		return writeError(op, err)
	}
	return s.refresh(ctx, op)
}

// Records returns a copy of the cache.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecords(s.cache)
}

func (s *Store) refresh(ctx context.Context, op string) error {
	if _, err := s.ListAll(ctx); err != nil {
		var listErr *Error
		if errors.As(err, &listErr) {
			err = listErr.Err
		}
		return &Error{Op: op, Kind: KindRefreshFailure, Err: err}
	}
	return nil
}

func writeError(op string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return &Error{Op: op, Kind: KindNotFound, Err: err}
	}
	return &Error{Op: op, Kind: KindWriteFailure, Err: err}
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, 0, len(in))
	for _, r := range in {
		out = append(out, Record{ID: r.ID, Fields: copyFields(r.Fields)})
	}
	return out
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
