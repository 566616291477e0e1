// Package inmemory is a process-local docstore.Store used by demo mode and tests.
package inmemory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/docstore"
)

type Op string

const (
	OpList   Op = "list"
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

var _ docstore.Store = (*Store)(nil)

type Store struct {
	mu          sync.RWMutex
	collections map[string][]docstore.Document
	failures    map[Op]error
}

func New() *Store {
	return &Store{
		collections: make(map[string][]docstore.Document),
		failures:    make(map[Op]error),
	}
}

// FailNext makes the next call of op fail with err.
func (s *Store) FailNext(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) ListCollection(ctx context.Context, collection string) ([]docstore.Document, error) {
	if err := s.takeFailure(ctx, OpList); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.collections[collection]
	out := make([]docstore.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, docstore.Document{ID: d.ID, Fields: copyFields(d.Fields)})
	}
	return out, nil
}

func (s *Store) AddDocument(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := s.takeFailure(ctx, OpAdd); err != nil {
		return "", err
	}
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], docstore.Document{ID: id, Fields: copyFields(fields)})
	return id, nil
}

func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := s.takeFailure(ctx, OpUpdate); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.collections[collection] {
		if d.ID != id {
			continue
		}
		s.collections[collection][i].Fields = copyFields(fields)
		return nil
	}
	return docstore.ErrNotFound
}

func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	if err := s.takeFailure(ctx, OpDelete); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collections[collection]
	for i, d := range docs {
		if d.ID == id {
			s.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			return nil
		}
	}
	return docstore.ErrNotFound
}

func (s *Store) takeFailure(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
