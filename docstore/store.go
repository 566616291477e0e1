// Package docstore is the contract for the remote document store holding records.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the addressed document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is one stored document. Fields hold scalar or string values.
type Document struct {
	ID     string
	Fields map[string]any
}

// Store reads and writes documents grouped by collection.
type Store interface {
	ListCollection(ctx context.Context, collection string) ([]Document, error)
	// AddDocument stores fields under a store-assigned id and returns it.
	AddDocument(ctx context.Context, collection string, fields map[string]any) (string, error)
	// UpdateDocument replaces the existing document's fields with fields.
	UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) error
	DeleteDocument(ctx context.Context, collection, id string) error
}
