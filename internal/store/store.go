// Package store defines document persistence. The store is the single source
// of truth for documents; the lexical and vector indexes hold derived,
// rebuildable projections of it.
package store

import (
	"context"
	"errors"

	"github.com/hyperjump/kensaku/internal/models"
)

// ErrNotFound is returned when a document ID does not resolve to a live document.
var ErrNotFound = errors.New("document not found")

// DocumentStore owns Document records. Upsert is idempotent by ID: re-upserting
// replaces content, metadata, and embedding in one step. The persisted record
// includes the embedding so indexes can be rebuilt without re-calling the
// embedding function for unchanged documents.
type DocumentStore interface {
	Upsert(ctx context.Context, doc *models.Document) (string, error)
	Get(ctx context.Context, id string) (*models.Document, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListIDs(ctx context.Context) ([]string, error)
	All(ctx context.Context) ([]*models.Document, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}
