// Package models defines core data structures for documents, queries, and retrieval results.
package models

import (
	"errors"
	"time"
)

// ErrEmptyContent rejects ingestion of documents with no content.
var ErrEmptyContent = errors.New("document content must not be empty")

// Document is the unit of retrieval: normalized text plus metadata and a cached embedding.
// Documents are immutable once ingested; re-ingesting with the same ID fully replaces
// content, metadata, and embedding.
type Document struct {
	ID        string            `json:"id" db:"id"`
	Content   string            `json:"content" db:"content"`
	Metadata  map[string]string `json:"metadata,omitempty" db:"metadata"`
	Embedding []float32         `json:"-" db:"-"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

// DocumentInput is the ingestion payload. ID is optional; when empty an ID is assigned.
type DocumentInput struct {
	ID       string            `json:"id,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
