// Package vector provides the dense retrieval index: brute-force cosine
// similarity over document embeddings, with optional metadata filtering.
package vector

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector's length does not match the
// index dimension. This indicates a configuration error (wrong embedding
// model) and is never silently tolerated.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Result is a single similarity search hit.
type Result struct {
	ID    string
	Score float64
}

// Filter restricts a search to documents whose metadata matches. Each key must
// be present with a value in the allowed set; keys combine with AND, values
// within a key with OR. A nil or empty filter matches everything.
type Filter map[string][]string

// Matches reports whether metadata satisfies the filter.
func (f Filter) Matches(metadata map[string]string) bool {
	for key, allowed := range f {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		match := false
		for _, v := range allowed {
			if v == got {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}

// Index defines dense vector storage and similarity search.
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Remove(ctx context.Context, id string) bool
	Search(ctx context.Context, query []float32, k int, filter Filter) ([]Result, error)
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}
