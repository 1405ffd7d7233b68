package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/kensaku/internal/models"
)

// MemoryStore is an in-memory DocumentStore. Used in tests and for
// ephemeral deployments where persistence is not needed.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*models.Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*models.Document)}
}

func (s *MemoryStore) Upsert(ctx context.Context, doc *models.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	stored := cloneDocument(doc)
	stored.UpdatedAt = now
	if prev, ok := s.docs[doc.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	s.docs[doc.ID] = stored
	doc.CreatedAt = stored.CreatedAt
	doc.UpdatedAt = stored.UpdatedAt
	return doc.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return false, nil
	}
	delete(s.docs, id)
	return true, nil
}

func (s *MemoryStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) All(ctx context.Context) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, cloneDocument(doc))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.docs)), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneDocument(doc *models.Document) *models.Document {
	out := *doc
	if doc.Metadata != nil {
		out.Metadata = make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			out.Metadata[k] = v
		}
	}
	if doc.Embedding != nil {
		out.Embedding = make([]float32, len(doc.Embedding))
		copy(out.Embedding, doc.Embedding)
	}
	return &out
}
