package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kensaku/internal/models"
)

func TestMemoryStoreUpsertGetDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Upsert(ctx, &models.Document{ID: "a", Content: "hello", Embedding: []float32{1}})
	require.NoError(t, err)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	// Mutating the returned copy must not affect the stored document.
	got.Content = "mutated"
	got.Embedding[0] = 99
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Content)
	assert.Equal(t, float32(1), again.Embedding[0])

	existed, err := s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestMemoryStorePreservesCreatedAt(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Upsert(ctx, &models.Document{ID: "a", Content: "v1"})
	require.NoError(t, err)
	first, err := s.Get(ctx, "a")
	require.NoError(t, err)

	_, err = s.Upsert(ctx, &models.Document{ID: "a", Content: "v2"})
	require.NoError(t, err)
	second, err := s.Get(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "v2", second.Content)
}

func TestMemoryStoreListIDsSorted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"z", "m", "a"} {
		_, err := s.Upsert(ctx, &models.Document{ID: id, Content: id})
		require.NoError(t, err)
	}

	ids, err := s.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "m", "z"}, ids)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
