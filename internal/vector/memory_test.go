package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0, 0}, nil))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{0, 1, 0}, nil))
	require.NoError(t, idx.Upsert(ctx, "c", []float32{0.9, 0.1, 0}, nil))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "c", results[1].ID)
}

func TestUpsertReplaces(t *testing.T) {
	idx, err := NewMemoryIndex(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}, nil))
	require.NoError(t, idx.Upsert(ctx, "a", []float32{0, 1}, nil))
	assert.Equal(t, 1, idx.Size())

	results, err := idx.Search(ctx, []float32{0, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestDimensionMismatch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	require.NoError(t, err)
	ctx := context.Background()

	err = idx.Upsert(ctx, "a", []float32{1, 0}, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = idx.Search(ctx, []float32{1, 0}, 5, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestRemove(t *testing.T) {
	idx, err := NewMemoryIndex(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}, nil))
	assert.True(t, idx.Remove(ctx, "a"))
	assert.False(t, idx.Remove(ctx, "a"))
	assert.Equal(t, 0, idx.Size())
}

func TestSearchEmptyIndex(t *testing.T) {
	idx, err := NewMemoryIndex(2)
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchTieBreakAscendingID(t *testing.T) {
	idx, err := NewMemoryIndex(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "z", []float32{1, 0}, nil))
	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}, nil))
	require.NoError(t, idx.Upsert(ctx, "m", []float32{2, 0}, nil)) // same direction, same cosine

	results, err := idx.Search(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "m", results[1].ID)
	assert.Equal(t, "z", results[2].ID)
}

func TestSearchWithFilter(t *testing.T) {
	idx, err := NewMemoryIndex(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}, map[string]string{"lang": "en"}))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{1, 0}, map[string]string{"lang": "de"}))
	require.NoError(t, idx.Upsert(ctx, "c", []float32{1, 0}, nil))

	results, err := idx.Search(ctx, []float32{1, 0}, 10, Filter{"lang": {"en", "fr"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestFilterMatches(t *testing.T) {
	meta := map[string]string{"lang": "en", "category": "energy"}

	assert.True(t, Filter(nil).Matches(meta))
	assert.True(t, Filter{}.Matches(nil))
	assert.True(t, Filter{"lang": {"en"}}.Matches(meta))
	assert.True(t, Filter{"lang": {"de", "en"}}.Matches(meta))
	assert.False(t, Filter{"lang": {"de"}}.Matches(meta))
	assert.False(t, Filter{"missing": {"x"}}.Matches(meta))
	// Keys combine with AND.
	assert.False(t, Filter{"lang": {"en"}, "category": {"sports"}}.Matches(meta))
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	ctx := context.Background()

	idx, err := NewMemoryIndex(3)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0, 0}, map[string]string{"lang": "en"}))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{0, 1, 0}, nil))
	require.NoError(t, idx.Save(path))

	restored, err := NewMemoryIndex(3)
	require.NoError(t, err)
	require.NoError(t, restored.Load(path))
	assert.Equal(t, 2, restored.Size())

	results, err := restored.Search(ctx, []float32{1, 0, 0}, 10, Filter{"lang": {"en"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestLoadDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	ctx := context.Background()

	idx, err := NewMemoryIndex(3)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0, 0}, nil))
	require.NoError(t, idx.Save(path))

	other, err := NewMemoryIndex(4)
	require.NoError(t, err)
	assert.ErrorIs(t, other.Load(path), ErrDimensionMismatch)
}

func TestLoadMissingFile(t *testing.T) {
	idx, err := NewMemoryIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Load(filepath.Join(t.TempDir(), "absent.bin")))
	assert.Equal(t, 0, idx.Size())
}
