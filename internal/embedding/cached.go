package embedding

import "context"

// CachedEmbedder wraps an Embedder with an LRU cache keyed by text.
type CachedEmbedder struct {
	inner Embedder
	cache *Cache
}

// NewCachedEmbedder wraps inner with a cache of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: NewCache(capacity)}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec)
	return vec, nil
}

func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var misses []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := e.cache.Get(text); ok {
			out[i] = vec
		} else {
			misses = append(misses, text)
			missIdx = append(missIdx, i)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}
	vecs, err := e.inner.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		e.cache.Set(misses[j], vec)
		out[missIdx[j]] = vec
	}
	return out, nil
}

func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

func (e *CachedEmbedder) Close() error {
	return e.inner.Close()
}

// Invalidate drops the cached embedding for text, if any. Called when a
// document's content changes so stale vectors are never reused.
func (e *CachedEmbedder) Invalidate(text string) {
	e.cache.Invalidate(text)
}
