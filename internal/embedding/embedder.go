// Package embedding produces dense vectors for documents and queries. The
// production embedder talks to an OpenAI-compatible endpoint; a deterministic
// mock covers tests and offline development. Results are cached by text.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
