// Package rerank rescores the fused candidate list with a cross-encoder:
// the query and each candidate document are scored jointly, which is more
// accurate than the independent embeddings used for retrieval but too slow to
// run over the whole corpus. Two implementations exist: a remote HTTP scoring
// service and a local ONNX model (requires CGO).
package rerank

import (
	"context"
	"sort"
)

// Candidate is a document going into or out of the reranker. On output, Score
// is the cross-encoder relevance score.
type Candidate struct {
	ID      string
	Content string
	Score   float64
}

// Reranker reorders candidates by joint query-document relevance. On error the
// caller keeps the pre-rerank ordering, so a failed reranker degrades quality
// but never availability.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error)
	Close() error
}

// sortByScore orders candidates by descending score, ties by ascending ID.
func sortByScore(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})
}
