package models

import "time"

// Source identifies which retrieval stage produced a result's score.
type Source string

const (
	SourceLexical  Source = "lexical"
	SourceVector   Source = "vector"
	SourceFused    Source = "fused"
	SourceReranked Source = "reranked"
)

// RetrievalResult is a single ranked hit. Rank values within one result
// sequence are a contiguous 1..N permutation; ties are broken by ascending
// document ID so repeated queries over the same corpus return identical order.
type RetrievalResult struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
	Source     Source  `json:"source"`
}

// RAGContext is the final product of one query call: the ranked passages and
// the formatted context block handed to the answer generator. Read-only to callers.
type RAGContext struct {
	Query            string            `json:"query"`
	Results          []RetrievalResult `json:"results"`
	FormattedContext string            `json:"formatted_context"`
	GeneratedAt      time.Time         `json:"generated_at"`
}
