package models

import (
	"errors"
	"fmt"
)

// Fusion strategy names accepted in QueryRequest.FusionStrategy.
const (
	FusionRRF      = "rrf"
	FusionWeighted = "weighted"
)

// Configuration errors: rejected synchronously before any retrieval work starts.
var (
	ErrInvalidTopK     = errors.New("top_k must be positive")
	ErrInvalidAlpha    = errors.New("alpha must be in [0,1]")
	ErrInvalidStrategy = errors.New("fusion_strategy must be \"rrf\" or \"weighted\"")
)

// QueryRequest is a retrieval request with optional per-request overrides.
// Alpha is a pointer so that "not set" falls back to the configured default.
type QueryRequest struct {
	Query          string              `json:"query"`
	TopK           int                 `json:"top_k,omitempty"`
	UseHyde        bool                `json:"use_hyde,omitempty"`
	UseRerank      bool                `json:"use_rerank,omitempty"`
	FusionStrategy string              `json:"fusion_strategy,omitempty"`
	Alpha          *float64            `json:"alpha,omitempty"`
	Filters        map[string][]string `json:"filters,omitempty"`
}

// Validate rejects configuration errors and normalizes defaults. An empty query
// string is not an error here: it produces an empty result set downstream.
func (q *QueryRequest) Validate(defaultTopK, maxTopK int) error {
	if q.TopK == 0 {
		q.TopK = defaultTopK
	}
	if q.TopK <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTopK, q.TopK)
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	if q.Alpha != nil && (*q.Alpha < 0 || *q.Alpha > 1) {
		return fmt.Errorf("%w: got %g", ErrInvalidAlpha, *q.Alpha)
	}
	switch q.FusionStrategy {
	case "", FusionRRF, FusionWeighted:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidStrategy, q.FusionStrategy)
	}
	return nil
}
