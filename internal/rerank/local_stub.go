//go:build !cgo
// +build !cgo

package rerank

import (
	"context"
	"errors"
)

// LocalReranker stub type when built without CGO (see local.go for the real implementation).
type LocalReranker struct{}

// NewLocalReranker returns an error when built without CGO (ONNX not available).
func NewLocalReranker(_ string, _ int) (*LocalReranker, error) {
	return nil, errors.New("local reranker requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

func (r *LocalReranker) Rerank(_ context.Context, _ string, _ []Candidate) ([]Candidate, error) {
	return nil, errors.New("local reranker not available")
}

func (r *LocalReranker) Close() error {
	return nil
}
