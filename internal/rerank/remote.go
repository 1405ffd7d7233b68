package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/pkg/utils"
)

// RemoteReranker scores candidates via an HTTP cross-encoder service.
// Request:  {"query": "...", "documents": ["...", ...]}
// Response: {"scores": [0.87, ...]}, one score per document, same order.
type RemoteReranker struct {
	endpoint   string
	apiKey     string
	client     *http.Client
	maxRetries int
	logger     *zap.Logger
}

// RemoteConfig holds remote reranker settings.
type RemoteConfig struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type scoreRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// NewRemoteReranker creates a reranker for the given scoring endpoint.
func NewRemoteReranker(cfg RemoteConfig, logger *zap.Logger) (*RemoteReranker, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("reranker endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteReranker{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: timeout},
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}, nil
}

// Rerank scores all candidates in one request and returns them sorted by
// descending score, ties by ascending ID. Transient failures are retried;
// after that the error propagates and the caller keeps the fused order.
func (r *RemoteReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Content
	}
	body, err := json.Marshal(scoreRequest{Query: query, Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	var scores []float64
	err = utils.Retry(ctx, r.maxRetries, 500*time.Millisecond, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		if r.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+r.apiKey)
		}

		resp, doErr := r.client.Do(req)
		if doErr != nil {
			r.logger.Warn("rerank request failed", zap.Error(doErr))
			return doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			r.logger.Warn("rerank service returned error",
				zap.Int("status", resp.StatusCode), zap.ByteString("body", payload))
			return fmt.Errorf("rerank service returned status %d", resp.StatusCode)
		}

		var parsed scoreResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&parsed); decErr != nil {
			return fmt.Errorf("failed to decode rerank response: %w", decErr)
		}
		scores = parsed.Scores
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("rerank service returned %d scores for %d documents", len(scores), len(candidates))
	}

	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		out[i] = Candidate{ID: c.ID, Content: c.Content, Score: scores[i]}
	}
	sortByScore(out)
	return out, nil
}

// Close is a no-op for RemoteReranker.
func (r *RemoteReranker) Close() error {
	return nil
}
