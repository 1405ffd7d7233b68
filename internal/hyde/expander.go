// Package hyde implements hypothetical document expansion. Short queries
// embed poorly against full documents; generating a hypothetical answer and
// embedding that instead moves the query vector toward the document manifold.
package hyde

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/pkg/utils"
)

const systemPrompt = `You write short hypothetical documents. Given a search query, write a concise passage (3-5 sentences) that would plausibly appear in a document answering it. Write only the passage, no preamble.`

// Expander generates hypothetical documents for a query via an LLM.
type Expander struct {
	client     llms.Model
	hypotheses int
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger
}

// Config holds expander settings for an OpenAI-compatible chat endpoint.
type Config struct {
	BaseURL    string
	Model      string
	APIKey     string
	Hypotheses int
	Timeout    time.Duration
	MaxRetries int
}

// NewExpander creates an expander backed by the configured chat endpoint.
func NewExpander(cfg Config, logger *zap.Logger) (*Expander, error) {
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create expansion client: %w", err)
	}
	return NewExpanderWithModel(client, cfg, logger), nil
}

// NewExpanderWithModel creates an expander over an existing model. Used by
// tests to inject a fake.
func NewExpanderWithModel(client llms.Model, cfg Config, logger *zap.Logger) *Expander {
	hypotheses := cfg.Hypotheses
	if hypotheses < 1 {
		hypotheses = 1
	}
	return &Expander{
		client:     client,
		hypotheses: hypotheses,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

// Expand generates hypothetical documents for query. On total failure it
// returns an error; callers fall back to the raw query so retrieval still
// happens. A successful call returns between 1 and the configured number of
// hypotheses, with empty generations dropped.
func (e *Expander) Expand(ctx context.Context, query string) ([]string, error) {
	content := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(query)},
		},
	}

	docs := make([]string, 0, e.hypotheses)
	for i := 0; i < e.hypotheses; i++ {
		var text string
		err := utils.Retry(ctx, e.maxRetries, 500*time.Millisecond, func() error {
			callCtx := ctx
			if e.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, e.timeout)
				defer cancel()
			}
			resp, callErr := e.client.GenerateContent(callCtx, content, llms.WithTemperature(0.7))
			if callErr != nil {
				e.logger.Warn("hypothesis generation failed", zap.Int("hypothesis", i+1), zap.Error(callErr))
				return callErr
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("model returned no choices")
			}
			text = strings.TrimSpace(resp.Choices[0].Content)
			return nil
		})
		if err != nil {
			if len(docs) > 0 {
				// Partial success is still useful.
				e.logger.Warn("stopping expansion early", zap.Int("generated", len(docs)), zap.Error(err))
				break
			}
			return nil, fmt.Errorf("failed to expand query: %w", err)
		}
		if text != "" {
			docs = append(docs, text)
		}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("expansion produced no usable hypotheses")
	}
	return docs, nil
}
