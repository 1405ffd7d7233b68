package hyde

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

type fakeModel struct {
	responses []string
	err       error
	calls     int
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.responses[idx]}},
	}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, nil)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func newTestExpander(model llms.Model, hypotheses int) *Expander {
	return NewExpanderWithModel(model, Config{Hypotheses: hypotheses, MaxRetries: 1}, zap.NewNop())
}

func TestExpandSingleHypothesis(t *testing.T) {
	model := &fakeModel{responses: []string{"Solar panels degrade about 0.5% per year."}}
	e := newTestExpander(model, 1)

	docs, err := e.Expand(context.Background(), "how fast do solar panels degrade?")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Solar panels degrade about 0.5% per year.", docs[0])
	assert.Equal(t, 1, model.calls)
}

func TestExpandMultipleHypotheses(t *testing.T) {
	model := &fakeModel{responses: []string{"First passage.", "Second passage.", "Third passage."}}
	e := newTestExpander(model, 3)

	docs, err := e.Expand(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []string{"First passage.", "Second passage.", "Third passage."}, docs)
}

func TestExpandTrimsAndDropsEmpty(t *testing.T) {
	model := &fakeModel{responses: []string{"  padded  ", ""}}
	e := newTestExpander(model, 2)

	docs, err := e.Expand(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []string{"padded"}, docs)
}

func TestExpandFailureReturnsError(t *testing.T) {
	model := &fakeModel{err: errors.New("connection refused")}
	e := newTestExpander(model, 1)

	_, err := e.Expand(context.Background(), "query")
	assert.Error(t, err)
}

func TestExpandAllEmptyIsError(t *testing.T) {
	model := &fakeModel{responses: []string{""}}
	e := newTestExpander(model, 1)

	_, err := e.Expand(context.Background(), "query")
	assert.Error(t, err)
}
