//go:build cgo
// +build cgo

package rerank

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// LocalReranker runs a cross-encoder ONNX model in-process. It requires CGO
// and the onnxruntime shared library. Each query-document pair is scored with
// one forward pass producing a single relevance logit.
type LocalReranker struct {
	session   *ort.AdvancedSession
	maxTokens int
	tokenizer *pairTokenizer

	// Pre-allocated tensors for Run(); we update input data and read output.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewLocalReranker loads the cross-encoder model at modelPath.
// InitializeEnvironment is called if not already done.
func NewLocalReranker(modelPath string, maxTokens int) (*LocalReranker, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}

	tokenizer := &pairTokenizer{}
	inputIDs, attentionMask, tokenTypeIDs := tokenizer.TokenizePair("", "", maxTokens)

	inputIDsTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	attentionMaskTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), attentionMask)
	if err != nil {
		inputIDsTensor.Destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	tokenTypeIDsTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), tokenTypeIDs)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	outputTensor, err := ort.NewTensor(ort.NewShape(1, 1), make([]float32, 1))
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"logits"},
		[]ort.ArbitraryTensor{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &LocalReranker{
		session:             session,
		maxTokens:           maxTokens,
		tokenizer:           tokenizer,
		inputIDsTensor:      inputIDsTensor,
		attentionMaskTensor: attentionMaskTensor,
		tokenTypeIDsTensor:  tokenTypeIDsTensor,
		outputTensor:        outputTensor,
	}, nil
}

// Rerank scores each candidate pair and returns them sorted by descending
// score, ties by ascending ID.
func (r *LocalReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		inputIDs, attentionMask, tokenTypeIDs := r.tokenizer.TokenizePair(query, c.Content, r.maxTokens)
		copy(r.inputIDsTensor.GetData(), inputIDs)
		copy(r.attentionMaskTensor.GetData(), attentionMask)
		copy(r.tokenTypeIDsTensor.GetData(), tokenTypeIDs)

		if err := r.session.Run(); err != nil {
			return nil, fmt.Errorf("inference failed for document %s: %w", c.ID, err)
		}
		out[i] = Candidate{ID: c.ID, Content: c.Content, Score: float64(r.outputTensor.GetData()[0])}
	}
	sortByScore(out)
	return out, nil
}

// Close destroys the session and tensors.
func (r *LocalReranker) Close() error {
	var err error
	if r.session != nil {
		err = r.session.Destroy()
		r.session = nil
	}
	if r.inputIDsTensor != nil {
		_ = r.inputIDsTensor.Destroy()
		r.inputIDsTensor = nil
	}
	if r.attentionMaskTensor != nil {
		_ = r.attentionMaskTensor.Destroy()
		r.attentionMaskTensor = nil
	}
	if r.tokenTypeIDsTensor != nil {
		_ = r.tokenTypeIDsTensor.Destroy()
		r.tokenTypeIDsTensor = nil
	}
	if r.outputTensor != nil {
		_ = r.outputTensor.Destroy()
		r.outputTensor = nil
	}
	return err
}
