// Package pipeline wires storage, both retrievers, fusion, query expansion,
// and reranking into the end-to-end retrieval flow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/fusion"
	"github.com/hyperjump/kensaku/internal/lexical"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/rerank"
	"github.com/hyperjump/kensaku/internal/store"
	"github.com/hyperjump/kensaku/internal/vector"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// Expander generates hypothetical documents for a query.
type Expander interface {
	Expand(ctx context.Context, query string) ([]string, error)
}

// Invalidator is implemented by embedders that cache by text.
type Invalidator interface {
	Invalidate(text string)
}

// Status reports corpus and index sizes.
type Status struct {
	Documents int64 `json:"documents"`
	Lexical   int   `json:"lexical_index"`
	Vectors   int   `json:"vector_index"`
}

// Pipeline coordinates the document store, the BM25 and vector indexes, and
// the optional expansion and reranking stages. Mutations are serialized per
// document ID; queries run concurrently against a consistent index pair.
type Pipeline struct {
	cfg      *config.Config
	store    store.DocumentStore
	lexical  *lexical.BM25Index
	vectors  vector.Index
	embedder embedding.Embedder
	expander Expander
	reranker rerank.Reranker
	logger   *zap.Logger

	// indexMu makes each document mutation (the store write plus both index
	// entries) atomic with respect to queries, which hold the read side from
	// retrieval through context assembly. A query therefore always scores and
	// formats the same version of a document.
	indexMu sync.RWMutex
	idLocks sync.Map // document ID -> *sync.Mutex
}

// Option configures optional pipeline stages.
type Option func(*Pipeline)

// WithExpander enables hypothetical document expansion.
func WithExpander(e Expander) Option {
	return func(p *Pipeline) { p.expander = e }
}

// WithReranker enables cross-encoder reranking.
func WithReranker(r rerank.Reranker) Option {
	return func(p *Pipeline) { p.reranker = r }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New assembles a pipeline over the given components.
func New(cfg *config.Config, docs store.DocumentStore, lex *lexical.BM25Index, vec vector.Index, emb embedding.Embedder, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		store:    docs,
		lexical:  lex,
		vectors:  vec,
		embedder: emb,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) lockID(id string) func() {
	v, _ := p.idLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Ingest embeds, stores, and indexes a document. When input.ID is empty a new
// UUID is assigned; an existing ID is fully replaced in the store and both
// indexes. Re-ingesting identical content is idempotent.
func (p *Pipeline) Ingest(ctx context.Context, input models.DocumentInput) (*models.Document, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, models.ErrEmptyContent
	}
	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}

	// Embedding is the slow part; do it before any locks.
	vec, err := p.embedder.Embed(ctx, input.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to embed document %s: %w", id, err)
	}

	unlock := p.lockID(id)
	defer unlock()

	if prev, err := p.store.Get(ctx, id); err == nil && prev.Content != input.Content {
		if inv, ok := p.embedder.(Invalidator); ok {
			inv.Invalidate(prev.Content)
		}
	}

	doc := &models.Document{
		ID:        id,
		Content:   input.Content,
		Metadata:  input.Metadata,
		Embedding: vec,
	}
	p.indexMu.Lock()
	defer p.indexMu.Unlock()
	if _, err := p.store.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document %s: %w", id, err)
	}
	p.lexical.Add(id, input.Content)
	if err := p.vectors.Upsert(ctx, id, vec, input.Metadata); err != nil {
		// Keep indexes consistent: drop the lexical entry we just added.
		p.lexical.Remove(id)
		return nil, fmt.Errorf("failed to index document %s: %w", id, err)
	}

	p.logger.Info("document ingested", zap.String("id", id), zap.Int("content_len", len(input.Content)))
	return doc, nil
}

// Get returns a stored document by ID.
func (p *Pipeline) Get(ctx context.Context, id string) (*models.Document, error) {
	return p.store.Get(ctx, id)
}

// Delete removes a document from the store and both indexes. Returns false
// when the ID did not exist; deleting twice is not an error.
func (p *Pipeline) Delete(ctx context.Context, id string) (bool, error) {
	unlock := p.lockID(id)
	defer unlock()

	doc, err := p.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	p.indexMu.Lock()
	existed, err := p.store.Delete(ctx, id)
	if err != nil {
		p.indexMu.Unlock()
		return false, err
	}
	p.lexical.Remove(id)
	p.vectors.Remove(ctx, id)
	p.indexMu.Unlock()

	if inv, ok := p.embedder.(Invalidator); ok {
		inv.Invalidate(doc.Content)
	}

	p.logger.Info("document deleted", zap.String("id", id))
	return existed, nil
}

// Status returns corpus and index sizes.
func (p *Pipeline) Status(ctx context.Context) (*Status, error) {
	n, err := p.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	p.indexMu.RLock()
	defer p.indexMu.RUnlock()
	return &Status{Documents: n, Lexical: p.lexical.Len(), Vectors: p.vectors.Size()}, nil
}

// Query runs the full retrieval flow: optional expansion, parallel lexical
// and dense retrieval, fusion, optional reranking, and context assembly.
func (p *Pipeline) Query(ctx context.Context, req models.QueryRequest) (*models.RAGContext, error) {
	if err := req.Validate(p.cfg.Search.DefaultTopK, p.cfg.Search.MaxTopK); err != nil {
		return nil, err
	}
	strategy := req.FusionStrategy
	if strategy == "" {
		strategy = p.cfg.Fusion.Strategy
	}
	alpha := *p.cfg.Fusion.Alpha
	if req.Alpha != nil {
		alpha = *req.Alpha
	}

	out := &models.RAGContext{Query: req.Query, GeneratedAt: time.Now()}
	if strings.TrimSpace(req.Query) == "" {
		out.Results = []models.RetrievalResult{}
		return out, nil
	}

	// An unreachable embedding service must not fail the query: the dense leg
	// contributes nothing and the lexical leg still answers. A dimension
	// mismatch is a deployment misconfiguration and does abort.
	queryVec, err := p.queryEmbedding(ctx, req)
	if err != nil {
		if errors.Is(err, vector.ErrDimensionMismatch) {
			return nil, err
		}
		p.logger.Warn("query embedding unavailable, using lexical retrieval only", zap.Error(err))
		queryVec = nil
	}

	candidates := p.cfg.Search.TopKCandidates
	if candidates < req.TopK {
		candidates = req.TopK
	}

	p.indexMu.RLock()
	defer p.indexMu.RUnlock()

	dense, lex, err := p.retrieve(ctx, req, queryVec, candidates)
	if err != nil {
		return nil, err
	}

	var fused []fusion.Fused
	switch strategy {
	case models.FusionWeighted:
		fused = fusion.WeightedScoreFusion(dense, lex, alpha)
	default:
		fused = fusion.ReciprocalRankFusion(dense, lex, alpha, p.cfg.Fusion.K)
	}

	results := p.finalize(ctx, req, fused)
	out.Results = results
	out.FormattedContext = p.formatContext(ctx, results)
	return out, nil
}

// queryEmbedding returns the dense query vector. With expansion enabled, the
// raw query and every hypothesis are embedded and averaged; expansion failure
// falls back to the raw query alone.
func (p *Pipeline) queryEmbedding(ctx context.Context, req models.QueryRequest) ([]float32, error) {
	texts := []string{req.Query}
	if req.UseHyde && p.expander != nil {
		hypotheses, err := p.expander.Expand(ctx, req.Query)
		if err != nil {
			p.logger.Warn("query expansion failed, using raw query", zap.Error(err))
		} else {
			texts = append(texts, hypotheses...)
		}
	}

	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) == 1 {
		return vecs[0], nil
	}
	avg := make([]float32, len(vecs[0]))
	for _, vec := range vecs {
		for i, x := range vec {
			avg[i] += x
		}
	}
	inv := float32(1) / float32(len(vecs))
	for i := range avg {
		avg[i] *= inv
	}
	return avg, nil
}

// retrieve runs both retriever legs in parallel with a shared timeout. A leg
// that times out or fails transiently yields an empty list so the query is
// answered from the other leg; a dimension mismatch aborts the query since it
// means the deployment is misconfigured. A nil queryVec skips the dense leg.
// The caller holds indexMu for reading.
func (p *Pipeline) retrieve(ctx context.Context, req models.QueryRequest, queryVec []float32, candidates int) (dense, lex []fusion.Entry, err error) {
	legCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.Search.RetrieverTimeoutSeconds)*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(legCtx)

	g.Go(func() error {
		if queryVec == nil {
			return nil
		}
		hits, searchErr := p.vectors.Search(gctx, queryVec, candidates, vector.Filter(req.Filters))
		if searchErr != nil {
			if errors.Is(searchErr, vector.ErrDimensionMismatch) {
				return searchErr
			}
			p.logger.Warn("dense retrieval degraded", zap.Error(searchErr))
			return nil
		}
		dense = make([]fusion.Entry, len(hits))
		for i, h := range hits {
			dense[i] = fusion.Entry{ID: h.ID, Score: h.Score}
		}
		return nil
	})

	g.Go(func() error {
		hits := p.lexical.Retrieve(req.Query, candidates)
		hits = p.filterLexical(gctx, hits, req.Filters)
		lex = make([]fusion.Entry, len(hits))
		for i, h := range hits {
			lex[i] = fusion.Entry{ID: h.ID, Score: h.Score}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if legCtx.Err() != nil && ctx.Err() == nil {
		p.logger.Warn("retrieval timed out, results may be degraded")
	}
	return dense, lex, nil
}

// filterLexical applies metadata filters to lexical hits. The BM25 index does
// not carry metadata, so it is fetched from the store.
func (p *Pipeline) filterLexical(ctx context.Context, hits []lexical.Result, filters map[string][]string) []lexical.Result {
	if len(filters) == 0 {
		return hits
	}
	f := vector.Filter(filters)
	kept := hits[:0]
	for _, h := range hits {
		doc, err := p.store.Get(ctx, h.ID)
		if err != nil {
			continue
		}
		if f.Matches(doc.Metadata) {
			kept = append(kept, h)
		}
	}
	return kept
}

// finalize reranks the fused head when requested, drops documents deleted
// since retrieval, truncates to TopK, and assigns contiguous ranks. Only
// documents the reranker actually rescored are tagged as reranked; candidates
// beyond the window keep their fused score and source.
func (p *Pipeline) finalize(ctx context.Context, req models.QueryRequest, fused []fusion.Fused) []models.RetrievalResult {
	rescored := make(map[string]bool)
	ordered := make([]fusion.Fused, len(fused))
	copy(ordered, fused)

	if req.UseRerank && p.reranker != nil && len(ordered) > 0 {
		window := p.cfg.Rerank.Window
		if window > len(ordered) {
			window = len(ordered)
		}
		candidates := make([]rerank.Candidate, 0, window)
		for _, f := range ordered[:window] {
			doc, err := p.store.Get(ctx, f.ID)
			if err != nil {
				p.logger.Warn("dropping stale result", zap.String("id", f.ID))
				continue
			}
			candidates = append(candidates, rerank.Candidate{ID: f.ID, Content: doc.Content, Score: f.Score})
		}
		reranked, err := p.reranker.Rerank(ctx, req.Query, candidates)
		if err != nil {
			p.logger.Warn("rerank failed, keeping fused order", zap.Error(err))
		} else {
			head := make([]fusion.Fused, 0, len(ordered))
			for _, c := range reranked {
				rescored[c.ID] = true
				head = append(head, fusion.Fused{ID: c.ID, Score: c.Score})
			}
			// Documents beyond the window keep their fused order after the
			// reranked head.
			head = append(head, ordered[window:]...)
			ordered = head
		}
	}

	results := make([]models.RetrievalResult, 0, req.TopK)
	for _, f := range ordered {
		if len(results) == req.TopK {
			break
		}
		if _, err := p.store.Get(ctx, f.ID); err != nil {
			p.logger.Warn("dropping stale result", zap.String("id", f.ID))
			continue
		}
		source := models.SourceFused
		if rescored[f.ID] {
			source = models.SourceReranked
		}
		results = append(results, models.RetrievalResult{
			DocumentID: f.ID,
			Score:      f.Score,
			Rank:       len(results) + 1,
			Source:     source,
		})
	}
	return results
}

// formatContext assembles the prompt-ready context block from the final
// results, truncated to the configured character budget.
func (p *Pipeline) formatContext(ctx context.Context, results []models.RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range results {
		doc, err := p.store.Get(ctx, r.DocumentID)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", r.Rank, doc.ID, doc.Content)
	}
	return utils.Truncate(strings.TrimRight(b.String(), "\n"), p.cfg.Search.MaxContextChars)
}

// RebuildIndexes repopulates both indexes from the store. Documents without a
// persisted embedding are re-embedded. Used at startup when no snapshots are
// available and after restoring a database.
func (p *Pipeline) RebuildIndexes(ctx context.Context) error {
	docs, err := p.store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load documents: %w", err)
	}

	p.indexMu.Lock()
	defer p.indexMu.Unlock()
	for _, doc := range docs {
		vec := doc.Embedding
		if len(vec) == 0 {
			vec, err = p.embedder.Embed(ctx, doc.Content)
			if err != nil {
				return fmt.Errorf("failed to re-embed document %s: %w", doc.ID, err)
			}
			doc.Embedding = vec
			if _, err := p.store.Upsert(ctx, doc); err != nil {
				return fmt.Errorf("failed to persist embedding for %s: %w", doc.ID, err)
			}
		}
		p.lexical.Add(doc.ID, doc.Content)
		if err := p.vectors.Upsert(ctx, doc.ID, vec, doc.Metadata); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	p.logger.Info("indexes rebuilt", zap.Int("documents", len(docs)))
	return nil
}

// SaveSnapshots persists both indexes to their configured paths. Empty paths
// are skipped.
func (p *Pipeline) SaveSnapshots() error {
	p.indexMu.RLock()
	defer p.indexMu.RUnlock()
	if path := p.cfg.Storage.LexicalIndexPath; path != "" {
		if err := p.lexical.SaveFile(path); err != nil {
			return err
		}
	}
	if path := p.cfg.Storage.VectorIndexPath; path != "" {
		if err := p.vectors.Save(path); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshots restores both indexes from their configured paths. When either
// snapshot is missing or unreadable, both indexes are rebuilt from the store
// so they stay mutually consistent.
func (p *Pipeline) LoadSnapshots(ctx context.Context) error {
	lexPath := p.cfg.Storage.LexicalIndexPath
	vecPath := p.cfg.Storage.VectorIndexPath
	if lexPath == "" || vecPath == "" {
		return p.RebuildIndexes(ctx)
	}

	p.indexMu.Lock()
	lexErr := p.lexical.LoadFile(lexPath)
	vecErr := p.vectors.Load(vecPath)
	lexLen, vecLen := p.lexical.Len(), p.vectors.Size()
	p.indexMu.Unlock()

	n, err := p.store.Count(ctx)
	if err != nil {
		return err
	}
	if lexErr != nil || vecErr != nil || int64(lexLen) != n || int64(vecLen) != n {
		p.logger.Info("snapshots unusable, rebuilding indexes",
			zap.NamedError("lexical", lexErr), zap.NamedError("vector", vecErr),
			zap.Int("lexical_len", lexLen), zap.Int("vector_len", vecLen), zap.Int64("documents", n))
		return p.RebuildIndexes(ctx)
	}
	return nil
}

// Close releases all pipeline resources.
func (p *Pipeline) Close() error {
	var firstErr error
	if p.reranker != nil {
		if err := p.reranker.Close(); err != nil {
			firstErr = err
		}
	}
	if err := p.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
