package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/lexical"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/pipeline"
	"github.com/hyperjump/kensaku/internal/rerank"
	"github.com/hyperjump/kensaku/internal/store"
	"github.com/hyperjump/kensaku/internal/vector"
)

const dims = 16

func buildPipeline(t *testing.T, cfg *config.Config, opts ...pipeline.Option) *pipeline.Pipeline {
	t.Helper()

	docs, err := store.NewSQLiteStore(cfg.Storage.DatabasePath)
	require.NoError(t, err)

	analyzer, err := lexical.NewAnalyzer(cfg.BM25.Analyzer)
	require.NoError(t, err)
	lex := lexical.NewBM25Index(analyzer, cfg.BM25.K1, *cfg.BM25.B, cfg.BM25.Epsilon)

	vectors, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	require.NoError(t, err)

	emb := embedding.NewCachedEmbedder(embedding.NewMockEmbedder(cfg.Embedding.Dimensions), cfg.Embedding.CacheSize)

	opts = append(opts, pipeline.WithLogger(zap.NewNop()))
	p := pipeline.New(cfg, docs, lex, vectors, emb, opts...)
	require.NoError(t, p.LoadSnapshots(context.Background()))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Embedding.Dimensions = dims
	cfg.Storage.DatabasePath = filepath.Join(dir, "kensaku.db")
	cfg.Storage.LexicalIndexPath = filepath.Join(dir, "lexical.json")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "vectors.bin")
	return cfg
}

func TestFullRetrievalFlow(t *testing.T) {
	cfg := testConfig(t)
	p := buildPipeline(t, cfg)
	ctx := context.Background()

	corpus := map[string]string{
		"solar-1":  "Solar panel output degrades slowly as cells age in the field.",
		"solar-2":  "Installing solar panels on a flat roof requires ballast mounts.",
		"wind-1":   "Offshore wind turbines face heavy corrosion from salt water.",
		"grid-1":   "Grid operators balance supply and demand on a minute basis.",
		"solar-3":  "Panel inverters convert direct current into alternating current.",
		"hydro-1":  "Pumped hydro storage absorbs excess renewable generation.",
	}
	for id, content := range corpus {
		_, err := p.Ingest(ctx, models.DocumentInput{ID: id, Content: content, Metadata: map[string]string{"topic": topicOf(id)}})
		require.NoError(t, err)
	}

	// Lexical-dominated query: alpha=0 with weighted fusion scores purely from
	// BM25, where stemming matches "degradation" against "degrades".
	zero := 0.0
	out, err := p.Query(ctx, models.QueryRequest{
		Query:          "solar panel degradation",
		TopK:           3,
		FusionStrategy: models.FusionWeighted,
		Alpha:          &zero,
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	assert.Equal(t, "solar-1", out.Results[0].DocumentID)
	for i, r := range out.Results {
		assert.Equal(t, i+1, r.Rank)
	}
	assert.NotEmpty(t, out.FormattedContext)

	// Default RRF still surfaces the best lexical match near the top.
	rrf, err := p.Query(ctx, models.QueryRequest{Query: "solar panel degradation", TopK: 3})
	require.NoError(t, err)
	ids := make([]string, 0, len(rrf.Results))
	for _, r := range rrf.Results {
		ids = append(ids, r.DocumentID)
	}
	assert.Contains(t, ids, "solar-1")

	// Metadata filter restricts both retriever legs.
	filtered, err := p.Query(ctx, models.QueryRequest{
		Query:   "renewable generation storage",
		Filters: map[string][]string{"topic": {"hydro"}},
	})
	require.NoError(t, err)
	for _, r := range filtered.Results {
		assert.Equal(t, "hydro-1", r.DocumentID)
	}
}

func topicOf(id string) string {
	switch id[0] {
	case 's':
		return "solar"
	case 'w':
		return "wind"
	case 'h':
		return "hydro"
	default:
		return "grid"
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	p := buildPipeline(t, cfg)
	_, err := p.Ingest(ctx, models.DocumentInput{ID: "a", Content: "durable document about batteries"})
	require.NoError(t, err)
	_, err = p.Ingest(ctx, models.DocumentInput{ID: "b", Content: "second durable document about inverters"})
	require.NoError(t, err)
	require.NoError(t, p.SaveSnapshots())
	require.NoError(t, p.Close())

	// Same paths, fresh process.
	restarted := buildPipeline(t, cfg)
	status, err := restarted.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Documents)
	assert.Equal(t, 2, status.Lexical)
	assert.Equal(t, 2, status.Vectors)

	out, err := restarted.Query(ctx, models.QueryRequest{Query: "batteries"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "a", out.Results[0].DocumentID)
}

func TestRestartWithoutSnapshotsRebuilds(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	p := buildPipeline(t, cfg)
	_, err := p.Ingest(ctx, models.DocumentInput{ID: "a", Content: "rebuildable document text"})
	require.NoError(t, err)
	// No SaveSnapshots call: the restart must rebuild from SQLite.
	require.NoError(t, p.Close())

	restarted := buildPipeline(t, cfg)
	out, err := restarted.Query(ctx, models.QueryRequest{Query: "rebuildable document text"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "a", out.Results[0].DocumentID)
}

func TestRemoteRerankerEndToEnd(t *testing.T) {
	// A scoring service that prefers shorter documents.
	scoring := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string   `json:"query"`
			Documents []string `json:"documents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		scores := make([]float64, len(req.Documents))
		for i, d := range req.Documents {
			scores[i] = 1.0 / float64(1+len(d))
		}
		_ = json.NewEncoder(w).Encode(map[string][]float64{"scores": scores})
	}))
	defer scoring.Close()

	rr, err := rerank.NewRemoteReranker(rerank.RemoteConfig{Endpoint: scoring.URL, MaxRetries: 1}, zap.NewNop())
	require.NoError(t, err)

	cfg := testConfig(t)
	p := buildPipeline(t, cfg, pipeline.WithReranker(rr))
	ctx := context.Background()

	_, err = p.Ingest(ctx, models.DocumentInput{ID: "long", Content: "ranking subject with considerably more words attached to it"})
	require.NoError(t, err)
	_, err = p.Ingest(ctx, models.DocumentInput{ID: "short", Content: "ranking subject"})
	require.NoError(t, err)

	out, err := p.Query(ctx, models.QueryRequest{Query: "ranking subject", UseRerank: true})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "short", out.Results[0].DocumentID)
	assert.Equal(t, models.SourceReranked, out.Results[0].Source)
}
