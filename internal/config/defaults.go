package config

// Default values applied when the config file leaves fields unset.
const (
	DefaultK1      = 1.5
	DefaultB       = 0.75
	DefaultEpsilon = 0.25

	DefaultFusionStrategy = "rrf"
	DefaultAlpha          = 0.5
	DefaultRRFK           = 60.0

	DefaultHypotheses   = 1
	DefaultRerankWindow = 30
)

// ApplyDefaults fills unset fields with documented defaults. Fields where
// zero is a valid setting are pointers so an explicit zero is preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.BM25.K1 == 0 {
		cfg.BM25.K1 = DefaultK1
	}
	if cfg.BM25.B == nil {
		b := DefaultB
		cfg.BM25.B = &b
	}
	if cfg.BM25.Epsilon == 0 {
		cfg.BM25.Epsilon = DefaultEpsilon
	}
	if cfg.BM25.Analyzer == "" {
		cfg.BM25.Analyzer = "en"
	}
	if cfg.Fusion.Strategy == "" {
		cfg.Fusion.Strategy = DefaultFusionStrategy
	}
	if cfg.Fusion.Alpha == nil {
		a := DefaultAlpha
		cfg.Fusion.Alpha = &a
	}
	if cfg.Fusion.K == 0 {
		cfg.Fusion.K = DefaultRRFK
	}
	if cfg.Hyde.Hypotheses == 0 {
		cfg.Hyde.Hypotheses = DefaultHypotheses
	}
	if cfg.Hyde.TimeoutSeconds == 0 {
		cfg.Hyde.TimeoutSeconds = 20
	}
	if cfg.Hyde.MaxRetries == 0 {
		cfg.Hyde.MaxRetries = 2
	}
	if cfg.Rerank.Mode == "" {
		cfg.Rerank.Mode = "remote"
	}
	if cfg.Rerank.MaxTokens == 0 {
		cfg.Rerank.MaxTokens = 256
	}
	if cfg.Rerank.TimeoutSeconds == 0 {
		cfg.Rerank.TimeoutSeconds = 10
	}
	if cfg.Rerank.MaxRetries == 0 {
		cfg.Rerank.MaxRetries = 2
	}
	if cfg.Rerank.Window == 0 {
		cfg.Rerank.Window = DefaultRerankWindow
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 10
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.TopKCandidates == 0 {
		cfg.Search.TopKCandidates = 50
	}
	if cfg.Search.RetrieverTimeoutSeconds == 0 {
		cfg.Search.RetrieverTimeoutSeconds = 10
	}
	if cfg.Search.MaxContextChars == 0 {
		cfg.Search.MaxContextChars = 8000
	}
}
