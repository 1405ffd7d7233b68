// Package config provides configuration loading and structs for the Kensaku engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine and its HTTP server.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	BM25      BM25Config      `yaml:"bm25"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Hyde      HydeConfig      `yaml:"hyde"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the document database and index snapshots.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	LexicalIndexPath string `yaml:"lexical_index_path"`
	VectorIndexPath  string `yaml:"vector_index_path"`
}

// EmbeddingConfig holds embedding provider settings. When BaseURL is empty the
// engine falls back to a deterministic mock embedder (useful for development).
type EmbeddingConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	Dimensions     int    `yaml:"dimensions"`
	CacheSize      int    `yaml:"cache_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// BM25Config holds Okapi BM25 parameters and the tokenization policy.
// Analyzer names a registered Bleve analyzer: "en" (lowercase + English
// stopwords + stemming, the default) or "standard" (lowercase + stopwords only).
// B is a pointer because 0 (no length normalization) is a valid setting that
// must survive default application.
type BM25Config struct {
	K1       float64  `yaml:"k1"`
	B        *float64 `yaml:"b"`
	Epsilon  float64  `yaml:"epsilon"`
	Analyzer string   `yaml:"analyzer"`
}

// FusionConfig holds rank-fusion defaults. Alpha weights the dense list and is
// a pointer because 0 (lexical-only) is a valid setting; K is the RRF
// smoothing constant.
type FusionConfig struct {
	Strategy string   `yaml:"strategy"`
	Alpha    *float64 `yaml:"alpha"`
	K        float64  `yaml:"k"`
}

// HydeConfig holds hypothetical-document expansion settings.
type HydeConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Hypotheses     int    `yaml:"hypotheses"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// RerankConfig holds reranker settings. Mode selects the implementation:
// "remote" (HTTP scoring service at Endpoint) or "local" (ONNX cross-encoder
// at ModelPath, requires CGO).
type RerankConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Mode           string `yaml:"mode"`
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	ModelPath      string `yaml:"model_path"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	Window         int    `yaml:"window"`
}

// SearchConfig holds pipeline-level query settings.
type SearchConfig struct {
	DefaultTopK             int `yaml:"default_top_k"`
	MaxTopK                 int `yaml:"max_top_k"`
	TopKCandidates          int `yaml:"top_k_candidates"`
	RetrieverTimeoutSeconds int `yaml:"retriever_timeout_seconds"`
	MaxContextChars         int `yaml:"max_context_chars"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.LexicalIndexPath = expandPath(cfg.Storage.LexicalIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Rerank.ModelPath = expandPath(cfg.Rerank.ModelPath, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
