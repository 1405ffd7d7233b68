// Package main is the Kensaku CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/hyde"
	"github.com/hyperjump/kensaku/internal/lexical"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/pipeline"
	"github.com/hyperjump/kensaku/internal/rerank"
	"github.com/hyperjump/kensaku/internal/server"
	"github.com/hyperjump/kensaku/internal/store"
	"github.com/hyperjump/kensaku/internal/vector"
	"github.com/hyperjump/kensaku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used instead.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kensaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Usage: kensaku <command> [flags]

Commands:
  server    start the HTTP API server
  ingest    add or replace a document
  query     run a retrieval query
  delete    remove a document by ID
  status    show corpus and index sizes
  version   print version
  help      print this help
`)
}

// components holds everything a running pipeline needs, for teardown in one place.
type components struct {
	Pipeline *pipeline.Pipeline
}

func (c *components) Close() {
	if c.Pipeline != nil {
		_ = c.Pipeline.Close()
	}
}

// initializeComponents builds the pipeline from config: document store, both
// indexes, embedder, and the optional expansion and reranking stages.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	var docs store.DocumentStore
	if cfg.Storage.DatabasePath != "" {
		sqlite, err := store.NewSQLiteStore(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open document store: %w", err)
		}
		docs = sqlite
	} else {
		logger.Warn("no database_path configured, documents will not be persisted")
		docs = store.NewMemoryStore()
	}

	analyzer, err := lexical.NewAnalyzer(cfg.BM25.Analyzer)
	if err != nil {
		_ = docs.Close()
		return nil, err
	}
	lex := lexical.NewBM25Index(analyzer, cfg.BM25.K1, *cfg.BM25.B, cfg.BM25.Epsilon)

	vectors, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		_ = docs.Close()
		return nil, err
	}

	var embedder embedding.Embedder
	if cfg.Embedding.BaseURL != "" {
		embedder, err = embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			APIKey:     cfg.Embedding.APIKey,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
			MaxRetries: cfg.Embedding.MaxRetries,
		}, logger)
		if err != nil {
			_ = docs.Close()
			return nil, err
		}
	} else {
		logger.Warn("no embedding base_url configured, using deterministic mock embedder")
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}
	cached := embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Hyde.Enabled {
		expander, err := hyde.NewExpander(hyde.Config{
			BaseURL:    cfg.Hyde.BaseURL,
			Model:      cfg.Hyde.Model,
			APIKey:     cfg.Hyde.APIKey,
			Hypotheses: cfg.Hyde.Hypotheses,
			Timeout:    time.Duration(cfg.Hyde.TimeoutSeconds) * time.Second,
			MaxRetries: cfg.Hyde.MaxRetries,
		}, logger)
		if err != nil {
			_ = docs.Close()
			return nil, err
		}
		opts = append(opts, pipeline.WithExpander(expander))
	}
	if cfg.Rerank.Enabled {
		var reranker rerank.Reranker
		switch cfg.Rerank.Mode {
		case "local":
			reranker, err = rerank.NewLocalReranker(cfg.Rerank.ModelPath, cfg.Rerank.MaxTokens)
		default:
			reranker, err = rerank.NewRemoteReranker(rerank.RemoteConfig{
				Endpoint:   cfg.Rerank.Endpoint,
				APIKey:     cfg.Rerank.APIKey,
				Timeout:    time.Duration(cfg.Rerank.TimeoutSeconds) * time.Second,
				MaxRetries: cfg.Rerank.MaxRetries,
			}, logger)
		}
		if err != nil {
			_ = docs.Close()
			return nil, err
		}
		opts = append(opts, pipeline.WithReranker(reranker))
	}

	p := pipeline.New(cfg, docs, lex, vectors, cached, opts...)
	if err := p.LoadSnapshots(context.Background()); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to load indexes: %w", err)
	}
	return &components{Pipeline: p}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	srv := server.NewServer(comps.Pipeline, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if err := comps.Pipeline.SaveSnapshots(); err != nil {
		logger.Warn("index snapshot save failed", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	id := fs.String("id", "", "document ID (generated when empty)")
	file := fs.String("file", "", "read content from file instead of arguments")
	meta := fs.String("meta", "", "metadata as comma-separated key=value pairs")
	_ = fs.Parse(os.Args[2:])

	content := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read file: %v\n", err)
			os.Exit(1)
		}
		content = string(data)
	}
	if content == "" {
		fmt.Fprintln(os.Stderr, "Usage: kensaku ingest [flags] <content> (or -file <path>)")
		os.Exit(1)
	}

	input := models.DocumentInput{ID: *id, Content: content, Metadata: parseMeta(*meta)}
	var created map[string]string
	if err := postViaHTTP(*serverURL+"/api/v1/documents", input, &created); err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("indexed %s\n", created["id"])
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	topK := fs.Int("top-k", 0, "number of results (0 = server default)")
	useHyde := fs.Bool("hyde", false, "expand the query with hypothetical documents")
	useRerank := fs.Bool("rerank", false, "rerank the fused candidates")
	strategy := fs.String("strategy", "", "fusion strategy: rrf or weighted (empty = server default)")
	alpha := fs.Float64("alpha", -1, "dense weight in [0,1] (negative = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	queryStr := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if queryStr == "" {
		fmt.Fprintln(os.Stderr, "Usage: kensaku query [flags] <query>")
		os.Exit(1)
	}

	req := models.QueryRequest{
		Query:          queryStr,
		TopK:           *topK,
		UseHyde:        *useHyde,
		UseRerank:      *useRerank,
		FusionStrategy: *strategy,
	}
	if *alpha >= 0 {
		req.Alpha = alpha
	}

	var out models.RAGContext
	if err := postViaHTTP(*serverURL+"/api/v1/query", req, &out); err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}
	if len(out.Results) == 0 {
		fmt.Println("no results")
		return
	}
	for _, r := range out.Results {
		fmt.Printf("%2d. %-36s  %.6f  (%s)\n", r.Rank, r.DocumentID, r.Score, r.Source)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kensaku delete [flags] <id>")
		os.Exit(1)
	}
	id := fs.Arg(0)

	req, err := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/documents/"+id, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		fmt.Printf("deleted %s\n", id)
	case http.StatusNotFound:
		fmt.Printf("not found: %s\n", id)
	default:
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Delete failed: server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Status failed: server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status pipeline.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(status)
		return
	}
	fmt.Printf("documents:     %d\n", status.Documents)
	fmt.Printf("lexical index: %d\n", status.Lexical)
	fmt.Printf("vector index:  %d\n", status.Vectors)
}

// parseMeta parses "key=value,key2=value2" into a metadata map.
func parseMeta(s string) map[string]string {
	if s == "" {
		return nil
	}
	meta := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			continue
		}
		meta[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func postViaHTTP(url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
