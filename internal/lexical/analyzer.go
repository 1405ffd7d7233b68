// Package lexical provides the BM25 keyword index. Tokenization is delegated
// to Bleve's registered analyzers; scoring is done locally so the Okapi BM25
// parameters (k1, b, epsilon) stay configurable.
package lexical

import (
	"fmt"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"

	_ "github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/en"
)

// textAnalyzer is the subset of a Bleve analyzer we depend on.
type textAnalyzer interface {
	Analyze([]byte) analysis.TokenStream
}

// Analyzer turns raw text into normalized terms using a named Bleve analyzer.
// "en" applies lowercasing, English stopword removal, and stemming.
// "standard" applies lowercasing and stopword removal without stemming.
type Analyzer struct {
	name  string
	inner textAnalyzer
}

// NewAnalyzer resolves a registered Bleve analyzer by name.
func NewAnalyzer(name string) (*Analyzer, error) {
	cache := registry.NewCache()
	inner, err := cache.AnalyzerNamed(name)
	if err != nil {
		return nil, fmt.Errorf("unknown analyzer %q: %w", name, err)
	}
	return &Analyzer{name: name, inner: inner}, nil
}

// Name returns the registered analyzer name.
func (a *Analyzer) Name() string {
	return a.name
}

// Tokens analyzes text into its term stream. Stopwords are dropped, so the
// result may be empty for non-empty input.
func (a *Analyzer) Tokens(text string) []string {
	stream := a.inner.Analyze([]byte(text))
	terms := make([]string, 0, len(stream))
	for _, tok := range stream {
		terms = append(terms, string(tok.Term))
	}
	return terms
}
