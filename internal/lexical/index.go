package lexical

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Result is one scored document from the lexical index.
type Result struct {
	ID    string
	Score float64
}

// BM25Index is an in-memory inverted index scored with Okapi BM25:
//
//	IDF(t)  = ln((N - n_t + 0.5) / (n_t + 0.5) + 1)
//	score  += IDF(t) * tf * (k1 + 1) / (tf + k1 * (1 - b + b * dl/avgdl))
//
// IDF values below epsilon are floored to epsilon, so every matching term
// contributes a positive amount and scores stay non-negative.
type BM25Index struct {
	mu       sync.RWMutex
	analyzer *Analyzer
	k1       float64
	b        float64
	epsilon  float64

	postings map[string]map[string]int // term -> docID -> frequency
	docTerms map[string]map[string]int // docID -> term -> frequency, for removal
	docLens  map[string]int            // docID -> token count
	totalLen int
}

// NewBM25Index creates an empty index with the given analyzer and parameters.
func NewBM25Index(analyzer *Analyzer, k1, b, epsilon float64) *BM25Index {
	return &BM25Index{
		analyzer: analyzer,
		k1:       k1,
		b:        b,
		epsilon:  epsilon,
		postings: make(map[string]map[string]int),
		docTerms: make(map[string]map[string]int),
		docLens:  make(map[string]int),
	}
}

// Add indexes a document's content under its ID. Re-adding an existing ID
// replaces its previous postings.
func (idx *BM25Index) Add(id, content string) {
	tokens := idx.analyzer.Tokens(content)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
	idx.addTokensLocked(id, tokens)
}

// Remove deletes a document from the index. Returns false when the ID was not indexed.
func (idx *BM25Index) Remove(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.removeLocked(id)
}

// Len returns the number of indexed documents.
func (idx *BM25Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docLens)
}

// Retrieve scores all documents against the query and returns at most limit
// results, sorted by descending score with ties broken by ascending ID.
// An empty or stopword-only query yields an empty result, not an error.
func (idx *BM25Index) Retrieve(query string, limit int) []Result {
	tokens := idx.analyzer.Tokens(query)
	if len(tokens) == 0 || limit <= 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docLens)
	if n == 0 {
		return nil
	}
	avgdl := float64(idx.totalLen) / float64(n)

	// Only documents on a matching posting list are touched, so query cost
	// scales with posting-list sizes rather than corpus size.
	scores := make(map[string]float64)
	for _, term := range tokens {
		list := idx.postings[term]
		df := len(list)
		if df == 0 {
			continue
		}
		idf := math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)
		if idf < idx.epsilon {
			idf = idx.epsilon
		}
		for id, freq := range list {
			tf := float64(freq)
			dl := float64(idx.docLens[id])
			norm := tf + idx.k1*(1-idx.b+idx.b*dl/avgdl)
			scores[id] += idf * tf * (idx.k1 + 1) / norm
		}
	}

	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		results = append(results, Result{ID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (idx *BM25Index) addTokensLocked(id string, tokens []string) {
	freqs := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freqs[t]++
	}
	for t, c := range freqs {
		list := idx.postings[t]
		if list == nil {
			list = make(map[string]int)
			idx.postings[t] = list
		}
		list[id] = c
	}
	idx.docTerms[id] = freqs
	idx.docLens[id] = len(tokens)
	idx.totalLen += len(tokens)
}

func (idx *BM25Index) removeLocked(id string) bool {
	freqs, ok := idx.docTerms[id]
	if !ok {
		return false
	}
	for t := range freqs {
		list := idx.postings[t]
		delete(list, id)
		if len(list) == 0 {
			delete(idx.postings, t)
		}
	}
	idx.totalLen -= idx.docLens[id]
	delete(idx.docTerms, id)
	delete(idx.docLens, id)
	return true
}

type bm25Snapshot struct {
	Analyzer string                    `json:"analyzer"`
	Docs     map[string]map[string]int `json:"docs"`
	DocLens  map[string]int            `json:"doc_lens"`
}

// SaveFile writes the index postings to path as JSON.
func (idx *BM25Index) SaveFile(path string) error {
	idx.mu.RLock()
	snap := bm25Snapshot{
		Analyzer: idx.analyzer.Name(),
		Docs:     idx.docTerms,
		DocLens:  idx.docLens,
	}
	data, err := json.Marshal(snap)
	idx.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to serialize lexical index: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write lexical index: %w", err)
	}
	return nil
}

// LoadFile replaces the index contents with a snapshot previously written by
// SaveFile. Fails if the snapshot was built with a different analyzer, since
// its terms would not line up with freshly analyzed queries.
func (idx *BM25Index) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read lexical index: %w", err)
	}
	var snap bm25Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse lexical index: %w", err)
	}
	if snap.Analyzer != idx.analyzer.Name() {
		return fmt.Errorf("lexical index was built with analyzer %q, configured analyzer is %q", snap.Analyzer, idx.analyzer.Name())
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.postings = make(map[string]map[string]int)
	idx.docTerms = make(map[string]map[string]int, len(snap.Docs))
	idx.docLens = make(map[string]int, len(snap.Docs))
	idx.totalLen = 0
	for id, freqs := range snap.Docs {
		idx.docTerms[id] = freqs
		for t, c := range freqs {
			list := idx.postings[t]
			if list == nil {
				list = make(map[string]int)
				idx.postings[t] = list
			}
			list[id] = c
		}
		dl := snap.DocLens[id]
		idx.docLens[id] = dl
		idx.totalLen += dl
	}
	return nil
}
