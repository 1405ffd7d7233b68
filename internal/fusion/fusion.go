// Package fusion merges the lexical and dense retrieval lists into a single
// ranking, either by reciprocal rank fusion or by weighted score fusion.
package fusion

import "sort"

// Entry is one ranked hit from a single retriever, in rank order.
type Entry struct {
	ID    string
	Score float64
}

// Fused is a merged hit. Ranks are 1-based positions in the source lists;
// zero means the document was absent from that list.
type Fused struct {
	ID           string
	Score        float64
	DenseScore   float64
	LexicalScore float64
	DenseRank    int
	LexicalRank  int
}

// ReciprocalRankFusion merges two ranked lists by rank position:
//
//	score(d) = alpha/(k + denseRank(d)) + (1-alpha)/(k + lexicalRank(d))
//
// A document absent from a list contributes nothing for that list. k smooths
// the difference between neighboring ranks; 60 is the conventional value.
// The result covers the union of both lists, sorted by descending fused score
// with ties broken by ascending ID.
func ReciprocalRankFusion(dense, lexical []Entry, alpha, k float64) []Fused {
	merged := collect(dense, lexical)
	for _, f := range merged {
		if f.DenseRank > 0 {
			f.Score += alpha / (k + float64(f.DenseRank))
		}
		if f.LexicalRank > 0 {
			f.Score += (1 - alpha) / (k + float64(f.LexicalRank))
		}
	}
	return finalize(merged)
}

// WeightedScoreFusion merges two ranked lists by raw score. Each list's scores
// are min-max normalized to [0,1] so BM25 and cosine magnitudes become
// comparable, then combined as alpha*dense + (1-alpha)*lexical. With alpha=1
// the dense ordering is reproduced exactly; with alpha=0, the lexical one.
func WeightedScoreFusion(dense, lexical []Entry, alpha float64) []Fused {
	merged := collect(dense, lexical)
	denseNorm := normalizer(dense)
	lexNorm := normalizer(lexical)
	for _, f := range merged {
		if f.DenseRank > 0 {
			f.Score += alpha * denseNorm(f.DenseScore)
		}
		if f.LexicalRank > 0 {
			f.Score += (1 - alpha) * lexNorm(f.LexicalScore)
		}
	}
	return finalize(merged)
}

func collect(dense, lexical []Entry) map[string]*Fused {
	merged := make(map[string]*Fused, len(dense)+len(lexical))
	for i, e := range dense {
		merged[e.ID] = &Fused{ID: e.ID, DenseScore: e.Score, DenseRank: i + 1}
	}
	for i, e := range lexical {
		f, ok := merged[e.ID]
		if !ok {
			f = &Fused{ID: e.ID}
			merged[e.ID] = f
		}
		f.LexicalScore = e.Score
		f.LexicalRank = i + 1
	}
	return merged
}

// normalizer returns a min-max normalization over the list's scores. When all
// scores are equal every present document maps to 1, preserving rank parity.
func normalizer(list []Entry) func(float64) float64 {
	if len(list) == 0 {
		return func(float64) float64 { return 0 }
	}
	min, max := list[0].Score, list[0].Score
	for _, e := range list[1:] {
		if e.Score < min {
			min = e.Score
		}
		if e.Score > max {
			max = e.Score
		}
	}
	if max == min {
		return func(float64) float64 { return 1 }
	}
	span := max - min
	return func(s float64) float64 { return (s - min) / span }
}

func finalize(merged map[string]*Fused) []Fused {
	out := make([]Fused, 0, len(merged))
	for _, f := range merged {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
