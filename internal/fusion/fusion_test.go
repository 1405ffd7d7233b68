package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRRFBothListsOutranksSingleList(t *testing.T) {
	dense := []Entry{{ID: "both", Score: 0.9}, {ID: "dense-only", Score: 0.8}}
	lexical := []Entry{{ID: "both", Score: 5.0}, {ID: "lex-only", Score: 4.0}}

	fused := ReciprocalRankFusion(dense, lexical, 0.5, 60)
	require.Len(t, fused, 3)
	assert.Equal(t, "both", fused[0].ID)

	// both: 0.5/61 + 0.5/61; single-list docs: 0.5/62 each.
	assert.InDelta(t, 0.5/61+0.5/61, fused[0].Score, 1e-12)
	assert.InDelta(t, 0.5/62, fused[1].Score, 1e-12)
}

func TestRRFAlphaSkew(t *testing.T) {
	dense := []Entry{{ID: "d", Score: 0.9}}
	lexical := []Entry{{ID: "l", Score: 5.0}}

	denseHeavy := ReciprocalRankFusion(dense, lexical, 0.9, 60)
	require.Len(t, denseHeavy, 2)
	assert.Equal(t, "d", denseHeavy[0].ID)

	lexHeavy := ReciprocalRankFusion(dense, lexical, 0.1, 60)
	assert.Equal(t, "l", lexHeavy[0].ID)
}

func TestRRFTieBreakAscendingID(t *testing.T) {
	dense := []Entry{{ID: "z", Score: 0.9}}
	lexical := []Entry{{ID: "a", Score: 5.0}}

	fused := ReciprocalRankFusion(dense, lexical, 0.5, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ID)
	assert.Equal(t, "z", fused[1].ID)
}

func TestRRFEmptyLists(t *testing.T) {
	assert.Empty(t, ReciprocalRankFusion(nil, nil, 0.5, 60))

	fused := ReciprocalRankFusion([]Entry{{ID: "a", Score: 1}}, nil, 0.5, 60)
	require.Len(t, fused, 1)
	assert.Equal(t, "a", fused[0].ID)
	assert.InDelta(t, 0.5/61, fused[0].Score, 1e-12)
}

func TestRRFRecordsSourceRanks(t *testing.T) {
	dense := []Entry{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}}
	lexical := []Entry{{ID: "b", Score: 3.0}}

	fused := ReciprocalRankFusion(dense, lexical, 0.5, 60)
	byID := make(map[string]Fused)
	for _, f := range fused {
		byID[f.ID] = f
	}
	assert.Equal(t, 1, byID["a"].DenseRank)
	assert.Equal(t, 0, byID["a"].LexicalRank)
	assert.Equal(t, 2, byID["b"].DenseRank)
	assert.Equal(t, 1, byID["b"].LexicalRank)
}

func TestWeightedAlphaOneReproducesDense(t *testing.T) {
	dense := []Entry{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.5}, {ID: "c", Score: 0.1}}
	lexical := []Entry{{ID: "c", Score: 9.0}, {ID: "b", Score: 1.0}}

	fused := WeightedScoreFusion(dense, lexical, 1.0)
	require.Len(t, fused, 3)
	assert.Equal(t, "a", fused[0].ID)
	assert.Equal(t, "b", fused[1].ID)
	assert.Equal(t, "c", fused[2].ID)
}

func TestWeightedAlphaZeroReproducesLexical(t *testing.T) {
	dense := []Entry{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.5}}
	lexical := []Entry{{ID: "b", Score: 9.0}, {ID: "a", Score: 1.0}}

	fused := WeightedScoreFusion(dense, lexical, 0.0)
	require.Len(t, fused, 2)
	assert.Equal(t, "b", fused[0].ID)
	assert.Equal(t, "a", fused[1].ID)
}

func TestWeightedNormalizesScales(t *testing.T) {
	// BM25 scores are much larger than cosine scores; normalization makes
	// top-of-list equal footing regardless of magnitude.
	dense := []Entry{{ID: "d", Score: 0.9}, {ID: "x", Score: 0.1}}
	lexical := []Entry{{ID: "l", Score: 90.0}, {ID: "x", Score: 10.0}}

	fused := WeightedScoreFusion(dense, lexical, 0.5)
	byID := make(map[string]Fused)
	for _, f := range fused {
		byID[f.ID] = f
	}
	assert.InDelta(t, 0.5, byID["d"].Score, 1e-12)
	assert.InDelta(t, 0.5, byID["l"].Score, 1e-12)
	assert.InDelta(t, 0.0, byID["x"].Score, 1e-12)
}

func TestWeightedConstantScores(t *testing.T) {
	dense := []Entry{{ID: "b", Score: 0.5}, {ID: "a", Score: 0.5}}

	fused := WeightedScoreFusion(dense, nil, 1.0)
	require.Len(t, fused, 2)
	// Equal scores normalize to 1 and tie-break ascending by ID.
	assert.Equal(t, "a", fused[0].ID)
	assert.Equal(t, "b", fused[1].ID)
	assert.InDelta(t, 1.0, fused[0].Score, 1e-12)
}
