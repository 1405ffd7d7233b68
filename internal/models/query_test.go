package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryRequestValidateDefaults(t *testing.T) {
	q := &QueryRequest{Query: "solar degradation"}
	require.NoError(t, q.Validate(10, 100))
	assert.Equal(t, 10, q.TopK)
	assert.Empty(t, q.FusionStrategy)
}

func TestQueryRequestValidateClampsToMax(t *testing.T) {
	q := &QueryRequest{Query: "x", TopK: 5000}
	require.NoError(t, q.Validate(10, 100))
	assert.Equal(t, 100, q.TopK)
}

func TestQueryRequestValidateRejectsNegativeTopK(t *testing.T) {
	q := &QueryRequest{Query: "x", TopK: -1}
	err := q.Validate(10, 100)
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestQueryRequestValidateRejectsAlphaOutOfRange(t *testing.T) {
	for _, alpha := range []float64{-0.1, 1.1, 2} {
		a := alpha
		q := &QueryRequest{Query: "x", Alpha: &a}
		assert.ErrorIs(t, q.Validate(10, 100), ErrInvalidAlpha, "alpha=%g", alpha)
	}
	a := 0.0
	q := &QueryRequest{Query: "x", Alpha: &a}
	assert.NoError(t, q.Validate(10, 100))
	a = 1.0
	assert.NoError(t, q.Validate(10, 100))
}

func TestQueryRequestValidateRejectsUnknownStrategy(t *testing.T) {
	q := &QueryRequest{Query: "x", FusionStrategy: "borda"}
	assert.ErrorIs(t, q.Validate(10, 100), ErrInvalidStrategy)

	q = &QueryRequest{Query: "x", FusionStrategy: FusionWeighted}
	assert.NoError(t, q.Validate(10, 100))
}

func TestQueryRequestEmptyQueryIsNotAnError(t *testing.T) {
	q := &QueryRequest{}
	assert.NoError(t, q.Validate(10, 100))
}
