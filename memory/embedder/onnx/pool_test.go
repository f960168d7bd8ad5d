package onnx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_AlreadyPooled(t *testing.T) {
	vec, err := pool([]float32{3, 4}, []int64{1, 2}, nil, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
}

func TestPool_MeanOverAttendedTokens(t *testing.T) {
	// Three positions of two dims; the padded third row must not count.
	data := []float32{
		1, 0,
		0, 1,
		100, 100,
	}
	vec, err := pool(data, []int64{1, 3, 2}, []int64{1, 1, 0}, 2)
	require.NoError(t, err)

	want := float32(1 / math.Sqrt2)
	assert.InDelta(t, want, vec[0], 1e-6)
	assert.InDelta(t, want, vec[1], 1e-6)
}

func TestPool_ShapeErrors(t *testing.T) {
	_, err := pool(make([]float32, 4), []int64{2, 1, 2}, []int64{1}, 2)
	assert.Error(t, err)

	_, err = pool(make([]float32, 6), []int64{1, 3, 3}, []int64{1, 1, 1}, 2)
	assert.Error(t, err)

	_, err = pool(make([]float32, 2), []int64{2}, nil, 2)
	assert.Error(t, err)

	_, err = pool(make([]float32, 1), []int64{1, 2}, nil, 2)
	assert.Error(t, err)
}
