package mock

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbedder_Deterministic(t *testing.T) {
	e := New()
	a, err := e.Embed(context.Background(), "watch the project")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "watch the project")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, e.Dimensions())
}

func TestEmbedder_Normalized(t *testing.T) {
	e := NewWithDimensions(64)
	for _, text := range []string{"", "one", "several different words here"} {
		v, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, math.Sqrt(cosine(v, v)), 1e-5, "text %q", text)
	}
}

func TestEmbedder_SharedTokensAreSimilar(t *testing.T) {
	e := New()
	ctx := context.Background()
	query, _ := e.Embed(ctx, "database connection")
	related, _ := e.Embed(ctx, "the Database connection pool")
	unrelated, _ := e.Embed(ctx, "render button click")

	assert.Greater(t, cosine(query, related), 0.3)
	assert.Greater(t, cosine(query, related), cosine(query, unrelated))
}
