package ml

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func TestLocalEmbedder(t *testing.T) {
	embedder := NewLocalEmbedder(256)
	ctx := context.Background()

	t.Run("Deterministic", func(t *testing.T) {
		a, err := embedder.Embed(ctx, "Sodium Lauryl Sulfate")
		require.NoError(t, err)
		b, err := embedder.Embed(ctx, "Sodium Lauryl Sulfate")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 256)
	})

	t.Run("UnitLength", func(t *testing.T) {
		v, err := embedder.Embed(ctx, "Fragrance")
		require.NoError(t, err)
		assert.InDelta(t, 1.0, floats.Norm(toFloat64(v), 2), 1e-5)
	})

	t.Run("LexicalNeighboursAreCloser", func(t *testing.T) {
		query, _ := embedder.Embed(ctx, "Fragrance")
		near, _ := embedder.Embed(ctx, "Fragrance (Parfum)")
		far, _ := embedder.Embed(ctx, "Glycerin")

		nearSim := floats.Dot(toFloat64(query), toFloat64(near))
		farSim := floats.Dot(toFloat64(query), toFloat64(far))
		assert.Greater(t, nearSim, farSim)
	})

	t.Run("EmptyTextRejected", func(t *testing.T) {
		_, err := embedder.Embed(ctx, "   ")
		assert.Error(t, err)
	})

	t.Run("BatchKeepsOrder", func(t *testing.T) {
		texts := []string{"Parabens", "Talc", "Aloe Vera"}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		for i, text := range texts {
			single, _ := embedder.Embed(ctx, text)
			assert.Equal(t, single, vectors[i])
		}
	})
}
