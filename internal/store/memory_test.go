package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/lotus/pkg/models"
)

func sampleLibrary() []models.ReferenceIngredient {
	return []models.ReferenceIngredient{
		{ID: 3, Name: "Glycerin", RiskLevel: models.RiskLow, Embedding: []float32{0, 1}},
		{ID: 1, Name: "Fragrance", RiskLevel: models.RiskHigh, Embedding: []float32{1, 0}},
		{ID: 2, Name: "Methylparaben", RiskLevel: models.RiskMedium},
	}
}

func TestMemoryReferenceStore(t *testing.T) {
	s := NewMemoryReferenceStore(sampleLibrary()...)
	ctx := context.Background()

	var rs ReferenceStore = s
	_, isIndex := rs.(VectorIndex)
	assert.False(t, isIndex)

	t.Run("ListAll skips entries without embeddings", func(t *testing.T) {
		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, int64(1), all[0].ID)
	})

	t.Run("GetByID", func(t *testing.T) {
		ing, err := s.GetByID(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "Methylparaben", ing.Name)

		_, err = s.GetByID(ctx, 42)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("List with filter and paging", func(t *testing.T) {
		items, total, err := s.List(ctx, 10, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, "Fragrance", items[0].Name)
		assert.Nil(t, items[0].Embedding)

		high := models.RiskHigh
		items, total, err = s.List(ctx, 10, 0, &high)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, "Fragrance", items[0].Name)

		items, _, err = s.List(ctx, 10, 5, nil)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("SearchByName is case-insensitive", func(t *testing.T) {
		items, err := s.SearchByName(ctx, "PARABEN", 5)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int64(2), items[0].ID)
	})
}

func TestMemoryProfileStore(t *testing.T) {
	s := NewMemoryProfileStore()
	s.Set("u1", []string{"PCOS", "BV", "PCOS"})

	got, err := s.GetSensitivities(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"BV", "PCOS"}, got)

	got, err = s.GetSensitivities(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}
