package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/lotus/internal/store"
	"github.com/temcen/lotus/pkg/models"
)

func matchIDs(matches []models.SimilarityMatch) []int64 {
	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.Reference.ID
	}
	return ids
}

func TestSimilaritySearch_BruteForceRanking(t *testing.T) {
	refs := store.NewMemoryReferenceStore(testLibrary()...)
	engine := newTestSearch(t, newFakeEmbedder(), refs)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		limit int
		want  []int64
	}{
		{name: "exact match first", query: "Fragrance", limit: 5, want: []int64{1, 2}},
		{name: "weak neighbours above threshold", query: "Glycerin", limit: 5, want: []int64{3, 2}},
		{name: "below threshold dropped", query: "Paraben", limit: 5, want: []int64{4}},
		{name: "no neighbours", query: "Water", limit: 5, want: []int64{}},
		{name: "limit respected", query: "Fragrance", limit: 1, want: []int64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := engine.Search(ctx, tt.query, tt.limit, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, matchIDs(matches))
			for i, m := range matches {
				assert.GreaterOrEqual(t, m.Similarity, 0.1)
				assert.LessOrEqual(t, m.Similarity, 1.0)
				assert.Nil(t, m.Reference.Embedding)
				if i > 0 {
					assert.GreaterOrEqual(t, matches[i-1].Similarity, m.Similarity)
				}
			}
		})
	}
}

func TestSimilaritySearch_RiskLevelFilter(t *testing.T) {
	refs := store.NewMemoryReferenceStore(testLibrary()...)
	engine := newTestSearch(t, newFakeEmbedder(), refs)
	ctx := context.Background()

	high := models.RiskHigh
	matches, err := engine.Search(ctx, "Fragrance", 5, &high)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, matchIDs(matches))

	low := models.RiskLow
	matches, err = engine.Search(ctx, "Fragrance", 5, &low)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSimilaritySearch_CachedResultsSkipEmbedding(t *testing.T) {
	client := newFakeEmbedder()
	refs := &countingStore{MemoryReferenceStore: store.NewMemoryReferenceStore(testLibrary()...)}
	engine := newTestSearch(t, client, refs)
	ctx := context.Background()

	first, err := engine.Search(ctx, "Fragrance", 3, nil)
	require.NoError(t, err)
	second, err := engine.Search(ctx, "Fragrance", 3, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	embedCalls, _ := client.calls()
	assert.Equal(t, 1, embedCalls)
	assert.Equal(t, 1, refs.scans)

	// A different limit is a different search but reuses the embedding.
	_, err = engine.Search(ctx, "Fragrance", 2, nil)
	require.NoError(t, err)
	embedCalls, _ = client.calls()
	assert.Equal(t, 1, embedCalls)
	assert.Equal(t, 2, refs.scans)
}

func TestSimilaritySearch_EmptyResultIsCached(t *testing.T) {
	refs := &countingStore{MemoryReferenceStore: store.NewMemoryReferenceStore(testLibrary()...)}
	engine := newTestSearch(t, newFakeEmbedder(), refs)

	for i := 0; i < 3; i++ {
		matches, err := engine.Search(context.Background(), "Water", 5, nil)
		require.NoError(t, err)
		assert.NotNil(t, matches)
		assert.Empty(t, matches)
	}
	assert.Equal(t, 1, refs.scans)
}

func TestSimilaritySearch_ErrorsAreNotCached(t *testing.T) {
	client := newFakeEmbedder()
	client.fail["Fragrance"] = true
	engine := newTestSearch(t, client, store.NewMemoryReferenceStore(testLibrary()...))
	ctx := context.Background()

	_, err := engine.Search(ctx, "Fragrance", 3, nil)
	var retrievalErr *RetrievalError
	require.True(t, errors.As(err, &retrievalErr))

	client.fail["Fragrance"] = false
	matches, err := engine.Search(ctx, "Fragrance", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, matchIDs(matches))
}

func TestSimilaritySearch_StoreFailure(t *testing.T) {
	refs := &countingStore{
		MemoryReferenceStore: store.NewMemoryReferenceStore(testLibrary()...),
		err:                  errors.New("connection reset"),
	}
	engine := newTestSearch(t, newFakeEmbedder(), refs)

	_, err := engine.Search(context.Background(), "Fragrance", 3, nil)
	var retrievalErr *RetrievalError
	require.True(t, errors.As(err, &retrievalErr))
	assert.Equal(t, "Fragrance", retrievalErr.Subject)
}

func TestSimilaritySearch_NormalizeLimit(t *testing.T) {
	engine := newTestSearch(t, newFakeEmbedder(), store.NewMemoryReferenceStore())

	assert.Equal(t, 5, engine.NormalizeLimit(0))
	assert.Equal(t, 5, engine.NormalizeLimit(-3))
	assert.Equal(t, 5, engine.NormalizeLimit(21))
	assert.Equal(t, 1, engine.NormalizeLimit(1))
	assert.Equal(t, 20, engine.NormalizeLimit(20))
}

func TestSimilaritySearch_UsesVectorIndex(t *testing.T) {
	refs := &indexedStore{
		MemoryReferenceStore: store.NewMemoryReferenceStore(testLibrary()...),
		nearest: func(_ []float32, limit int, _ *models.RiskLevel, threshold float64) ([]models.SimilarityMatch, error) {
			assert.Equal(t, 3, limit)
			assert.Equal(t, 0.1, threshold)
			return []models.SimilarityMatch{
				{Reference: models.ReferenceIngredient{ID: 2, Name: "Parfum"}, Similarity: 0.8},
				{Reference: models.ReferenceIngredient{ID: 1, Name: "Fragrance"}, Similarity: 1.0000001},
			}, nil
		},
	}
	engine := newTestSearch(t, newFakeEmbedder(), refs)

	matches, err := engine.Search(context.Background(), "Fragrance", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, refs.calls)
	assert.Equal(t, []int64{1, 2}, matchIDs(matches))
	assert.Equal(t, 1.0, matches[0].Similarity)
}

func TestSimilaritySearch_IndexFailureFallsBackToBruteForce(t *testing.T) {
	refs := &indexedStore{
		MemoryReferenceStore: store.NewMemoryReferenceStore(testLibrary()...),
		nearest: func([]float32, int, *models.RiskLevel, float64) ([]models.SimilarityMatch, error) {
			return nil, errors.New("operator does not exist: vector <=> vector")
		},
	}
	engine := newTestSearch(t, newFakeEmbedder(), refs)

	matches, err := engine.Search(context.Background(), "Glycerin", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, refs.calls)
	assert.Equal(t, []int64{3, 2}, matchIDs(matches))
}

func TestSimilaritySearch_InvalidateKeepsEmbeddings(t *testing.T) {
	client := newFakeEmbedder()
	refs := &countingStore{MemoryReferenceStore: store.NewMemoryReferenceStore(testLibrary()...)}
	engine := newTestSearch(t, client, refs)
	ctx := context.Background()

	_, err := engine.Search(ctx, "Fragrance", 3, nil)
	require.NoError(t, err)

	refs.Replace(append(testLibrary(), models.ReferenceIngredient{
		ID: 5, Name: "Limonene", RiskLevel: models.RiskMedium, Embedding: []float32{0.99, 0, 0.01},
	}))
	require.NoError(t, engine.Invalidate(ctx))

	matches, err := engine.Search(ctx, "Fragrance", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 5, 2}, matchIDs(matches))

	embedCalls, _ := client.calls()
	assert.Equal(t, 1, embedCalls)
	assert.Equal(t, 2, refs.scans)
}

func TestSimilaritySearch_PrefetchBatchesMisses(t *testing.T) {
	client := newFakeEmbedder()
	engine := newTestSearch(t, client, store.NewMemoryReferenceStore(testLibrary()...))
	ctx := context.Background()

	_, err := engine.Search(ctx, "Water", 3, nil)
	require.NoError(t, err)

	require.NoError(t, engine.Prefetch(ctx, []string{"Fragrance", "Glycerin", "Water"}, 3, nil))
	assert.Equal(t, []int{2}, client.batchSizes)

	for _, name := range []string{"Fragrance", "Glycerin"} {
		_, err := engine.Search(ctx, name, 3, nil)
		require.NoError(t, err)
	}
	embedCalls, batchCalls := client.calls()
	assert.Equal(t, 1, embedCalls)
	assert.Equal(t, 1, batchCalls)
}

func TestCosineSimilarity(t *testing.T) {
	sim, ok := cosineSimilarity([]float64{1, 0}, []float64{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, ok = cosineSimilarity([]float64{1, 0}, []float64{0, 1})
	require.True(t, ok)
	assert.InDelta(t, 0.0, sim, 1e-9)

	_, ok = cosineSimilarity([]float64{0, 0}, []float64{1, 0})
	assert.False(t, ok)

	_, ok = cosineSimilarity([]float64{1, 0, 0}, []float64{1, 0})
	assert.False(t, ok)
}
