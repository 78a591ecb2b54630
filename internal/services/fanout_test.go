package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/lotus/internal/config"
	"github.com/temcen/lotus/internal/store"
	"github.com/temcen/lotus/pkg/models"
)

func testAssessmentConfig() config.AssessmentConfig {
	return config.AssessmentConfig{
		Timeout:           5 * time.Second,
		FanOutConcurrency: 16,
		AnonymousUser:     "anonymous",
	}
}

func newTestFanOut(t *testing.T, client *fakeEmbedder, profiles store.ProfileStore) *FanOutOrchestrator {
	t.Helper()
	search := newTestSearch(t, client, store.NewMemoryReferenceStore(testLibrary()...))
	return NewFanOutOrchestrator(search, profiles, testSearchConfig(), testAssessmentConfig(), NewTestMetrics(), testLogger())
}

func TestFanOut_MergesAndDeduplicates(t *testing.T) {
	profiles := store.NewMemoryProfileStore()
	profiles.Set("user-1", []string{"Sensitive Skin", "Fragrance Allergy"})
	o := newTestFanOut(t, newFakeEmbedder(), profiles)

	result, err := o.FanOut(context.Background(), []string{"Fragrance", "Parfum", "Glycerin"}, "user-1")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Sensitive Skin", "Fragrance Allergy"}, result.Sensitivities)
	assert.Empty(t, result.Failed)

	seen := map[int64]bool{}
	for _, m := range result.Matches {
		assert.False(t, seen[m.Reference.ID], "duplicate reference %d", m.Reference.ID)
		seen[m.Reference.ID] = true
	}
	assert.Equal(t, []int64{1, 3, 2}, matchIDs(result.Matches)[:3])
}

func TestFanOut_KeepsHighestSimilarityPerReference(t *testing.T) {
	merged := mergeMatches([][]models.SimilarityMatch{
		{{Reference: models.ReferenceIngredient{ID: 2, Name: "Parfum"}, Similarity: 0.4}},
		{
			{Reference: models.ReferenceIngredient{ID: 2, Name: "Parfum"}, Similarity: 0.9},
			{Reference: models.ReferenceIngredient{ID: 1, Name: "Fragrance"}, Similarity: 0.9},
		},
		nil,
	})

	require.Len(t, merged, 2)
	assert.Equal(t, []int64{1, 2}, matchIDs(merged))
	assert.Equal(t, 0.9, merged[1].Similarity)
}

func TestFanOut_PartialFailure(t *testing.T) {
	client := newFakeEmbedder()
	client.fail["Mystery Extract"] = true
	o := newTestFanOut(t, client, nil)

	result, err := o.FanOut(context.Background(), []string{"Fragrance", "Mystery Extract"}, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"Mystery Extract"}, result.Failed)
	assert.Equal(t, []int64{1, 2}, matchIDs(result.Matches))
	assert.Equal(t, []string{}, result.Sensitivities)
}

func TestFanOut_AllSearchesFail(t *testing.T) {
	client := newFakeEmbedder()
	client.fail["Fragrance"] = true
	client.fail["Glycerin"] = true
	o := newTestFanOut(t, client, nil)

	result, err := o.FanOut(context.Background(), []string{"Fragrance", "Glycerin"}, "")
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
	assert.ElementsMatch(t, []string{"Fragrance", "Glycerin"}, result.Failed)
}

func TestFanOut_SkipsProfileForAnonymousUsers(t *testing.T) {
	for _, userID := range []string{"", "anonymous"} {
		profiles := &mockProfileStore{}
		o := newTestFanOut(t, newFakeEmbedder(), profiles)

		result, err := o.FanOut(context.Background(), []string{"Glycerin"}, userID)
		require.NoError(t, err)
		assert.Equal(t, []string{}, result.Sensitivities)
		profiles.AssertNotCalled(t, "GetSensitivities", mock.Anything, mock.Anything)
	}
}

func TestFanOut_ProfileFailureDegradesToEmpty(t *testing.T) {
	profiles := &mockProfileStore{}
	profiles.On("GetSensitivities", mock.Anything, "user-2").Return(nil, errors.New("timeout"))
	o := newTestFanOut(t, newFakeEmbedder(), profiles)

	result, err := o.FanOut(context.Background(), []string{"Fragrance"}, "user-2")
	require.NoError(t, err)
	assert.Equal(t, []string{}, result.Sensitivities)
	assert.NotEmpty(t, result.Matches)
	profiles.AssertExpectations(t)
}

func TestFanOut_SearchesRunConcurrently(t *testing.T) {
	const latency = 100 * time.Millisecond

	client := newFakeEmbedder()
	client.failBatch = true
	client.delay = latency
	o := newTestFanOut(t, client, nil)

	names := make([]string, 10)
	for i := range names {
		names[i] = fmt.Sprintf("Ingredient %d", i)
	}

	start := time.Now()
	result, err := o.FanOut(context.Background(), names, "")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	embedCalls, _ := client.calls()
	assert.Equal(t, 10, embedCalls)
	assert.Less(t, elapsed, 4*latency, "searches should overlap, took %s", elapsed)
}

func TestFanOut_CancelledContext(t *testing.T) {
	client := newFakeEmbedder()
	client.failBatch = true
	client.delay = time.Second
	o := newTestFanOut(t, client, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := o.FanOut(ctx, []string{"Fragrance", "Glycerin"}, "")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
