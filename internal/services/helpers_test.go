package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/lotus/internal/config"
	"github.com/temcen/lotus/internal/ml"
	"github.com/temcen/lotus/internal/store"
	"github.com/temcen/lotus/pkg/models"
)

var errEmbeddingDown = errors.New("embedding service unavailable")

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// fakeEmbedder returns fixed vectors for known texts and counts calls.
type fakeEmbedder struct {
	mu         sync.Mutex
	vectors    map[string][]float32
	fail       map[string]bool
	failBatch  bool
	delay      time.Duration
	embedCalls int
	batchCalls int
	batchSizes []int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		vectors: map[string][]float32{
			"Fragrance": {1, 0, 0},
			"Parfum":    {0.95, 0.05, 0},
			"Glycerin":  {0, 1, 0},
			"Paraben":   {0, 0.1, 1},
			"Water":     {-1, 0, 0},
		},
		fail: map[string]bool{},
	}
}

func (f *fakeEmbedder) vectorFor(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	return []float32{0.3, 0.3, 0.3}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.embedCalls++
	delay := f.delay
	failing := f.fail[text]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if failing {
		return nil, errEmbeddingDown
	}
	return f.vectorFor(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls++
	f.batchSizes = append(f.batchSizes, len(texts))
	failBatch := f.failBatch
	f.mu.Unlock()

	if failBatch {
		return nil, errEmbeddingDown
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.fail[text] {
			return nil, errEmbeddingDown
		}
		out[i] = f.vectorFor(text)
	}
	return out, nil
}

func (f *fakeEmbedder) calls() (embed, batch int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls, f.batchCalls
}

func testLibrary() []models.ReferenceIngredient {
	return []models.ReferenceIngredient{
		{ID: 1, Name: "Fragrance", Description: "Synthetic scent blend", RiskLevel: models.RiskHigh, Embedding: []float32{1, 0, 0}},
		{ID: 2, Name: "Parfum", Description: "Perfume compound", RiskLevel: models.RiskHigh, Embedding: []float32{0.9, 0.1, 0}},
		{ID: 3, Name: "Glycerin", Description: "Humectant", RiskLevel: models.RiskLow, Embedding: []float32{0, 1, 0}},
		{ID: 4, Name: "Methylparaben", Description: "Preservative", RiskLevel: models.RiskMedium, Embedding: []float32{0, 0, 1}},
	}
}

// countingStore counts brute-force scans.
type countingStore struct {
	*store.MemoryReferenceStore
	mu    sync.Mutex
	scans int
	err   error
}

func (c *countingStore) ListAll(ctx context.Context) ([]models.ReferenceIngredient, error) {
	c.mu.Lock()
	c.scans++
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.MemoryReferenceStore.ListAll(ctx)
}

// indexedStore adds a native index to the in-memory library.
type indexedStore struct {
	*store.MemoryReferenceStore
	nearest func(embedding []float32, limit int, filter *models.RiskLevel, threshold float64) ([]models.SimilarityMatch, error)
	calls   int
}

func (s *indexedStore) NearestNeighbors(ctx context.Context, embedding []float32, limit int, filter *models.RiskLevel, threshold float64) ([]models.SimilarityMatch, error) {
	s.calls++
	return s.nearest(embedding, limit, filter, threshold)
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultLimit:        5,
		MaxLimit:            20,
		ContextLimit:        3,
		SimilarityThreshold: 0.1,
	}
}

func newTestGenerator(t *testing.T, client ml.EmbeddingClient, size int) *EmbeddingGenerator {
	t.Helper()
	g, err := NewEmbeddingGenerator(client, size, NewTestMetrics(), testLogger())
	require.NoError(t, err)
	return g
}

func newTestSearch(t *testing.T, client ml.EmbeddingClient, refs store.ReferenceStore) *SimilaritySearchEngine {
	t.Helper()
	return NewSimilaritySearchEngine(
		newTestGenerator(t, client, 100),
		refs,
		NewMemorySearchCache(time.Hour, 10*time.Minute),
		testSearchConfig(),
		NewTestMetrics(),
		testLogger(),
	)
}

type mockChatClient struct {
	mock.Mock
}

func (m *mockChatClient) Complete(ctx context.Context, messages []ml.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

type mockProfileStore struct {
	mock.Mock
}

func (m *mockProfileStore) GetSensitivities(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishAssessment(ctx context.Context, event models.AssessmentEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
