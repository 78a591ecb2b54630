package services

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/temcen/lotus/internal/ml"
)

const (
	defaultEmbeddingCacheSize = 1000
	// sharedEmbedTimeout bounds a deduplicated call that no single caller owns.
	sharedEmbedTimeout = 30 * time.Second
)

// EmbeddingGenerator memoizes embeddings by exact text in a bounded LRU.
// Returned vectors are shared with the cache and must not be modified.
type EmbeddingGenerator struct {
	client  ml.EmbeddingClient
	cache   *lru.Cache[string, []float32]
	group   singleflight.Group
	metrics *Metrics
	logger  *logrus.Logger
}

func NewEmbeddingGenerator(client ml.EmbeddingClient, cacheSize int, metrics *Metrics, logger *logrus.Logger) (*EmbeddingGenerator, error) {
	if cacheSize <= 0 {
		cacheSize = defaultEmbeddingCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &EmbeddingGenerator{
		client:  client,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Embed returns the embedding for text, calling the embedding service only on
// a cache miss. Concurrent misses for the same text share one call, which
// runs detached from any one caller's cancellation; each caller still stops
// waiting when its own ctx is done.
func (g *EmbeddingGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, &RetrievalError{Op: "embed", Err: ErrEmptyText}
	}

	if vec, ok := g.cache.Get(text); ok {
		g.metrics.cacheHit("embedding")
		return vec, nil
	}
	g.metrics.cacheMiss("embedding")

	ch := g.group.DoChan(text, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedEmbedTimeout)
		defer cancel()

		vec, err := g.client.Embed(callCtx, text)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("embedding service returned an empty vector")
		}
		g.cache.Add(text, vec)
		return vec, nil
	})

	select {
	case <-ctx.Done():
		return nil, &RetrievalError{Op: "embed", Subject: text, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, &RetrievalError{Op: "embed", Subject: text, Err: res.Err}
		}
		return res.Val.([]float32), nil
	}
}

// EmbedBatch embeds texts in input order. Cached texts are served locally and
// the remaining distinct texts go to the embedding service in a single call.
func (g *EmbeddingGenerator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	pending := make(map[string][]int)
	var misses []string

	for i, text := range texts {
		if text == "" {
			return nil, &RetrievalError{Op: "embed batch", Err: ErrEmptyText}
		}
		if vec, ok := g.cache.Get(text); ok {
			g.metrics.cacheHit("embedding")
			results[i] = vec
			continue
		}
		if _, seen := pending[text]; !seen {
			g.metrics.cacheMiss("embedding")
			misses = append(misses, text)
		}
		pending[text] = append(pending[text], i)
	}

	if len(misses) == 0 {
		return results, nil
	}

	vectors, err := g.client.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, &RetrievalError{Op: "embed batch", Err: err}
	}
	if len(vectors) != len(misses) {
		return nil, &RetrievalError{
			Op:  "embed batch",
			Err: fmt.Errorf("expected %d embeddings, got %d", len(misses), len(vectors)),
		}
	}

	for j, text := range misses {
		if len(vectors[j]) == 0 {
			return nil, &RetrievalError{Op: "embed batch", Subject: text, Err: fmt.Errorf("empty vector")}
		}
		g.cache.Add(text, vectors[j])
		for _, idx := range pending[text] {
			results[idx] = vectors[j]
		}
	}

	g.logger.WithFields(logrus.Fields{
		"requested": len(texts),
		"fetched":   len(misses),
	}).Debug("Batch embedding completed")

	return results, nil
}

// Cached reports whether text already has a memoized embedding.
func (g *EmbeddingGenerator) Cached(text string) bool {
	return g.cache.Contains(text)
}
