package services

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/temcen/lotus/internal/config"
	"github.com/temcen/lotus/internal/store"
	"github.com/temcen/lotus/pkg/models"
)

// SimilaritySearchEngine finds reference ingredients semantically close to a
// free-text name.
type SimilaritySearchEngine struct {
	embedder     *EmbeddingGenerator
	references   store.ReferenceStore
	cache        SearchCache
	threshold    float64
	defaultLimit int
	maxLimit     int
	metrics      *Metrics
	logger       *logrus.Logger
}

func NewSimilaritySearchEngine(
	embedder *EmbeddingGenerator,
	references store.ReferenceStore,
	cache SearchCache,
	cfg config.SearchConfig,
	metrics *Metrics,
	logger *logrus.Logger,
) *SimilaritySearchEngine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 5
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	return &SimilaritySearchEngine{
		embedder:     embedder,
		references:   references,
		cache:        cache,
		threshold:    cfg.SimilarityThreshold,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		metrics:      metrics,
		logger:       logger,
	}
}

// NormalizeLimit replaces an out-of-range limit with the default.
func (e *SimilaritySearchEngine) NormalizeLimit(limit int) int {
	if limit < 1 || limit > e.maxLimit {
		return e.defaultLimit
	}
	return limit
}

// Search returns at most limit matches above the similarity threshold, most
// similar first. Results, including empty ones, are cached; errors are not.
func (e *SimilaritySearchEngine) Search(ctx context.Context, name string, limit int, filter *models.RiskLevel) ([]models.SimilarityMatch, error) {
	limit = e.NormalizeLimit(limit)
	key := searchCacheKey(name, limit, filter)

	if cached, ok := e.cache.Get(ctx, key); ok {
		e.metrics.cacheHit("search")
		return cached, nil
	}
	e.metrics.cacheMiss("search")

	vec, err := e.embedder.Embed(ctx, name)
	if err != nil {
		return nil, err
	}

	matches, err := e.rank(ctx, vec, limit, filter)
	if err != nil {
		return nil, &RetrievalError{Op: "similarity search", Subject: name, Err: err}
	}

	e.cache.Set(ctx, key, matches)

	e.logger.WithFields(logrus.Fields{
		"query":   name,
		"limit":   limit,
		"results": len(matches),
	}).Debug("Similarity search completed")

	return matches, nil
}

// Prefetch embeds, in one batch call, every name whose search is not cached
// and whose embedding is not memoized yet.
func (e *SimilaritySearchEngine) Prefetch(ctx context.Context, names []string, limit int, filter *models.RiskLevel) error {
	limit = e.NormalizeLimit(limit)

	var missing []string
	for _, name := range names {
		if name == "" || e.embedder.Cached(name) {
			continue
		}
		if _, ok := e.cache.Get(ctx, searchCacheKey(name, limit, filter)); ok {
			continue
		}
		missing = append(missing, name)
	}
	if len(missing) == 0 {
		return nil
	}

	_, err := e.embedder.EmbedBatch(ctx, missing)
	return err
}

// Invalidate drops all cached search results. Embeddings stay memoized since
// they depend only on the query text.
func (e *SimilaritySearchEngine) Invalidate(ctx context.Context) error {
	return e.cache.Flush(ctx)
}

func (e *SimilaritySearchEngine) rank(ctx context.Context, vec []float32, limit int, filter *models.RiskLevel) ([]models.SimilarityMatch, error) {
	if index, ok := e.references.(store.VectorIndex); ok {
		matches, err := index.NearestNeighbors(ctx, vec, limit, filter, e.threshold)
		if err == nil {
			e.metrics.SearchStrategy.WithLabelValues("index").Inc()
			return e.finalize(matches, limit), nil
		}
		e.logger.WithError(err).Warn("Vector index search failed, falling back to brute force")
	}

	e.metrics.SearchStrategy.WithLabelValues("brute_force").Inc()

	all, err := e.references.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]models.SimilarityMatch, 0, len(all))
	query := toFloat64(vec)
	for _, ref := range all {
		if filter != nil && ref.RiskLevel != *filter {
			continue
		}
		sim, ok := cosineSimilarity(query, toFloat64(ref.Embedding))
		if !ok {
			continue
		}
		ref.Embedding = nil
		matches = append(matches, models.SimilarityMatch{Reference: ref, Similarity: sim})
	}

	return e.finalize(matches, limit), nil
}

// finalize clamps similarities into [0, 1], applies the threshold and orders
// by similarity descending with ID as the tie-break.
func (e *SimilaritySearchEngine) finalize(matches []models.SimilarityMatch, limit int) []models.SimilarityMatch {
	out := make([]models.SimilarityMatch, 0, len(matches))
	for _, m := range matches {
		m.Similarity = clampUnit(m.Similarity)
		if m.Similarity < e.threshold {
			continue
		}
		out = append(out, m)
	}

	sortMatches(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortMatches(matches []models.SimilarityMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Reference.ID < matches[j].Reference.ID
	})
}

func cosineSimilarity(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0, false
	}
	return floats.Dot(a, b) / (na * nb), true
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func clampUnit(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
