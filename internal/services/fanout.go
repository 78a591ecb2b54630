package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/temcen/lotus/internal/config"
	"github.com/temcen/lotus/internal/store"
	"github.com/temcen/lotus/pkg/models"
)

// FanOutResult is the gathered context for one assessment.
type FanOutResult struct {
	Sensitivities []string
	// Matches are unique by reference ID, most similar first.
	Matches []models.SimilarityMatch
	// Failed lists ingredient names whose search failed and contributed nothing.
	Failed []string
}

// FanOutOrchestrator runs the profile lookup and one similarity search per
// ingredient concurrently, then merges the results.
type FanOutOrchestrator struct {
	search        *SimilaritySearchEngine
	profiles      store.ProfileStore
	contextLimit  int
	concurrency   int
	anonymousUser string
	metrics       *Metrics
	logger        *logrus.Logger
}

func NewFanOutOrchestrator(
	search *SimilaritySearchEngine,
	profiles store.ProfileStore,
	searchCfg config.SearchConfig,
	assessCfg config.AssessmentConfig,
	metrics *Metrics,
	logger *logrus.Logger,
) *FanOutOrchestrator {
	contextLimit := searchCfg.ContextLimit
	if contextLimit <= 0 {
		contextLimit = 3
	}
	concurrency := assessCfg.FanOutConcurrency
	if concurrency <= 0 {
		concurrency = 16
	}
	return &FanOutOrchestrator{
		search:        search,
		profiles:      profiles,
		contextLimit:  contextLimit,
		concurrency:   concurrency,
		anonymousUser: assessCfg.AnonymousUser,
		metrics:       metrics,
		logger:        logger,
	}
}

// FanOut never fails because of a single search or the profile lookup; those
// degrade to empty contributions. It returns an error only when ctx is done.
func (o *FanOutOrchestrator) FanOut(ctx context.Context, names []string, userID string) (*FanOutResult, error) {
	start := time.Now()

	var sensitivities []string
	perIngredient := make([][]models.SimilarityMatch, len(names))
	failed := make([]bool, len(names))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sensitivities = o.fetchSensitivities(gctx, userID)
		return nil
	})

	g.Go(func() error {
		if err := o.search.Prefetch(gctx, names, o.contextLimit, nil); err != nil {
			o.logger.WithError(err).Warn("Batch embedding prefetch failed, searching individually")
		}

		sg, sctx := errgroup.WithContext(gctx)
		sg.SetLimit(o.concurrency)
		for i, name := range names {
			sg.Go(func() error {
				matches, err := o.search.Search(sctx, name, o.contextLimit, nil)
				if err != nil {
					failed[i] = true
					o.metrics.RetrievalFailures.WithLabelValues("search").Inc()
					o.logger.WithFields(logrus.Fields{
						"ingredient": name,
						"error":      err.Error(),
					}).Warn("Ingredient search failed, continuing without its context")
					return nil
				}
				perIngredient[i] = matches
				return nil
			})
		}
		return sg.Wait()
	})

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &FanOutResult{
		Sensitivities: sensitivities,
		Matches:       mergeMatches(perIngredient),
	}
	for i, f := range failed {
		if f {
			result.Failed = append(result.Failed, names[i])
		}
	}
	if result.Sensitivities == nil {
		result.Sensitivities = []string{}
	}

	o.metrics.AssessmentLatency.WithLabelValues("fan_out").Observe(time.Since(start).Seconds())
	o.logger.WithFields(logrus.Fields{
		"ingredients": len(names),
		"matches":     len(result.Matches),
		"failed":      len(result.Failed),
		"duration":    time.Since(start),
	}).Debug("Fan-out completed")

	return result, nil
}

func (o *FanOutOrchestrator) fetchSensitivities(ctx context.Context, userID string) []string {
	if userID == "" || userID == o.anonymousUser || o.profiles == nil {
		return []string{}
	}

	sensitivities, err := o.profiles.GetSensitivities(ctx, userID)
	if err != nil {
		o.metrics.RetrievalFailures.WithLabelValues("profile").Inc()
		o.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("Profile lookup failed, assessing without sensitivities")
		return []string{}
	}
	return sensitivities
}

// mergeMatches de-duplicates by reference ID keeping the highest similarity.
func mergeMatches(groups [][]models.SimilarityMatch) []models.SimilarityMatch {
	best := make(map[int64]models.SimilarityMatch)
	for _, group := range groups {
		for _, m := range group {
			if cur, ok := best[m.Reference.ID]; !ok || m.Similarity > cur.Similarity {
				best[m.Reference.ID] = m
			}
		}
	}

	merged := make([]models.SimilarityMatch, 0, len(best))
	for _, m := range best {
		merged = append(merged, m)
	}
	sortMatches(merged)
	return merged
}
