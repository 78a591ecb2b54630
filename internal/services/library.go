package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/internal/store"
	"github.com/temcen/lotus/pkg/models"
)

const relatedIngredientLimit = 10

// IngredientLibrary serves browse and lookup queries over the reference data.
type IngredientLibrary struct {
	references store.ReferenceStore
	related    store.RelatedLookup
	search     *SimilaritySearchEngine
	logger     *logrus.Logger
}

// NewIngredientLibrary builds the library; related may be nil.
func NewIngredientLibrary(references store.ReferenceStore, related store.RelatedLookup, search *SimilaritySearchEngine, logger *logrus.Logger) *IngredientLibrary {
	return &IngredientLibrary{
		references: references,
		related:    related,
		search:     search,
		logger:     logger,
	}
}

// Get returns one ingredient with its related ingredients. A failing graph
// lookup leaves RelatedIngredients empty.
func (l *IngredientLibrary) Get(ctx context.Context, id int64) (*models.ReferenceIngredient, error) {
	ing, err := l.references.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if l.related != nil {
		related, err := l.related.RelatedIngredients(ctx, ing.Name, relatedIngredientLimit)
		if err != nil {
			l.logger.WithError(err).WithField("ingredient_id", id).Warn("Related ingredient lookup failed")
		} else {
			ing.RelatedIngredients = related
		}
	}
	return ing, nil
}

// List pages through the library, optionally filtered by level or by a name
// substring. A name query is not paginated beyond limit.
func (l *IngredientLibrary) List(ctx context.Context, limit, offset int, filter *models.RiskLevel, name string) ([]models.ReferenceIngredient, int, error) {
	if name != "" {
		items, err := l.references.SearchByName(ctx, name, limit)
		if err != nil {
			return nil, 0, err
		}
		if filter != nil {
			kept := items[:0]
			for _, it := range items {
				if it.RiskLevel == *filter {
					kept = append(kept, it)
				}
			}
			items = kept
		}
		return items, len(items), nil
	}
	return l.references.List(ctx, limit, offset, filter)
}

// ReferencesChanged drops cached search results after a library update.
func (l *IngredientLibrary) ReferencesChanged(ctx context.Context, event models.ReferenceUpdateEvent) error {
	l.logger.WithFields(logrus.Fields{
		"action":      event.Action,
		"ingredients": len(event.IngredientIDs),
	}).Info("Reference library changed, invalidating search cache")
	return l.search.Invalidate(ctx)
}
