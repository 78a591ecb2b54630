package services

import (
	"context"

	"github.com/temcen/lotus/pkg/models"
)

// AssessorInterface is the pipeline surface the HTTP layer depends on.
type AssessorInterface interface {
	Assess(ctx context.Context, input models.ScanInput) (*models.RiskAssessment, error)
	SearchSimilar(ctx context.Context, name string, limit int, filter *models.RiskLevel) ([]models.SimilarityMatch, error)
}

// IngredientLibraryInterface serves browse and lookup requests.
type IngredientLibraryInterface interface {
	Get(ctx context.Context, id int64) (*models.ReferenceIngredient, error)
	List(ctx context.Context, limit, offset int, filter *models.RiskLevel, name string) ([]models.ReferenceIngredient, int, error)
}

type HealthCheckerInterface interface {
	CheckHealth(ctx context.Context) *HealthStatus
}

// RateLimiterInterface admits or rejects one request for a client.
type RateLimiterInterface interface {
	Allow(ctx context.Context, clientID string) (bool, *models.RateLimitInfo)
}

var (
	_ AssessorInterface          = (*AssessmentService)(nil)
	_ IngredientLibraryInterface = (*IngredientLibrary)(nil)
	_ HealthCheckerInterface     = (*HealthService)(nil)
	_ RateLimiterInterface       = (*RateLimitService)(nil)
)
