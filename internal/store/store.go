package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/temcen/lotus/pkg/models"
)

var ErrNotFound = errors.New("not found")

// DatabaseQuerier is the subset of pgxpool.Pool the stores use, so tests can
// substitute pgxmock.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// ReferenceStore reads the curated ingredient library.
type ReferenceStore interface {
	GetByID(ctx context.Context, id int64) (*models.ReferenceIngredient, error)
	// ListAll returns every entry with its embedding, for brute-force search.
	ListAll(ctx context.Context) ([]models.ReferenceIngredient, error)
	List(ctx context.Context, limit, offset int, filter *models.RiskLevel) ([]models.ReferenceIngredient, int, error)
	SearchByName(ctx context.Context, query string, limit int) ([]models.ReferenceIngredient, error)
}

// VectorIndex is implemented by stores that can answer nearest-neighbour
// queries natively. Similarity is cosine similarity.
type VectorIndex interface {
	NearestNeighbors(ctx context.Context, embedding []float32, limit int, filter *models.RiskLevel, threshold float64) ([]models.SimilarityMatch, error)
}

// ProfileStore returns a user's declared sensitivities. A missing profile is
// an empty set, not an error.
type ProfileStore interface {
	GetSensitivities(ctx context.Context, userID string) ([]string, error)
}

// RelatedLookup finds ingredients linked to a reference ingredient.
type RelatedLookup interface {
	RelatedIngredients(ctx context.Context, name string, limit int) ([]string, error)
}
