package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/pkg/models"
)

// PostgresReferenceStore keeps reference ingredients in the
// reference_ingredients table with a pgvector embedding column.
type PostgresReferenceStore struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewPostgresReferenceStore(db DatabaseQuerier, logger *logrus.Logger) *PostgresReferenceStore {
	return &PostgresReferenceStore{db: db, logger: logger}
}

// WithoutVectorIndex returns a view of the store that forces brute-force search.
func (s *PostgresReferenceStore) WithoutVectorIndex() ReferenceStore {
	return &bruteForceOnly{s}
}

// bruteForceOnly embeds the interface so NearestNeighbors is not promoted.
type bruteForceOnly struct {
	ReferenceStore
}

func (s *PostgresReferenceStore) GetByID(ctx context.Context, id int64) (*models.ReferenceIngredient, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, description, risk_level
		FROM reference_ingredients
		WHERE id = $1`, id)

	var ing models.ReferenceIngredient
	var level string
	if err := row.Scan(&ing.ID, &ing.Name, &ing.Description, &level); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reference ingredient %d: %w", id, err)
	}
	ing.RiskLevel = models.RiskLevel(level)
	return &ing, nil
}

func (s *PostgresReferenceStore) ListAll(ctx context.Context) ([]models.ReferenceIngredient, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, description, risk_level, embedding
		FROM reference_ingredients
		WHERE embedding IS NOT NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("reference scan query failed: %w", err)
	}
	defer rows.Close()

	var results []models.ReferenceIngredient
	for rows.Next() {
		var ing models.ReferenceIngredient
		var level string
		var vec pgvector.Vector
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.Description, &level, &vec); err != nil {
			s.logger.WithError(err).Warn("Failed to scan reference ingredient")
			continue
		}
		ing.RiskLevel = models.RiskLevel(level)
		ing.Embedding = vec.Slice()
		results = append(results, ing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reference scan failed: %w", err)
	}
	return results, nil
}

func (s *PostgresReferenceStore) List(ctx context.Context, limit, offset int, filter *models.RiskLevel) ([]models.ReferenceIngredient, int, error) {
	countQuery := `SELECT COUNT(*) FROM reference_ingredients`
	query := `
		SELECT id, name, description, risk_level
		FROM reference_ingredients`
	args := []interface{}{}

	if filter != nil {
		countQuery += ` WHERE risk_level = $1`
		query += ` WHERE risk_level = $1`
		args = append(args, string(*filter))
	}

	var total int
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reference ingredients: %w", err)
	}

	query += fmt.Sprintf(" ORDER BY name LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("reference list query failed: %w", err)
	}
	defer rows.Close()

	results, err := s.scanIngredients(rows)
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (s *PostgresReferenceStore) SearchByName(ctx context.Context, query string, limit int) ([]models.ReferenceIngredient, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, description, risk_level
		FROM reference_ingredients
		WHERE name ILIKE $1
		ORDER BY name
		LIMIT $2`, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("name search query failed: %w", err)
	}
	defer rows.Close()

	return s.scanIngredients(rows)
}

func (s *PostgresReferenceStore) NearestNeighbors(
	ctx context.Context,
	embedding []float32,
	limit int,
	filter *models.RiskLevel,
	threshold float64,
) ([]models.SimilarityMatch, error) {
	query := `
		SELECT
			id, name, description, risk_level,
			1 - (embedding <=> $1) AS similarity
		FROM reference_ingredients
		WHERE embedding IS NOT NULL
			AND 1 - (embedding <=> $1) >= $2`

	args := []interface{}{pgvector.NewVector(embedding), threshold}
	argIndex := 3

	if filter != nil {
		query += fmt.Sprintf(" AND risk_level = $%d", argIndex)
		args = append(args, string(*filter))
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search query failed: %w", err)
	}
	defer rows.Close()

	var results []models.SimilarityMatch
	for rows.Next() {
		var m models.SimilarityMatch
		var level string
		if err := rows.Scan(&m.Reference.ID, &m.Reference.Name, &m.Reference.Description, &level, &m.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan vector search result: %w", err)
		}
		m.Reference.RiskLevel = models.RiskLevel(level)
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	return results, nil
}

func (s *PostgresReferenceStore) scanIngredients(rows pgx.Rows) ([]models.ReferenceIngredient, error) {
	var results []models.ReferenceIngredient
	for rows.Next() {
		var ing models.ReferenceIngredient
		var level string
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.Description, &level); err != nil {
			return nil, fmt.Errorf("failed to scan reference ingredient: %w", err)
		}
		ing.RiskLevel = models.RiskLevel(level)
		results = append(results, ing)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
