package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
)

type PostgresProfileStore struct {
	db DatabaseQuerier
}

func NewPostgresProfileStore(db DatabaseQuerier) *PostgresProfileStore {
	return &PostgresProfileStore{db: db}
}

func (s *PostgresProfileStore) GetSensitivities(ctx context.Context, userID string) ([]string, error) {
	var sensitivities []string
	err := s.db.QueryRow(ctx, `
		SELECT sensitivities
		FROM user_profiles
		WHERE user_id = $1`, userID).Scan(&sensitivities)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to get profile for %s: %w", userID, err)
	}
	return normalizeSensitivities(sensitivities), nil
}

// normalizeSensitivities returns a sorted set without blanks.
func normalizeSensitivities(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
