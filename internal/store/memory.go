package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/temcen/lotus/pkg/models"
)

// MemoryReferenceStore is an in-process reference library. It has no vector
// index, so similarity search over it always runs brute force.
type MemoryReferenceStore struct {
	mu    sync.RWMutex
	items []models.ReferenceIngredient
}

func NewMemoryReferenceStore(items ...models.ReferenceIngredient) *MemoryReferenceStore {
	s := &MemoryReferenceStore{}
	s.Replace(items)
	return s
}

// Replace swaps the whole library.
func (s *MemoryReferenceStore) Replace(items []models.ReferenceIngredient) {
	cp := make([]models.ReferenceIngredient, len(items))
	copy(cp, items)
	sort.Slice(cp, func(i, j int) bool { return cp[i].ID < cp[j].ID })

	s.mu.Lock()
	s.items = cp
	s.mu.Unlock()
}

func (s *MemoryReferenceStore) GetByID(ctx context.Context, id int64) (*models.ReferenceIngredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ing := range s.items {
		if ing.ID == id {
			out := ing
			out.Embedding = nil
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryReferenceStore) ListAll(ctx context.Context) ([]models.ReferenceIngredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ReferenceIngredient, 0, len(s.items))
	for _, ing := range s.items {
		if len(ing.Embedding) > 0 {
			out = append(out, ing)
		}
	}
	return out, nil
}

func (s *MemoryReferenceStore) List(ctx context.Context, limit, offset int, filter *models.RiskLevel) ([]models.ReferenceIngredient, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.ReferenceIngredient
	for _, ing := range s.items {
		if filter != nil && ing.RiskLevel != *filter {
			continue
		}
		ing.Embedding = nil
		matched = append(matched, ing)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	total := len(matched)
	if offset >= total {
		return []models.ReferenceIngredient{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *MemoryReferenceStore) SearchByName(ctx context.Context, query string, limit int) ([]models.ReferenceIngredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var out []models.ReferenceIngredient
	for _, ing := range s.items {
		if strings.Contains(strings.ToLower(ing.Name), q) {
			ing.Embedding = nil
			out = append(out, ing)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string][]string
}

func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string][]string)}
}

func (s *MemoryProfileStore) Set(userID string, sensitivities []string) {
	s.mu.Lock()
	s.profiles[userID] = normalizeSensitivities(sensitivities)
	s.mu.Unlock()
}

func (s *MemoryProfileStore) GetSensitivities(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.profiles[userID]))
	copy(out, s.profiles[userID])
	return out, nil
}
