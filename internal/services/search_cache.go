package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/pkg/models"
)

// SearchCache memoizes similarity search results for a bounded time. It is
// advisory: a failing cache behaves like a miss.
type SearchCache interface {
	Get(ctx context.Context, key string) ([]models.SimilarityMatch, bool)
	Set(ctx context.Context, key string, matches []models.SimilarityMatch)
	Flush(ctx context.Context) error
}

// searchCacheKey identifies a search by (name, limit, filter). The name goes
// last so it may contain the separator.
func searchCacheKey(name string, limit int, filter *models.RiskLevel) string {
	f := "any"
	if filter != nil {
		f = string(*filter)
	}
	return fmt.Sprintf("%d:%s:%s", limit, f, name)
}

func copyMatches(in []models.SimilarityMatch) []models.SimilarityMatch {
	out := make([]models.SimilarityMatch, len(in))
	copy(out, in)
	return out
}

// defaultSearchCacheEntries caps the in-process cache.
const defaultSearchCacheEntries = 500

// MemorySearchCache keeps results in process with per-entry expiry. Once it
// holds maxEntries live results, new keys are not stored until entries expire
// or the cache is flushed. Concurrent sets may overshoot the cap slightly.
type MemorySearchCache struct {
	cache      *cache.Cache
	maxEntries int
}

func NewMemorySearchCache(ttl, cleanupInterval time.Duration) *MemorySearchCache {
	return &MemorySearchCache{
		cache:      cache.New(ttl, cleanupInterval),
		maxEntries: defaultSearchCacheEntries,
	}
}

func (c *MemorySearchCache) Get(ctx context.Context, key string) ([]models.SimilarityMatch, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	matches, ok := v.([]models.SimilarityMatch)
	if !ok {
		return nil, false
	}
	return copyMatches(matches), true
}

func (c *MemorySearchCache) Set(ctx context.Context, key string, matches []models.SimilarityMatch) {
	if c.full(key) {
		return
	}
	c.cache.Set(key, copyMatches(matches), cache.DefaultExpiration)
}

func (c *MemorySearchCache) full(key string) bool {
	if c.maxEntries <= 0 || c.cache.ItemCount() < c.maxEntries {
		return false
	}
	if _, exists := c.cache.Get(key); exists {
		return false
	}
	c.cache.DeleteExpired()
	return c.cache.ItemCount() >= c.maxEntries
}

func (c *MemorySearchCache) Flush(ctx context.Context) error {
	c.cache.Flush()
	return nil
}

// RedisSearchCache shares results across replicas through the warm redis tier.
type RedisSearchCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *logrus.Logger
}

func NewRedisSearchCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisSearchCache {
	return &RedisSearchCache{
		client: client,
		ttl:    ttl,
		prefix: "similarity:",
		logger: logger,
	}
}

func (c *RedisSearchCache) Get(ctx context.Context, key string) ([]models.SimilarityMatch, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("key", key).Warn("Search cache read failed")
		}
		return nil, false
	}

	var matches []models.SimilarityMatch
	if err := json.Unmarshal(data, &matches); err != nil {
		c.logger.WithFields(logrus.Fields{
			"error": err.Error(),
			"key":   key,
		}).Warn("Failed to deserialize cached search results")
		return nil, false
	}
	if matches == nil {
		matches = []models.SimilarityMatch{}
	}
	return matches, true
}

func (c *RedisSearchCache) Set(ctx context.Context, key string, matches []models.SimilarityMatch) {
	if matches == nil {
		matches = []models.SimilarityMatch{}
	}
	data, err := json.Marshal(matches)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to serialize search results for caching")
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to cache search results")
	}
}

// Flush deletes only this cache's keys; the warm tier may be shared.
func (c *RedisSearchCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to flush search cache: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan search cache: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to flush search cache: %w", err)
		}
	}
	return nil
}
