package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/internal/config"
	"github.com/temcen/lotus/pkg/models"
)

// RateLimitService applies a sliding window per client in the hot redis tier.
type RateLimitService struct {
	limit       int
	window      time.Duration
	logger      *logrus.Logger
	redisClient *redis.Client
}

func NewRateLimitService(cfg config.RateLimitConfig, logger *logrus.Logger, redisClient *redis.Client) *RateLimitService {
	return &RateLimitService{
		limit:       cfg.Requests,
		window:      cfg.Window,
		logger:      logger,
		redisClient: redisClient,
	}
}

// Allow records one request for clientID and reports whether it fits in the
// window. Redis failures let the request through.
func (s *RateLimitService) Allow(ctx context.Context, clientID string) (bool, *models.RateLimitInfo) {
	key := fmt.Sprintf("rate_limit:%s", clientID)

	now := time.Now()
	windowStart := now.Add(-s.window)
	info := &models.RateLimitInfo{
		Limit:     s.limit,
		Remaining: s.limit - 1,
		ResetTime: now.Add(s.window).Unix(),
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	pipe := s.redisClient.TxPipeline()

	// Remove expired entries
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))

	// Count requests already in the window
	countCmd := pipe.ZCard(ctx, key)

	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, s.window)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to execute rate limit pipeline")
		return true, info
	}

	count := int(countCmd.Val())
	info.Remaining = s.limit - count - 1
	if info.Remaining < 0 {
		info.Remaining = 0
	}

	return count < s.limit, info
}

// Reset clears the window for clientID.
func (s *RateLimitService) Reset(ctx context.Context, clientID string) error {
	return s.redisClient.Del(ctx, fmt.Sprintf("rate_limit:%s", clientID)).Err()
}
