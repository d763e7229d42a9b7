package auth

import (
	"context"
	"fmt"
	"time"

	"letknow-gateway/internal/config"
	"letknow-gateway/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

type ExceededRecorder interface {
	RecordRateLimitExceeded(storefrontID string)
}

// RateLimitService enforces a fixed-window request budget per storefront, shared across replicas through Redis.
type RateLimitService struct {
	redis    RedisClient
	config   config.RateLimitConfig
	recorder ExceededRecorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewRateLimitService(redis RedisClient, cfg config.RateLimitConfig, recorder ExceededRecorder, logger *zap.Logger) *RateLimitService {
	return &RateLimitService{
		redis:    redis,
		config:   cfg,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckRateLimit counts one request for storefrontID. remaining is -1 when limiting is disabled.
func (s *RateLimitService) CheckRateLimit(ctx context.Context, storefrontID string) (allowed bool, remaining int64, resetAt time.Time, err error) {
	if !s.config.Enabled {
		return true, -1, time.Time{}, nil
	}

	key := fmt.Sprintf("%s:%s", s.config.RedisKeyPrefix, storefrontID)
	windowDuration := time.Duration(s.config.WindowSeconds) * time.Second

	countCmd := s.redis.Incr(ctx, key)
	if err := countCmd.Err(); err != nil {
		return false, 0, time.Time{},
			errors.WrapDomainError(err, errors.CodeDependencyUnavailable, "rate limiting unavailable", "redis error")
	}

	currentCount := countCmd.Val()

	if currentCount == 1 {
		if err := s.redis.Expire(ctx, key, windowDuration).Err(); err != nil {
			s.logger.Warn("failed to set expire on rate limit key", zap.Error(err))
		}
	}

	ttlDuration := s.redis.TTL(ctx, key).Val()
	if ttlDuration < 0 {
		// A key left without expiry would block the storefront for good.
		if currentCount > 1 {
			if err := s.redis.Expire(ctx, key, windowDuration).Err(); err != nil {
				s.logger.Warn("failed to repair expire on rate limit key", zap.Error(err))
			}
		}
		ttlDuration = windowDuration
	}
	resetAt = s.now().Add(ttlDuration)

	limit := int64(s.config.RequestsPerWindow)
	if currentCount > limit {
		if s.recorder != nil {
			s.recorder.RecordRateLimitExceeded(storefrontID)
		}
		return false, 0, resetAt, nil
	}

	return true, limit - currentCount, resetAt, nil
}

func (s *RateLimitService) GetRateLimitError(ctx context.Context, storefrontID string) error {
	return errors.NewDomainError(errors.CodeRateLimited, "rate limit exceeded", fmt.Sprintf("storefront %s has exceeded rate limit", storefrontID))
}
