package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"letknow-gateway/internal/models"
	"letknow-gateway/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisClient interface for Redis operations
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Repository interface for database operations
type Repository interface {
	GetByStorefrontID(ctx context.Context, storefrontID string) (*models.Storefront, error)
	UpsertStorefront(ctx context.Context, sf *models.Storefront) error
	UpdateStatus(ctx context.Context, storefrontID, status string) error
}

// DBRegistry resolves storefronts from the static registry first, then Redis, then Postgres.
// The configured storefront never needs a database round trip.
type DBRegistry struct {
	static    *Registry
	repo      Repository
	redis     RedisClient
	keyPrefix string
	cacheTTL  time.Duration
	logger    *zap.Logger
}

func NewDBRegistry(static *Registry, repo Repository, rdb RedisClient, keyPrefix string, cacheTTL time.Duration, logger *zap.Logger) *DBRegistry {
	return &DBRegistry{
		static:    static,
		repo:      repo,
		redis:     rdb,
		keyPrefix: keyPrefix,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

func (r *DBRegistry) DefaultID() string {
	return r.static.DefaultID()
}

func (r *DBRegistry) GetStorefront(ctx context.Context, storefrontID string) (*models.Storefront, error) {
	sf, err := r.static.GetStorefront(ctx, storefrontID)
	if err == nil {
		return sf, nil
	}
	if !errors.HasCode(err, errors.CodeNotFound) {
		return nil, err
	}

	cacheKey := r.cacheKey(storefrontID)
	if r.cacheTTL > 0 {
		cached, err := r.redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var sf models.Storefront
			if err := json.Unmarshal([]byte(cached), &sf); err == nil {
				r.logger.Debug("storefront found in cache", zap.String("storefront_id", storefrontID))
				return &sf, nil
			}
			r.logger.Warn("failed to unmarshal cached storefront", zap.Error(err), zap.String("storefront_id", storefrontID))
		} else if err != redis.Nil {
			r.logger.Warn("storefront cache read failed", zap.Error(err), zap.String("storefront_id", storefrontID))
		}
	}

	sf, err = r.repo.GetByStorefrontID(ctx, storefrontID)
	if err != nil {
		return nil, err
	}

	if r.cacheTTL > 0 {
		if data, err := json.Marshal(sf); err == nil {
			if err := r.redis.Set(ctx, cacheKey, data, r.cacheTTL).Err(); err != nil {
				r.logger.Warn("failed to cache storefront", zap.Error(err), zap.String("storefront_id", storefrontID))
			}
		}
	}

	return sf, nil
}

// UpsertStorefront writes the storefront to Postgres and drops its cached copy.
func (r *DBRegistry) UpsertStorefront(ctx context.Context, sf *models.Storefront) error {
	if err := r.repo.UpsertStorefront(ctx, sf); err != nil {
		return err
	}
	r.invalidate(ctx, sf.ID)
	return nil
}

func (r *DBRegistry) UpdateStatus(ctx context.Context, storefrontID, status string) error {
	if err := r.repo.UpdateStatus(ctx, storefrontID, status); err != nil {
		return err
	}
	r.invalidate(ctx, storefrontID)
	return nil
}

func (r *DBRegistry) invalidate(ctx context.Context, storefrontID string) {
	if err := r.redis.Del(ctx, r.cacheKey(storefrontID)).Err(); err != nil {
		r.logger.Warn("failed to invalidate storefront cache", zap.Error(err), zap.String("storefront_id", storefrontID))
	}
}

func (r *DBRegistry) cacheKey(storefrontID string) string {
	return fmt.Sprintf("%s:storefront:%s", r.keyPrefix, storefrontID)
}
