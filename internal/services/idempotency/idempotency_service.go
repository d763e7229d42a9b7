package idempotency

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
}

// Service remembers successful checkout outcomes per storefront and reference id so a
// double-submitted checkout gets the deposit address it was already issued.
// Reference ids are only unique within a storefront.
// Only outcomes are cached; nonces and signatures never are.
type Service struct {
	redis     RedisClient
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewService creates the outcome cache. A zero ttl disables it.
func NewService(rdb RedisClient, keyPrefix string, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{
		redis:     rdb,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

func (s *Service) Enabled() bool {
	return s.ttl > 0
}

func (s *Service) buildKey(storefrontID, referenceID string) string {
	return fmt.Sprintf("%s:outcome:%s:%s", s.keyPrefix, storefrontID, referenceID)
}

// LookupOutcome returns the success outcome storefrontID was issued for referenceID, if any.
func (s *Service) LookupOutcome(ctx context.Context, storefrontID, referenceID string) (*models.PaymentOutcome, bool, error) {
	if !s.Enabled() {
		return nil, false, nil
	}
	if storefrontID == "" {
		return nil, false, errors.NewDomainError(errors.CodeInvalidRequest, "outcome lookup failed", "storefront_id is required")
	}

	val, err := s.redis.Get(ctx, s.buildKey(storefrontID, referenceID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WrapDomainError(err, errors.CodeDependencyUnavailable, "outcome lookup failed", "redis error")
	}

	var outcome models.PaymentOutcome
	if err := json.Unmarshal(val, &outcome); err != nil {
		s.logger.Warn("discarding unreadable cached outcome",
			zap.String("storefront_id", storefrontID),
			zap.String("reference_id", referenceID),
			zap.Error(err),
		)
		return nil, false, nil
	}

	return &outcome, true, nil
}

// StoreOutcome caches a success outcome for storefrontID. Failures are never cached so the shopper can resubmit.
func (s *Service) StoreOutcome(ctx context.Context, storefrontID string, outcome *models.PaymentOutcome) error {
	if !s.Enabled() || !outcome.IsSuccess() {
		return nil
	}
	if storefrontID == "" {
		return errors.NewDomainError(errors.CodeInvalidRequest, "outcome storage failed", "storefront_id is required")
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return errors.WrapDomainError(err, errors.CodeInternal, "outcome serialization failed", "failed to marshal outcome")
	}

	if err := s.redis.Set(ctx, s.buildKey(storefrontID, outcome.ReferenceID), data, s.ttl).Err(); err != nil {
		return errors.WrapDomainError(err, errors.CodeDependencyUnavailable, "outcome storage failed", "redis error")
	}

	return nil
}
