package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"letknow-gateway/internal/config"
	domainerrors "letknow-gateway/pkg/errors"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Incr(ctx context.Context, key string) *redis.IntCmd {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return redis.NewIntResult(0, errors.New("mock error"))
	}
	return args.Get(0).(*redis.IntCmd)
}

func (m *MockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	args := m.Called(ctx, key, expiration)
	if args.Get(0) == nil {
		return redis.NewBoolResult(false, errors.New("mock error"))
	}
	return args.Get(0).(*redis.BoolCmd)
}

func (m *MockRedisClient) TTL(ctx context.Context, key string) *redis.DurationCmd {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return redis.NewDurationResult(0, errors.New("mock error"))
	}
	return args.Get(0).(*redis.DurationCmd)
}

type MockExceededRecorder struct {
	mock.Mock
}

func (m *MockExceededRecorder) RecordRateLimitExceeded(storefrontID string) {
	m.Called(storefrontID)
}

const rateLimitKey = "letknow:ratelimit:default"

func rateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:           true,
		RedisKeyPrefix:    "letknow:ratelimit",
		RequestsPerWindow: 60,
		WindowSeconds:     60,
	}
}

func TestRateLimitService_CheckRateLimit_Success_FirstRequest(t *testing.T) {
	mockRedis := new(MockRedisClient)
	service := NewRateLimitService(mockRedis, rateLimitConfig(), nil, zap.NewNop())
	ctx := context.Background()

	mockRedis.On("Incr", ctx, rateLimitKey).Return(redis.NewIntResult(1, nil))
	mockRedis.On("Expire", ctx, rateLimitKey, 60*time.Second).Return(redis.NewBoolResult(true, nil))
	mockRedis.On("TTL", ctx, rateLimitKey).Return(redis.NewDurationResult(60*time.Second, nil))

	allowed, remaining, resetAt, err := service.CheckRateLimit(ctx, "default")

	assert.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(59), remaining)
	assert.NotZero(t, resetAt)
	mockRedis.AssertExpectations(t)
}

func TestRateLimitService_CheckRateLimit_Success_SubsequentRequest(t *testing.T) {
	mockRedis := new(MockRedisClient)
	service := NewRateLimitService(mockRedis, rateLimitConfig(), nil, zap.NewNop())
	ctx := context.Background()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	mockRedis.On("Incr", ctx, rateLimitKey).Return(redis.NewIntResult(5, nil))
	mockRedis.On("TTL", ctx, rateLimitKey).Return(redis.NewDurationResult(45*time.Second, nil))

	allowed, remaining, resetAt, err := service.CheckRateLimit(ctx, "default")

	assert.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(55), remaining)
	assert.Equal(t, fixed.Add(45*time.Second), resetAt)
	mockRedis.AssertNotCalled(t, "Expire", mock.Anything, mock.Anything, mock.Anything)
	mockRedis.AssertExpectations(t)
}

func TestRateLimitService_CheckRateLimit_LastRequestInWindow(t *testing.T) {
	mockRedis := new(MockRedisClient)
	service := NewRateLimitService(mockRedis, rateLimitConfig(), nil, zap.NewNop())
	ctx := context.Background()

	mockRedis.On("Incr", ctx, rateLimitKey).Return(redis.NewIntResult(60, nil))
	mockRedis.On("TTL", ctx, rateLimitKey).Return(redis.NewDurationResult(time.Second, nil))

	allowed, remaining, _, err := service.CheckRateLimit(ctx, "default")

	assert.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(0), remaining)
}

func TestRateLimitService_CheckRateLimit_Exceeded(t *testing.T) {
	mockRedis := new(MockRedisClient)
	recorder := new(MockExceededRecorder)
	service := NewRateLimitService(mockRedis, rateLimitConfig(), recorder, zap.NewNop())
	ctx := context.Background()

	mockRedis.On("Incr", ctx, rateLimitKey).Return(redis.NewIntResult(61, nil))
	mockRedis.On("TTL", ctx, rateLimitKey).Return(redis.NewDurationResult(30*time.Second, nil))
	recorder.On("RecordRateLimitExceeded", "default").Once()

	allowed, remaining, resetAt, err := service.CheckRateLimit(ctx, "default")

	assert.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(0), remaining)
	assert.NotZero(t, resetAt)
	mockRedis.AssertNotCalled(t, "Expire", mock.Anything, mock.Anything, mock.Anything)
	mockRedis.AssertExpectations(t)
	recorder.AssertExpectations(t)
}

func TestRateLimitService_CheckRateLimit_RepairsMissingExpiry(t *testing.T) {
	mockRedis := new(MockRedisClient)
	service := NewRateLimitService(mockRedis, rateLimitConfig(), nil, zap.NewNop())
	ctx := context.Background()

	mockRedis.On("Incr", ctx, rateLimitKey).Return(redis.NewIntResult(7, nil))
	mockRedis.On("TTL", ctx, rateLimitKey).Return(redis.NewDurationResult(-1, nil))
	mockRedis.On("Expire", ctx, rateLimitKey, 60*time.Second).Return(redis.NewBoolResult(true, nil)).Once()

	allowed, remaining, _, err := service.CheckRateLimit(ctx, "default")

	assert.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(53), remaining)
	mockRedis.AssertExpectations(t)
}

func TestRateLimitService_CheckRateLimit_Disabled(t *testing.T) {
	mockRedis := new(MockRedisClient)
	service := NewRateLimitService(mockRedis, config.RateLimitConfig{Enabled: false}, nil, zap.NewNop())

	allowed, remaining, resetAt, err := service.CheckRateLimit(context.Background(), "default")

	assert.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(-1), remaining)
	assert.Zero(t, resetAt)
	mockRedis.AssertNotCalled(t, "Incr", mock.Anything, mock.Anything)
}

func TestRateLimitService_CheckRateLimit_RedisError(t *testing.T) {
	mockRedis := new(MockRedisClient)
	service := NewRateLimitService(mockRedis, rateLimitConfig(), nil, zap.NewNop())
	ctx := context.Background()

	mockRedis.On("Incr", ctx, rateLimitKey).Return(redis.NewIntResult(0, errors.New("redis connection error")))

	allowed, remaining, resetAt, err := service.CheckRateLimit(ctx, "default")

	assert.Error(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(0), remaining)
	assert.Zero(t, resetAt)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeDependencyUnavailable))
	assert.Equal(t, 503, domainerrors.GetHTTPStatus(err))
	mockRedis.AssertExpectations(t)
}

func TestRateLimitService_GetRateLimitError(t *testing.T) {
	service := NewRateLimitService(new(MockRedisClient), rateLimitConfig(), nil, zap.NewNop())

	rateLimitErr := service.GetRateLimitError(context.Background(), "default")

	assert.True(t, domainerrors.HasCode(rateLimitErr, domainerrors.CodeRateLimited))
	assert.Equal(t, 429, domainerrors.GetHTTPStatus(rateLimitErr))
}
