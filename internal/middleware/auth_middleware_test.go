package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"letknow-gateway/internal/models"
	domainerrors "letknow-gateway/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) AuthenticateStorefront(ctx context.Context, storefrontID, apiKey, clientIP string) (*models.Storefront, error) {
	args := m.Called(ctx, storefrontID, apiKey, clientIP)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Storefront), args.Error(1)
}

type MockRateLimitService struct {
	mock.Mock
}

func (m *MockRateLimitService) CheckRateLimit(ctx context.Context, storefrontID string) (allowed bool, remaining int64, resetAt time.Time, err error) {
	args := m.Called(ctx, storefrontID)
	return args.Bool(0), args.Get(1).(int64), args.Get(2).(time.Time), args.Error(3)
}

func (m *MockRateLimitService) GetRateLimitError(ctx context.Context, storefrontID string) error {
	args := m.Called(ctx, storefrontID)
	return args.Error(0)
}

var defaultStorefront = &models.Storefront{ID: "default"}

func newTestContext(remoteAddr string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/payments", nil)
	c.Request.RemoteAddr = remoteAddr
	return c, w
}

func TestAuthMiddleware_BasicAuthSuccess(t *testing.T) {
	mockAuth := new(MockAuthService)
	mockRateLimit := new(MockRateLimitService)
	middleware := AuthMiddleware(mockAuth, mockRateLimit, zap.NewNop())

	c, w := newTestContext("192.168.1.1:8080")
	c.Request.SetBasicAuth("default", "sk_live")

	mockAuth.On("AuthenticateStorefront", c.Request.Context(), "default", "sk_live", "192.168.1.1").Return(defaultStorefront, nil)
	mockRateLimit.On("CheckRateLimit", c.Request.Context(), "default").Return(true, int64(59), time.Now().Add(60*time.Second), nil)

	middleware(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, c.IsAborted())
	assert.Equal(t, defaultStorefront, GetStorefrontFromContext(c))
	mockAuth.AssertExpectations(t)
	mockRateLimit.AssertExpectations(t)
}

func TestAuthMiddleware_BearerTokenUsesDefaultStorefront(t *testing.T) {
	mockAuth := new(MockAuthService)
	mockRateLimit := new(MockRateLimitService)
	middleware := AuthMiddleware(mockAuth, mockRateLimit, zap.NewNop())

	c, w := newTestContext("192.168.1.1:8080")
	c.Request.Header.Set("Authorization", "Bearer opaque-token-with:colons")

	mockAuth.On("AuthenticateStorefront", c.Request.Context(), "", "opaque-token-with:colons", "192.168.1.1").Return(defaultStorefront, nil)
	mockRateLimit.On("CheckRateLimit", c.Request.Context(), "default").Return(true, int64(59), time.Now().Add(60*time.Second), nil)

	middleware(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockAuth.AssertExpectations(t)
}

func TestAuthMiddleware_MissingAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"empty bearer", "Bearer "},
		{"unknown scheme", "Token abc"},
		{"basic without key", "Basic ZGVmYXVsdDo="},
		{"basic not base64", "Basic !!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuth := new(MockAuthService)
			mockRateLimit := new(MockRateLimitService)
			middleware := AuthMiddleware(mockAuth, mockRateLimit, zap.NewNop())

			c, w := newTestContext("192.168.1.1:8080")
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}

			middleware(c)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.True(t, c.IsAborted())
			mockAuth.AssertNotCalled(t, "AuthenticateStorefront", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAuthMiddleware_InvalidCredentialsSanitized(t *testing.T) {
	mockAuth := new(MockAuthService)
	mockRateLimit := new(MockRateLimitService)
	middleware := AuthMiddleware(mockAuth, mockRateLimit, zap.NewNop())

	c, w := newTestContext("192.168.1.1:8080")
	c.Request.SetBasicAuth("default", "wrong")

	authErr := domainerrors.NewDomainError(domainerrors.CodeAuthFailed, "authentication failed", "invalid credentials")
	mockAuth.On("AuthenticateStorefront", c.Request.Context(), "default", "wrong", "192.168.1.1").Return(nil, authErr)

	middleware(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "failure", response["result"])
	assert.Equal(t, "request rejected", response["message"])
	assert.Equal(t, float64(domainerrors.CodeAuthFailed), response["code"])
	assert.NotContains(t, w.Body.String(), "invalid credentials")
	mockRateLimit.AssertNotCalled(t, "CheckRateLimit", mock.Anything, mock.Anything)
}

func TestAuthMiddleware_RateLimitExceeded(t *testing.T) {
	mockAuth := new(MockAuthService)
	mockRateLimit := new(MockRateLimitService)
	middleware := AuthMiddleware(mockAuth, mockRateLimit, zap.NewNop())

	c, w := newTestContext("192.168.1.1:8080")
	c.Request.SetBasicAuth("default", "sk_live")

	resetAt := time.Now().Add(30 * time.Second)
	mockAuth.On("AuthenticateStorefront", mock.Anything, "default", "sk_live", "192.168.1.1").Return(defaultStorefront, nil)
	mockRateLimit.On("CheckRateLimit", mock.Anything, "default").Return(false, int64(0), resetAt, nil)
	mockRateLimit.On("GetRateLimitError", mock.Anything, "default").
		Return(domainerrors.NewDomainError(domainerrors.CodeRateLimited, "rate limit exceeded", ""))

	middleware(c)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.True(t, c.IsAborted())
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestAuthMiddleware_RateLimitRedisError(t *testing.T) {
	mockAuth := new(MockAuthService)
	mockRateLimit := new(MockRateLimitService)
	middleware := AuthMiddleware(mockAuth, mockRateLimit, zap.NewNop())

	c, w := newTestContext("192.168.1.1:8080")
	c.Request.SetBasicAuth("default", "sk_live")

	mockAuth.On("AuthenticateStorefront", mock.Anything, "default", "sk_live", "192.168.1.1").Return(defaultStorefront, nil)
	mockRateLimit.On("CheckRateLimit", mock.Anything, "default").
		Return(false, int64(0), time.Time{}, domainerrors.NewDomainError(domainerrors.CodeDependencyUnavailable, "rate limiting unavailable", "redis error"))

	middleware(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.True(t, c.IsAborted())
}

func TestAuthMiddleware_SetsRateLimitHeaders(t *testing.T) {
	mockAuth := new(MockAuthService)
	mockRateLimit := new(MockRateLimitService)
	middleware := AuthMiddleware(mockAuth, mockRateLimit, zap.NewNop())

	c, w := newTestContext("192.168.1.1:8080")
	c.Request.SetBasicAuth("default", "sk_live")

	resetAt := time.Now().Add(45 * time.Second)
	mockAuth.On("AuthenticateStorefront", mock.Anything, "default", "sk_live", "192.168.1.1").Return(defaultStorefront, nil)
	mockRateLimit.On("CheckRateLimit", mock.Anything, "default").Return(true, int64(45), resetAt, nil)

	middleware(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "45", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestAuthMiddleware_DisabledRateLimitOmitsRemaining(t *testing.T) {
	mockAuth := new(MockAuthService)
	mockRateLimit := new(MockRateLimitService)
	middleware := AuthMiddleware(mockAuth, mockRateLimit, zap.NewNop())

	c, w := newTestContext("192.168.1.1:8080")
	c.Request.SetBasicAuth("default", "sk_live")

	mockAuth.On("AuthenticateStorefront", mock.Anything, "default", "sk_live", "192.168.1.1").Return(defaultStorefront, nil)
	mockRateLimit.On("CheckRateLimit", mock.Anything, "default").Return(true, int64(-1), time.Time{}, nil)

	middleware(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Remaining"))
	assert.Empty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestAuthMiddleware_TrustedProxyHeaders(t *testing.T) {
	mockAuth := new(MockAuthService)
	mockRateLimit := new(MockRateLimitService)

	trustedProxy, err := NewTrustedProxyList([]string{"10.0.0.0/8", "172.16.0.0/12"})
	require.NoError(t, err)
	middleware := AuthMiddlewareWithConfig(mockAuth, mockRateLimit, zap.NewNop(), AuthMiddlewareConfig{TrustedProxyChecker: trustedProxy})

	c, w := newTestContext("10.0.0.1:54321")
	c.Request.SetBasicAuth("default", "sk_live")
	c.Request.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.7")

	mockAuth.On("AuthenticateStorefront", mock.Anything, "default", "sk_live", "203.0.113.1").Return(defaultStorefront, nil)
	mockRateLimit.On("CheckRateLimit", mock.Anything, "default").Return(true, int64(59), time.Now().Add(time.Minute), nil)

	middleware(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockAuth.AssertExpectations(t)
}

func TestAuthMiddleware_UntrustedProxyHeadersIgnored(t *testing.T) {
	mockAuth := new(MockAuthService)
	mockRateLimit := new(MockRateLimitService)

	trustedProxy, err := NewTrustedProxyList([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	middleware := AuthMiddlewareWithConfig(mockAuth, mockRateLimit, zap.NewNop(), AuthMiddlewareConfig{TrustedProxyChecker: trustedProxy})

	c, w := newTestContext("192.168.1.1:8080")
	c.Request.SetBasicAuth("default", "sk_live")
	c.Request.Header.Set("X-Forwarded-For", "127.0.0.1")

	mockAuth.On("AuthenticateStorefront", mock.Anything, "default", "sk_live", "192.168.1.1").Return(defaultStorefront, nil)
	mockRateLimit.On("CheckRateLimit", mock.Anything, "default").Return(true, int64(59), time.Now().Add(time.Minute), nil)

	middleware(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockAuth.AssertExpectations(t)
}
