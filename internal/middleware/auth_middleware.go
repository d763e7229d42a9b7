package middleware

import (
	"context"
	"encoding/base64"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"letknow-gateway/internal/models"
	"letknow-gateway/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const StorefrontContextKey = "storefront"

type AuthService interface {
	AuthenticateStorefront(ctx context.Context, storefrontID, apiKey, clientIP string) (*models.Storefront, error)
}

type RateLimitService interface {
	CheckRateLimit(ctx context.Context, storefrontID string) (allowed bool, remaining int64, resetAt time.Time, err error)
	GetRateLimitError(ctx context.Context, storefrontID string) error
}

type TrustedProxyChecker interface {
	IsTrustedProxy(remoteAddr string) bool
}

type AuthMiddlewareConfig struct {
	TrustedProxyChecker TrustedProxyChecker
}

func AuthMiddleware(authService AuthService, rateLimitService RateLimitService, logger *zap.Logger) gin.HandlerFunc {
	return AuthMiddlewareWithConfig(authService, rateLimitService, logger, AuthMiddlewareConfig{})
}

// AuthMiddlewareWithConfig accepts "Basic storefront_id:api_key" or "Bearer api_key".
// Bearer keys authenticate against the default storefront.
func AuthMiddlewareWithConfig(authService AuthService, rateLimitService RateLimitService, logger *zap.Logger, config AuthMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		storefrontID, apiKey, ok := extractCredentials(c)
		if !ok {
			respondError(c, logger, http.StatusUnauthorized, errors.NewDomainError(errors.CodeAuthFailed, "authentication failed", "missing credentials"))
			c.Abort()
			return
		}

		clientIP := extractClientIP(c, config.TrustedProxyChecker)
		sf, err := authService.AuthenticateStorefront(c.Request.Context(), storefrontID, apiKey, clientIP)
		if err != nil {
			respondError(c, logger, errors.GetHTTPStatus(err), err)
			c.Abort()
			return
		}

		allowed, remaining, resetAt, err := rateLimitService.CheckRateLimit(c.Request.Context(), sf.ID)
		if err != nil {
			respondError(c, logger, errors.GetHTTPStatus(err), err)
			c.Abort()
			return
		}

		if !allowed {
			rateLimitErr := rateLimitService.GetRateLimitError(c.Request.Context(), sf.ID)
			setRateLimitHeaders(c, 0, resetAt)
			respondError(c, logger, http.StatusTooManyRequests, rateLimitErr)
			c.Abort()
			return
		}

		setRateLimitHeaders(c, remaining, resetAt)
		c.Set(StorefrontContextKey, sf)
		c.Next()
	}
}

func extractCredentials(c *gin.Context) (storefrontID, apiKey string, ok bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "", false
	}

	if strings.HasPrefix(authHeader, "Basic ") {
		return extractBasicAuth(authHeader)
	}

	if strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return "", "", false
		}
		return "", token, true
	}

	return "", "", false
}

func extractBasicAuth(authHeader string) (storefrontID, apiKey string, ok bool) {
	encoded := strings.TrimPrefix(authHeader, "Basic ")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", false
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	return parts[0], parts[1], true
}

func extractClientIP(c *gin.Context, proxyChecker TrustedProxyChecker) string {
	remoteAddr := c.Request.RemoteAddr
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	// Only trust proxy headers if request comes from a trusted proxy
	if proxyChecker != nil && proxyChecker.IsTrustedProxy(host) {
		if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}

		if xrip := c.GetHeader("X-Real-IP"); xrip != "" {
			return xrip
		}
	}

	return host
}

func setRateLimitHeaders(c *gin.Context, remaining int64, resetAt time.Time) {
	if remaining >= 0 {
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	}

	if !resetAt.IsZero() {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		retryAfter := int(time.Until(resetAt).Seconds())
		if retryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
		}
	}
}

// respondError writes a sanitized failure body; details stay in the log.
func respondError(c *gin.Context, logger *zap.Logger, statusCode int, err error) {
	logger.Warn("request rejected by middleware",
		zap.Int("status_code", statusCode),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)

	body := gin.H{
		"result":  models.ResultFailure,
		"message": "request rejected",
	}
	if domainErr, ok := errors.AsDomainError(err); ok {
		body["code"] = domainErr.Code
	}
	c.JSON(statusCode, body)
}

func GetStorefrontFromContext(c *gin.Context) *models.Storefront {
	value, exists := c.Get(StorefrontContextKey)
	if !exists {
		return nil
	}

	sf, ok := value.(*models.Storefront)
	if !ok {
		return nil
	}

	return sf
}
