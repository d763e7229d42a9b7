package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

type MetricsRecorder interface {
	RecordRequest(endpoint, storefrontID, status string)
	RecordRequestDuration(endpoint, status string, duration time.Duration)
}

func MetricsMiddleware(metrics MetricsRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		c.Next()

		duration := time.Since(start)
		status := getStatusLabel(c.Writer.Status())

		metrics.RecordRequest(endpoint, getStorefrontID(c), status)
		metrics.RecordRequestDuration(endpoint, status, duration)
	}
}

func getStatusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "unknown"
}

func getStorefrontID(c *gin.Context) string {
	if sf := GetStorefrontFromContext(c); sf != nil {
		return sf.ID
	}
	return ""
}
