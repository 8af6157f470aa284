package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

type MetricsRecorder interface {
	RecordRequest(endpoint, clientSlug, status string)
	RecordRequestDuration(endpoint, status string, duration time.Duration)
}

// MetricsMiddleware records one request sample per call. The tenant label is
// only taken from a resolved profile so unknown slugs cannot grow the series.
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

		metrics.RecordRequest(endpoint, getClientSlug(c), status)
		metrics.RecordRequestDuration(endpoint, status, duration)
	}
}

func getStatusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode >= 300 && statusCode < 400:
		return "redirect"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "unknown"
}

func getClientSlug(c *gin.Context) string {
	if profile := GetProfileFromContext(c); profile != nil {
		return profile.Slug
	}
	return ""
}
