package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"egiro-gateway/internal/models"
	"egiro-gateway/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ProfileContextKey = "client_profile"
	SlugQueryParam    = "client_slug"
)

type ProfileProvider interface {
	GetProfile(ctx context.Context, slug string) (*models.ClientProfile, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, retryAfter time.Duration)
}

type TrustedProxyChecker interface {
	IsTrustedProxy(remoteAddr string) bool
}

type RateLimitRecorder interface {
	RecordRateLimitExceeded(clientSlug string)
}

type TenantMiddlewareConfig struct {
	TrustedProxyChecker TrustedProxyChecker
	// RateLimiter is optional. Nil disables per-tenant limiting.
	RateLimiter RateLimiter
	Recorder    RateLimitRecorder
}

// TenantMiddleware resolves the tenant named by client_slug and enforces its
// status, caller allowlist and rate limit. Requests without a slug pass
// through so that handler binding reports the missing field.
func TenantMiddleware(profiles ProfileProvider, logger *zap.Logger, config TenantMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := c.Query(SlugQueryParam)
		if slug == "" {
			c.Next()
			return
		}

		profile, err := profiles.GetProfile(c.Request.Context(), slug)
		if err != nil {
			code := errors.FormatCode(errors.CodeConfiguration)
			if domainErr, ok := errors.AsDomainError(err); ok {
				code = domainErr.AGCode()
			}
			respondError(c, logger, errors.GetHTTPStatus(err), code, "unknown client", err)
			return
		}

		if !profile.IsActive() {
			respondError(c, logger, http.StatusForbidden, errors.FormatCode(http.StatusForbidden), "client is not active", nil)
			return
		}

		clientIP := ClientIP(c.Request, config.TrustedProxyChecker)
		if !profile.ValidateIP(clientIP) {
			logger.Warn("caller address not in tenant allowlist",
				zap.String("client_slug", slug),
				zap.String("client_ip", clientIP),
			)
			respondError(c, logger, http.StatusForbidden, errors.FormatCode(http.StatusForbidden), "caller address not allowed", nil)
			return
		}

		if config.RateLimiter != nil {
			allowed, remaining, retryAfter := config.RateLimiter.Allow(c.Request.Context(), slug)
			setRateLimitHeaders(c, remaining, retryAfter)
			if !allowed {
				if config.Recorder != nil {
					config.Recorder.RecordRateLimitExceeded(slug)
				}
				respondError(c, logger, http.StatusTooManyRequests, errors.FormatCode(http.StatusTooManyRequests), "rate limit exceeded", nil)
				return
			}
		}

		c.Set(ProfileContextKey, profile)
		c.Request = c.Request.WithContext(models.WithClientProfile(c.Request.Context(), profile))
		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, remaining int, retryAfter time.Duration) {
	if remaining >= 0 {
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}
	if retryAfter > 0 {
		seconds := int((retryAfter + time.Second - 1) / time.Second)
		c.Header("Retry-After", strconv.Itoa(seconds))
	}
}

func respondError(c *gin.Context, logger *zap.Logger, statusCode int, code, message string, err error) {
	logger.Warn("request rejected by middleware",
		zap.Int("status_code", statusCode),
		zap.String("error_code", code),
		zap.Error(err),
	)

	entry := models.ErrorEntry{ErrorCode: code, ErrorMessage: message}
	if domainErr, ok := errors.AsDomainError(err); ok {
		entry.Details = domainErr.Details
	}
	c.AbortWithStatusJSON(statusCode, models.APIResponse{
		Success:    false,
		StatusCode: statusCode,
		Message:    message,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		TraceID:    c.GetString(TraceIDContextKey),
		Errors:     []models.ErrorEntry{entry},
	})
}

// GetProfileFromContext returns the tenant resolved by TenantMiddleware.
func GetProfileFromContext(c *gin.Context) *models.ClientProfile {
	value, exists := c.Get(ProfileContextKey)
	if !exists {
		return nil
	}
	profile, ok := value.(*models.ClientProfile)
	if !ok {
		return nil
	}
	return profile
}
