package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextSubjectKey = "admin_subject"
	bearerPrefix      = "bearer "
)

// AdminRequired resolves the bearer token into a subject for the routes behind it.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		subject, err := s.authzSvc.Authenticate(c.Request.Context(), header[len(bearerPrefix):])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextSubjectKey, subject)
		c.Next()
	}
}

func (s *Server) AdminRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.limiter.AllowSubject(ctx, c.GetString(contextSubjectKey))
		if err != nil {
			logger.FromContext(ctx).Warn("admin rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
