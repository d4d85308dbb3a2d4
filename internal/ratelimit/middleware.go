package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/entrada-events/entrada/internal/observability/metrics"
)

// Limit is the per-client budget for one endpoint group.
type Limit struct {
	Name  string
	Rate  float64
	Burst int
}

// GinMiddleware limits by client IP. It fails open when redis is down:
// losing rate limiting briefly beats rejecting paid registrations.
func GinMiddleware(bucket *TokenBucket, limit Limit, log *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	if bucket == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:%s:%s", limit.Name, c.ClientIP())

		res, err := bucket.Allow(c.Request.Context(), key, limit.Rate, limit.Burst)
		if err != nil {
			log.Warn("rate limiter unavailable, allowing request",
				zap.String("endpoint", limit.Name),
				zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			m.RecordRateLimitDenied(c.Request.Context(), limit.Name)
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate_limited",
			})
			return
		}
		c.Next()
	}
}
