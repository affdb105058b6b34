package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/fenger067850/todo-manager/internal/pkg/metrics"
	"github.com/fenger067850/todo-manager/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// Limiter 按 key 判定是否放行。
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// RateLimit 按 "<name>:<client ip>" 限流，超限返回 429 与 retry_after（秒）。
//
// 限流器出错时放行并记录告警。
func RateLimit(limiter Limiter, name string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		d, err := limiter.Allow(c.Request.Context(), name+":"+c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limiter unavailable", slog.String("route", name), slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !d.Allowed {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			metrics.RateLimitRejectedTotal.WithLabelValues(name).Inc()
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": retry,
			})
			return
		}
		c.Next()
	}
}
