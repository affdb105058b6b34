package middleware

import (
	"strconv"
	"time"

	"github.com/fenger067850/todo-manager/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics 按路由模板统计请求数与耗时，未匹配路由记为 "unmatched"。
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
