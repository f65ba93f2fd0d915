package middleware

import (
	"strconv"
	"time"

	"github.com/HemantRana01/TODO/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// RequestMetrics 记录请求计数与耗时。路径使用路由模板，避免标签爆炸。
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if metrics.HTTPRequestsTotal != nil {
			metrics.HTTPRequestsTotal.
				WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
				Inc()
		}
		if metrics.HTTPRequestDuration != nil {
			metrics.HTTPRequestDuration.
				WithLabelValues(c.Request.Method, path).
				Observe(time.Since(start).Seconds())
		}
	}
}
