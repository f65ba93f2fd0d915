package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	// HTTPRequestsTotal 按方法/路径/状态码统计请求数。
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration 请求耗时分布。
	HTTPRequestDuration *prometheus.HistogramVec

	// TodosCreatedTotal 创建待办总数。
	TodosCreatedTotal prometheus.Counter

	// AuthFailuresTotal 认证失败总数（登录/令牌校验）。
	AuthFailuresTotal prometheus.Counter
)

// InitMetrics 初始化并注册 Prometheus 指标。多次调用只生效一次。
func InitMetrics() {
	initOnce.Do(func() {
		HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todohive_http_requests_total",
			Help: "Total HTTP requests handled.",
		}, []string{"method", "path", "status"})

		HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "todohive_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		TodosCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todohive_todos_created_total",
			Help: "Total todos created.",
		})

		AuthFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todohive_auth_failures_total",
			Help: "Total rejected authentication attempts.",
		})

		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			TodosCreatedTotal,
			AuthFailuresTotal,
		)
	})
}
