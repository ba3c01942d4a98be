package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const ResultOK = "ok"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasurebuy_http_requests_total",
			Help: "HTTP请求总数",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "treasurebuy_http_request_duration_seconds",
			Help:    "HTTP请求耗时分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	checkoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasurebuy_checkout_total",
			Help: "结算次数，按结果分类",
		},
		[]string{"result"},
	)

	checkoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "treasurebuy_checkout_duration_seconds",
			Help:    "结算事务耗时分布",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	groupOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasurebuy_group_operations_total",
			Help: "拼团操作次数",
		},
		[]string{"operation", "result"},
	)

	walletOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasurebuy_wallet_operations_total",
			Help: "钱包入账/出账次数",
		},
		[]string{"direction", "result"},
	)
)

// Middleware 收集 HTTP 指标
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler 暴露 /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveCheckout(result string, duration time.Duration) {
	checkoutTotal.WithLabelValues(result).Inc()
	checkoutDuration.Observe(duration.Seconds())
}

func RecordGroupOp(operation, result string) {
	groupOpsTotal.WithLabelValues(operation, result).Inc()
}

func RecordWalletOp(direction, result string) {
	walletOpsTotal.WithLabelValues(direction, result).Inc()
}

// Result 将错误归类为指标标签，kind 为空时记为 error
func Result(err error, kind string) string {
	if err == nil {
		return ResultOK
	}
	if kind == "" {
		return "error"
	}
	return kind
}
