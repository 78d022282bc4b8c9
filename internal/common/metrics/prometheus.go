// Package metrics 提供 Prometheus 指标收集
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标收集器
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
	dbQueriesTotal       *prometheus.CounterVec
	dbQueryDuration      *prometheus.HistogramVec
	cacheHitsTotal       *prometheus.CounterVec
	cacheMissesTotal     *prometheus.CounterVec
	eventMessagesTotal   *prometheus.CounterVec
	clicksTotal          *prometheus.CounterVec
	conversionsTotal     *prometheus.CounterVec
	commissionsTotal     *prometheus.CounterVec
	commissionAmount     *prometheus.CounterVec
	withdrawalsTotal     *prometheus.CounterVec
	pendingCommissions   prometheus.Gauge
	sweepDuration        prometheus.Histogram
}

var defaultMetrics *Metrics

// Init 初始化指标收集器
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "affiliate_engine"
	}

	m := &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		dbQueriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		dbQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "table"},
		),
		cacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		cacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
		eventMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_messages_total",
				Help:      "Total number of published domain event messages",
			},
			[]string{"topic", "status"},
		),
		clicksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clicks_total",
				Help:      "Total number of recorded referral clicks",
			},
			[]string{"source"},
		),
		conversionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversions_total",
				Help:      "Total number of attributed signups",
			},
			[]string{"result"},
		),
		commissionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commissions_total",
				Help:      "Total number of commission records by status",
			},
			[]string{"type", "status"},
		),
		commissionAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commission_amount_total",
				Help:      "Accumulated commission amount by status",
			},
			[]string{"status"},
		),
		withdrawalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "withdrawals_total",
				Help:      "Total number of withdrawal status transitions",
			},
			[]string{"status"},
		),
		pendingCommissions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_commissions",
				Help:      "Number of commissions currently waiting for confirmation",
			},
		),
		sweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "expiration_sweep_duration_seconds",
				Help:      "Duration of the commission expiration sweep",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
	}

	defaultMetrics = m
	return m
}

// GetMetrics 获取默认指标收集器
func GetMetrics() *Metrics {
	if defaultMetrics == nil {
		return Init("")
	}
	return defaultMetrics
}

// Middleware 返回 Gin 中间件
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 跳过 metrics 端点本身
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		m.httpRequestsInFlight.Inc()

		c.Next()

		m.httpRequestsInFlight.Dec()
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// Handler 返回 Prometheus HTTP 处理器
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordDBQuery 记录数据库查询
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.dbQueriesTotal.WithLabelValues(operation, table).Inc()
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit(cache string) {
	m.cacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *Metrics) RecordCacheMiss(cache string) {
	m.cacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordEventMessage 记录事件消息发布
func (m *Metrics) RecordEventMessage(topic, status string) {
	m.eventMessagesTotal.WithLabelValues(topic, status).Inc()
}

// RecordClick 记录推广点击
func (m *Metrics) RecordClick(source string) {
	m.clicksTotal.WithLabelValues(source).Inc()
}

// RecordConversion 记录归因结果
func (m *Metrics) RecordConversion(result string) {
	m.conversionsTotal.WithLabelValues(result).Inc()
}

// RecordCommission 记录佣金状态变化
func (m *Metrics) RecordCommission(commissionType, status string, amount float64) {
	m.commissionsTotal.WithLabelValues(commissionType, status).Inc()
	m.commissionAmount.WithLabelValues(status).Add(amount)
}

// RecordWithdrawal 记录提现状态流转
func (m *Metrics) RecordWithdrawal(status string) {
	m.withdrawalsTotal.WithLabelValues(status).Inc()
}

// SetPendingCommissions 设置待确认佣金数
func (m *Metrics) SetPendingCommissions(count float64) {
	m.pendingCommissions.Set(count)
}

// ObserveSweepDuration 记录过期评估耗时
func (m *Metrics) ObserveSweepDuration(d time.Duration) {
	m.sweepDuration.Observe(d.Seconds())
}

// RecordClickGlobal 全局记录推广点击
func RecordClickGlobal(source string) {
	GetMetrics().RecordClick(source)
}

// RecordConversionGlobal 全局记录归因结果
func RecordConversionGlobal(result string) {
	GetMetrics().RecordConversion(result)
}

// RecordCommissionGlobal 全局记录佣金状态变化
func RecordCommissionGlobal(commissionType, status string, amount float64) {
	GetMetrics().RecordCommission(commissionType, status, amount)
}

// RecordWithdrawalGlobal 全局记录提现状态流转
func RecordWithdrawalGlobal(status string) {
	GetMetrics().RecordWithdrawal(status)
}
