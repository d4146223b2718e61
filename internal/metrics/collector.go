// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/BaSui01/chatflow/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 会话指标
	sessionsActive *prometheus.GaugeVec
	sessionsTotal  *prometheus.CounterVec
	messagesTotal  *prometheus.CounterVec
	hubDropped     *prometheus.CounterVec

	// 对话引擎指标
	dialogProcessTotal    *prometheus.CounterVec
	dialogProcessDuration *prometheus.HistogramVec

	// 计数器指标
	counterOpsTotal *prometheus.CounterVec
	counterAttempts *prometheus.HistogramVec

	// 落库指标
	flushTotal    *prometheus.CounterVec
	flushMessages prometheus.Histogram
	flushDuration prometheus.Histogram

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，指标注册到默认 registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 会话指标
	c.sessionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_sessions_active",
			Help:      "Currently connected chat sessions",
		},
		[]string{"kind"}, // participant, operator
	)

	c.sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_sessions_total",
			Help:      "Total number of chat sessions opened",
		},
		[]string{"kind"},
	)

	c.messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Total number of logged chat messages",
		},
		[]string{"sender_kind"}, // participant, bot, operator
	)

	c.hubDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_hub_dropped_events_total",
			Help:      "Events dropped for slow subscribers",
		},
		[]string{"room"},
	)

	// 对话引擎指标
	c.dialogProcessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialog_process_total",
			Help:      "Total number of processed participant messages",
		},
		[]string{"bot", "outcome"}, // ok, invalid_option, ended, error code
	)

	c.dialogProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dialog_process_duration_seconds",
			Help:      "Dialog state machine processing time in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"bot"},
	)

	// 计数器指标
	c.counterOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_operations_total",
			Help:      "Total number of counter reserve/get operations",
		},
		[]string{"op", "status"},
	)

	c.counterAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "counter_attempts",
			Help:      "Optimistic transaction attempts per counter operation",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 64},
		},
		[]string{"op"},
	)

	// 落库指标
	c.flushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_flush_total",
			Help:      "Total number of message log flushes",
		},
		[]string{"status"},
	)

	c.flushMessages = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_flush_messages",
			Help:      "Messages written per flush",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	c.flushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_flush_duration_seconds",
			Help:      "Message log flush duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 💬 会话指标记录
// =============================================================================

// SessionOpened 记录会话建立
func (c *Collector) SessionOpened(kind string) {
	c.sessionsTotal.WithLabelValues(kind).Inc()
	c.sessionsActive.WithLabelValues(kind).Inc()
}

// SessionClosed 记录会话结束
func (c *Collector) SessionClosed(kind string) {
	c.sessionsActive.WithLabelValues(kind).Dec()
}

// RecordMessage 记录一条写入消息日志的消息
func (c *Collector) RecordMessage(senderKind string) {
	c.messagesTotal.WithLabelValues(senderKind).Inc()
}

// RecordDroppedEvent 记录因订阅者过慢丢弃的事件
func (c *Collector) RecordDroppedEvent(room string) {
	c.hubDropped.WithLabelValues(room).Inc()
}

// =============================================================================
// 🤖 对话引擎指标记录
// =============================================================================

// RecordProcess 记录一次状态机处理
func (c *Collector) RecordProcess(bot, outcome string, duration time.Duration) {
	c.dialogProcessTotal.WithLabelValues(bot, outcome).Inc()
	c.dialogProcessDuration.WithLabelValues(bot).Observe(duration.Seconds())
}

// RecordCounterOp 记录一次计数器操作，实现 counter.Recorder
func (c *Collector) RecordCounterOp(op string, attempts int, err error) {
	c.counterOpsTotal.WithLabelValues(op, outcome(err)).Inc()
	c.counterAttempts.WithLabelValues(op).Observe(float64(attempts))
}

// RecordFlush 记录一次消息落库
func (c *Collector) RecordFlush(messages int, duration time.Duration, err error) {
	c.flushTotal.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		c.flushMessages.Observe(float64(messages))
	}
	c.flushDuration.Observe(duration.Seconds())
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// outcome 把错误归类为 ok 或错误码
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := types.GetErrorCode(err); code != "" {
		return string(code)
	}
	return "error"
}

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
