package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器。
// 所有方法对 nil 接收者安全，未配置监控的组件可以直接传 nil。
type Monitor struct {
	registry *prometheus.Registry
	factory  promauto.Factory
	cfg      Config

	// feed 指标
	ticks          *prometheus.CounterVec
	tickErrors     *prometheus.CounterVec
	pollFailures   prometheus.Counter
	recordsSkipped prometheus.Counter
	symbols        prometheus.Gauge

	// REST 指标
	restRequests *prometheus.CounterVec
	restErrors   *prometheus.CounterVec
	restLatency  *prometheus.HistogramVec

	// 推送指标
	streamClients  *prometheus.GaugeVec
	streamMessages *prometheus.CounterVec
	mirrorErrors   prometheus.Counter
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "feed",
		Subsystem: "market",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,
		factory:  factory,
		cfg:      cfg,

		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ticks_total",
			Help:      "行情源成功写入的周期数",
		}, []string{"source"}),
		tickErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tick_errors_total",
			Help:      "单个周期内失败的次数",
		}, []string{"source"}),
		pollFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "poll_failures_total",
			Help:      "远端快照拉取失败次数",
		}),
		recordsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "records_skipped_total",
			Help:      "被跳过的异常快照记录数",
		}),
		symbols: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "symbols",
			Help:      "当前跟踪的标的数量",
		}),

		restRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_requests_total",
			Help:      "REST请求总数",
		}, []string{"action"}),
		restErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_errors_total",
			Help:      "REST错误总数",
		}, []string{"action"}),
		restLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_latency_seconds",
			Help:      "REST请求延迟（秒）",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),

		streamClients: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_clients",
			Help:      "当前连接的推送客户端数",
		}, []string{"transport"}),
		streamMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_messages_total",
			Help:      "已推送的价格表消息数",
		}, []string{"transport"}),
		mirrorErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "mirror_errors_total",
			Help:      "Redis 镜像写入失败次数",
		}),
	}
}

// ObserveStoreVersion 以 GaugeFunc 暴露缓存版本号。
func (m *Monitor) ObserveStoreVersion(version func() uint64) {
	if m == nil || version == nil {
		return
	}
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.cfg.Namespace,
		Subsystem: m.cfg.Subsystem,
		Name:      "store_version",
		Help:      "价格缓存版本号",
	}, func() float64 { return float64(version()) })
}

// feed 相关方法
func (m *Monitor) RecordTick(source string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(source).Inc()
}

func (m *Monitor) RecordTickError(source string) {
	if m == nil {
		return
	}
	m.tickErrors.WithLabelValues(source).Inc()
}

func (m *Monitor) RecordPollFailure() {
	if m == nil {
		return
	}
	m.pollFailures.Inc()
}

func (m *Monitor) RecordSkippedRecord() {
	if m == nil {
		return
	}
	m.recordsSkipped.Inc()
}

func (m *Monitor) UpdateSymbols(n int) {
	if m == nil {
		return
	}
	m.symbols.Set(float64(n))
}

// REST 相关方法
func (m *Monitor) RecordRESTRequest(action string) {
	if m == nil {
		return
	}
	m.restRequests.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTError(action string) {
	if m == nil {
		return
	}
	m.restErrors.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTLatency(action string, seconds float64) {
	if m == nil {
		return
	}
	m.restLatency.WithLabelValues(action).Observe(seconds)
}

// 推送相关方法
func (m *Monitor) StreamConnected(transport string) {
	if m == nil {
		return
	}
	m.streamClients.WithLabelValues(transport).Inc()
}

func (m *Monitor) StreamDisconnected(transport string) {
	if m == nil {
		return
	}
	m.streamClients.WithLabelValues(transport).Dec()
}

func (m *Monitor) RecordStreamMessage(transport string) {
	if m == nil {
		return
	}
	m.streamMessages.WithLabelValues(transport).Inc()
}

func (m *Monitor) RecordMirrorError() {
	if m == nil {
		return
	}
	m.mirrorErrors.Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
