package apiclient

import (
	"context"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// prometheusGlobalMetrics содержит векторы метрик Prometheus одного регистратора.
type prometheusGlobalMetrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RetriesTotal     *prometheus.CounterVec
	InflightRequests *prometheus.GaugeVec
	RequestSize      *prometheus.HistogramVec
	ResponseSize     *prometheus.HistogramVec
	RateLimitWait    *prometheus.HistogramVec
	QueueDepth       *prometheus.GaugeVec
}

// globalPrometheusMetrics кеширует зарегистрированные метрики по регистратору,
// чтобы несколько клиентов могли жить в одном процессе.
var (
	globalPrometheusMetrics sync.Map // map[prometheus.Registerer]*prometheusGlobalMetrics
	prometheusRegisterMu    sync.Mutex
)

// PrometheusMetricsProvider - провайдер для сбора метрик через Prometheus.
type PrometheusMetricsProvider struct {
	clientName string
	metrics    *prometheusGlobalMetrics
}

// NewPrometheusMetricsProvider создает новый провайдер метрик Prometheus.
func NewPrometheusMetricsProvider(clientName string, reg prometheus.Registerer) *PrometheusMetricsProvider {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	registryKey := reg

	prometheusRegisterMu.Lock()
	defer prometheusRegisterMu.Unlock()

	metrics, exists := globalPrometheusMetrics.Load(registryKey)
	if !exists {
		newMetrics := &prometheusGlobalMetrics{
			RequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: MetricRequestsTotal,
					Help: "Total number of API client request attempts",
				},
				[]string{"client_name", "method", "host", "status", "retry", "error_kind"},
			),
			RequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    MetricRequestDuration,
					Help:    "API client attempt duration in seconds",
					Buckets: DefaultDurationBuckets,
				},
				[]string{"client_name", "method", "host", "status", "attempt"},
			),
			RetriesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: MetricRetriesTotal,
					Help: "Total number of API client retries",
				},
				[]string{"client_name", "reason", "method", "host"},
			),
			InflightRequests: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: MetricInflightRequests,
					Help: "Number of API client requests currently in-flight",
				},
				[]string{"client_name", "method", "host"},
			),
			RequestSize: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    MetricRequestSizeBytes,
					Help:    "API client request size in bytes",
					Buckets: DefaultSizeBuckets,
				},
				[]string{"client_name", "method", "host"},
			),
			ResponseSize: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    MetricResponseSizeBytes,
					Help:    "API client response size in bytes",
					Buckets: DefaultSizeBuckets,
				},
				[]string{"client_name", "method", "host", "status"},
			),
			RateLimitWait: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    MetricRateLimitWait,
					Help:    "Time spent waiting for rate limiter tokens in seconds",
					Buckets: DefaultWaitBuckets,
				},
				[]string{"client_name", "host"},
			),
			QueueDepth: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: MetricQueueDepth,
					Help: "Number of requests waiting in the sequential queue",
				},
				[]string{"client_name"},
			),
		}

		reg.MustRegister(
			newMetrics.RequestsTotal,
			newMetrics.RequestDuration,
			newMetrics.RetriesTotal,
			newMetrics.InflightRequests,
			newMetrics.RequestSize,
			newMetrics.ResponseSize,
			newMetrics.RateLimitWait,
			newMetrics.QueueDepth,
		)

		globalPrometheusMetrics.Store(registryKey, newMetrics)
		metrics = newMetrics
	}

	return &PrometheusMetricsProvider{
		clientName: clientName,
		metrics:    metrics.(*prometheusGlobalMetrics),
	}
}

// RecordRequest записывает метрику попытки.
func (p *PrometheusMetricsProvider) RecordRequest(_ context.Context, method, host, status string, retry bool, errorKind string) {
	p.metrics.RequestsTotal.WithLabelValues(p.clientName, method, host, status, strconv.FormatBool(retry), errorKind).Inc()
}

// RecordDuration записывает длительность попытки.
func (p *PrometheusMetricsProvider) RecordDuration(_ context.Context, seconds float64, method, host, status string, attempt int) {
	p.metrics.RequestDuration.WithLabelValues(p.clientName, method, host, status, strconv.Itoa(attempt)).Observe(seconds)
}

// RecordRetry записывает метрику повторной попытки.
func (p *PrometheusMetricsProvider) RecordRetry(_ context.Context, reason, method, host string) {
	p.metrics.RetriesTotal.WithLabelValues(p.clientName, reason, method, host).Inc()
}

// RecordRequestSize записывает размер запроса.
func (p *PrometheusMetricsProvider) RecordRequestSize(_ context.Context, bytes int64, method, host string) {
	p.metrics.RequestSize.WithLabelValues(p.clientName, method, host).Observe(float64(bytes))
}

// RecordResponseSize записывает размер ответа.
func (p *PrometheusMetricsProvider) RecordResponseSize(_ context.Context, bytes int64, method, host, status string) {
	p.metrics.ResponseSize.WithLabelValues(p.clientName, method, host, status).Observe(float64(bytes))
}

// RecordRateLimitWait записывает ожидание токенов.
func (p *PrometheusMetricsProvider) RecordRateLimitWait(_ context.Context, seconds float64, host string) {
	p.metrics.RateLimitWait.WithLabelValues(p.clientName, host).Observe(seconds)
}

// SetQueueDepth записывает длину очереди.
func (p *PrometheusMetricsProvider) SetQueueDepth(_ context.Context, depth int) {
	p.metrics.QueueDepth.WithLabelValues(p.clientName).Set(float64(depth))
}

// InflightInc увеличивает счетчик активных запросов.
func (p *PrometheusMetricsProvider) InflightInc(_ context.Context, method, host string) {
	p.metrics.InflightRequests.WithLabelValues(p.clientName, method, host).Inc()
}

// InflightDec уменьшает счетчик активных запросов.
func (p *PrometheusMetricsProvider) InflightDec(_ context.Context, method, host string) {
	p.metrics.InflightRequests.WithLabelValues(p.clientName, method, host).Dec()
}

// Close освобождает ресурсы.
func (p *PrometheusMetricsProvider) Close() error {
	return nil
}
