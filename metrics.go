package apiclient

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics содержит конфигурацию метрик для конкретного клиента.
type Metrics struct {
	clientName string
	enabled    bool
	provider   MetricsProvider
}

// NewMetrics создаёт новый экземпляр метрик с Prometheus провайдером по умолчанию.
func NewMetrics(clientName string) *Metrics {
	return NewMetricsWithProvider(clientName, NewPrometheusMetricsProvider(clientName, nil))
}

// NewDisabledMetrics создаёт экземпляр метрик с выключенным сбором.
func NewDisabledMetrics(clientName string) *Metrics {
	return &Metrics{
		clientName: clientName,
		enabled:    false,
		provider:   NewNoopMetricsProvider(),
	}
}

// NewMetricsWithProvider создаёт экземпляр метрик с указанным провайдером.
func NewMetricsWithProvider(clientName string, provider MetricsProvider) *Metrics {
	// Метрики считаются включенными, если провайдер не noop
	enabled := provider != nil
	if _, ok := provider.(*NoopMetricsProvider); ok {
		enabled = false
	}
	return &Metrics{
		clientName: clientName,
		enabled:    enabled,
		provider:   provider,
	}
}

// newMetricsFromConfig выбирает провайдер по конфигурации.
func newMetricsFromConfig(cfg Config, clientName string) *Metrics {
	if !cfg.metricsEnabled() {
		return NewDisabledMetrics(clientName)
	}
	if cfg.MetricsProvider != nil {
		return NewMetricsWithProvider(clientName, cfg.MetricsProvider)
	}
	if cfg.MetricsBackend == MetricsBackendOpenTelemetry {
		return NewMetricsWithProvider(clientName, NewOpenTelemetryMetricsProvider(clientName, cfg.MeterProvider))
	}
	return NewMetrics(clientName)
}

// Enabled сообщает, собираются ли метрики.
func (m *Metrics) Enabled() bool {
	return m.enabled
}

// RecordRequest записывает метрики для попытки.
func (m *Metrics) RecordRequest(ctx context.Context, method, host, status string, retry bool, errorKind ErrorKind) {
	if !m.enabled || m.provider == nil {
		return
	}
	m.provider.RecordRequest(ctx, method, host, status, retry, string(errorKind))
}

// RecordDuration записывает длительность попытки.
func (m *Metrics) RecordDuration(ctx context.Context, duration float64, method, host, status string, attempt int) {
	if !m.enabled || m.provider == nil {
		return
	}
	m.provider.RecordDuration(ctx, duration, method, host, status, attempt)
}

// RecordRetry записывает метрику retry.
func (m *Metrics) RecordRetry(ctx context.Context, reason, method, host string) {
	if !m.enabled || m.provider == nil {
		return
	}
	m.provider.RecordRetry(ctx, reason, method, host)
}

// RecordRequestSize записывает размер запроса.
func (m *Metrics) RecordRequestSize(ctx context.Context, size int64, method, host string) {
	if !m.enabled || m.provider == nil {
		return
	}
	m.provider.RecordRequestSize(ctx, size, method, host)
}

// RecordResponseSize записывает размер ответа.
func (m *Metrics) RecordResponseSize(ctx context.Context, size int64, method, host, status string) {
	if !m.enabled || m.provider == nil {
		return
	}
	m.provider.RecordResponseSize(ctx, size, method, host, status)
}

// RecordRateLimitWait записывает ожидание токенов лимитера.
func (m *Metrics) RecordRateLimitWait(ctx context.Context, seconds float64, host string) {
	if !m.enabled || m.provider == nil {
		return
	}
	m.provider.RecordRateLimitWait(ctx, seconds, host)
}

// SetQueueDepth записывает длину очереди.
func (m *Metrics) SetQueueDepth(ctx context.Context, depth int) {
	if !m.enabled || m.provider == nil {
		return
	}
	m.provider.SetQueueDepth(ctx, depth)
}

// IncrementInflight увеличивает счётчик активных запросов.
func (m *Metrics) IncrementInflight(ctx context.Context, method, host string) {
	if !m.enabled || m.provider == nil {
		return
	}
	m.provider.InflightInc(ctx, method, host)
}

// DecrementInflight уменьшает счётчик активных запросов.
func (m *Metrics) DecrementInflight(ctx context.Context, method, host string) {
	if !m.enabled || m.provider == nil {
		return
	}
	m.provider.InflightDec(ctx, method, host)
}

// Close освобождает ресурсы метрик.
func (m *Metrics) Close() error {
	if m.provider != nil {
		return m.provider.Close()
	}
	return nil
}

// GetDefaultMetricsRegistry возвращает глобальный Prometheus DefaultGatherer.
// Используется для создания HTTP обработчика метрик через promhttp.HandlerFor().
func GetDefaultMetricsRegistry() prometheus.Gatherer {
	return prometheus.DefaultGatherer
}
