package apiclient

import (
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// EnvBaseURL переменная окружения с базовым адресом API
	EnvBaseURL = "API_BASE_URL"

	// DefaultBaseURL адрес по умолчанию, если не задан ни в конфиге, ни в окружении
	DefaultBaseURL = "http://localhost:8000/api"

	DefaultTimeout            = 10 * time.Second
	DefaultRateLimitPerSecond = 10
	DefaultContentType        = "application/json"
)

// Config содержит конфигурацию клиента
type Config struct {
	// BaseURL базовый адрес, к которому разрешаются относительные URL запросов
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`

	// Timeout таймаут одной попытки, если в запросе не задан свой
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`

	// Headers заголовки по умолчанию; сливаются с Content-Type: application/json
	Headers map[string]string `koanf:"headers"`

	// RateLimitPerSecond ёмкость бакета и скорость пополнения в секунду. 0: значение по умолчанию
	RateLimitPerSecond int `koanf:"rate_limit_per_second" validate:"gte=0"`

	// MetricsEnabled включает/выключает сбор метрик (по умолчанию включено)
	MetricsEnabled *bool `koanf:"metrics_enabled"`

	// MetricsBackend бэкенд метрик: prometheus (по умолчанию) или otel
	MetricsBackend MetricsBackend `koanf:"metrics_backend" validate:"omitempty,oneof=prometheus otel"`

	// TracingEnabled включает/выключает OpenTelemetry трассировку
	TracingEnabled bool `koanf:"tracing_enabled"`

	// Transport базовый HTTP транспорт (опционально)
	Transport http.RoundTripper `koanf:"-" validate:"-"`

	// RateLimiter внешний лимитер вместо встроенного бакета (опционально)
	RateLimiter RateLimiter `koanf:"-" validate:"-"`

	// Credentials источник токена для заголовка Authorization (опционально)
	Credentials CredentialStore `koanf:"-" validate:"-"`

	// Middlewares дополнительные перехватчики, выполняются после авторизации
	Middlewares []Middleware `koanf:"-" validate:"-"`

	// Logger логгер; по умолчанию zap.NewNop()
	Logger *zap.Logger `koanf:"-" validate:"-"`

	// MetricsProvider готовый провайдер метрик (имеет приоритет над MetricsBackend)
	MetricsProvider MetricsProvider `koanf:"-" validate:"-"`

	// MeterProvider провайдер для бэкенда otel; по умолчанию глобальный
	MeterProvider metric.MeterProvider `koanf:"-" validate:"-"`

	// TracerProvider провайдер трассировки; по умолчанию глобальный
	TracerProvider trace.TracerProvider `koanf:"-" validate:"-"`
}

// withDefaults применяет значения по умолчанию к конфигурации
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = os.Getenv(EnvBaseURL)
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}

	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}

	if c.RateLimitPerSecond == 0 {
		c.RateLimitPerSecond = DefaultRateLimitPerSecond
	}

	headers := map[string]string{"Content-Type": DefaultContentType}
	for k, v := range c.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	c.Headers = headers

	if c.Transport == nil {
		c.Transport = http.DefaultTransport
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	if c.MetricsBackend == "" {
		c.MetricsBackend = MetricsBackendPrometheus
	}

	return c
}

// validate проверяет конфигурацию и возвращает ConfigurationError для первого нарушения.
func (c Config) validate() error {
	if c.RateLimitPerSecond < 0 {
		return NewConfigurationError("RateLimitPerSecond", c.RateLimitPerSecond, "must be at least 1")
	}
	if c.Timeout < 0 {
		return NewConfigurationError("Timeout", c.Timeout, "must not be negative")
	}
	if err := defaultValidator().Struct(c); err != nil {
		verr := newValidationError(err)
		if len(verr.Errors) > 0 {
			fe := verr.Errors[0]
			return NewConfigurationError(fe.Field, fe.Value, "failed '"+fe.Tag+"' check")
		}
		return NewConfigurationError("Config", nil, err.Error())
	}
	return nil
}

// metricsEnabled сообщает, включены ли метрики
func (c Config) metricsEnabled() bool {
	return c.MetricsEnabled == nil || *c.MetricsEnabled
}
