package apiclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gitlab.citydrive.tech/back-end/go/pkg/api-client/mock"
)

// countingTransport отвечает 200 и считает вызовы
type countingTransport struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader([]byte(`{}`))),
		Request:    req,
	}, nil
}

func (c *countingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestRequest(t *testing.T, ctx context.Context) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://api.test/devices", nil)
	require.NoError(t, err)
	return req
}

// newTestClient создаёт клиент поверх мок-транспорта без метрик
func newTestClient(t *testing.T, transport http.RoundTripper, mutate ...func(*Config)) *Client {
	t.Helper()
	disabled := false
	cfg := Config{
		BaseURL:        "http://api.test/api",
		Transport:      transport,
		MetricsEnabled: &disabled,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	client, err := New(cfg, "test-client")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// newObservedLogger логгер, записи которого можно проверить
func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

// withLogger подставляет логгер в конфигурацию
func withLogger(logger *zap.Logger) func(*Config) {
	return func(c *Config) { c.Logger = logger }
}

// newMockTransport сокращение для тестов
func newMockTransport(steps ...mock.Step) *mock.Transport {
	return mock.NewTransport(steps...)
}

func zapStringField(key, value string) zapcore.Field {
	return zap.String(key, value)
}
