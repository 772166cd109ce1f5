// Package apiclient предоставляет HTTP клиент панели управления оборудованием:
// ограничение частоты запросов (token bucket), последовательную очередь,
// повторы с фиксированной задержкой и цепочку перехватчиков с логированием
// и классификацией ошибок.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Response ответ на логический запрос с уже прочитанным телом.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	URL        string
	RequestID  string
	Attempts   int
	Duration   time.Duration
}

// Client оркестрирует запросы: очередь → лимитер → перехватчики → транспорт → повтор.
// Состояние лимитера принадлежит экземпляру клиента.
type Client struct {
	httpClient *http.Client
	config     Config
	limiter    RateLimiter
	queue      *RequestQueue
	metrics    *Metrics
	tracer     *Tracer
	logger     *zap.Logger
	name       string
}

// call состояние одного логического запроса, общее для всех его попыток.
type call struct {
	url       string
	method    string
	host      string
	body      *encodedBody
	requestID string
	attempt   int
	started   time.Time
}

// New создаёт новый клиент с указанной конфигурацией.
func New(config Config, name string) (*Client, error) {
	config = config.withDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	if name == "" {
		name = "api-client"
	}

	logger := config.Logger.With(zap.String("client", name))
	metrics := newMetricsFromConfig(config, name)

	var tracer *Tracer
	if config.TracingEnabled {
		if config.TracerProvider != nil {
			tracer = NewTracerWithProvider(config.TracerProvider)
		} else {
			tracer = NewTracer()
		}
	}

	limiter := config.RateLimiter
	if limiter == nil {
		limiter = NewPerSecondLimiter(config.RateLimitPerSecond)
	}

	// Порядок: идентификатор попытки → авторизация → пользовательские → логирование.
	// Логирование последним, чтобы видеть итоговые заголовки.
	chain := NewMiddlewareChain(NewRequestIDMiddleware(), NewAuthMiddleware(config.Credentials))
	for _, m := range config.Middlewares {
		chain.Add(m)
	}
	chain.Add(NewLoggingMiddleware(logger))

	return &Client{
		httpClient: &http.Client{Transport: NewRoundTripper(config.Transport, chain)},
		config:     config,
		limiter:    limiter,
		queue:      NewRequestQueue(logger, metrics),
		metrics:    metrics,
		tracer:     tracer,
		logger:     logger,
		name:       name,
	}, nil
}

// Execute выполняет запрос по спецификации и возвращает ответ с прочитанным телом.
// При UseQueue вся последовательность (лимитер, попытки, повторы) выполняется
// как один элемент очереди.
func (c *Client) Execute(ctx context.Context, spec RequestSpec) (*Response, error) {
	spec = spec.clone()
	method := spec.method()

	if err := spec.validate(c.limiter.Capacity()); err != nil {
		c.logOutsideChain(method, spec.URL, err)
		return nil, err
	}

	target, err := resolveURL(c.config.BaseURL, spec.URL)
	if err != nil {
		serr := &SetupError{Op: "resolve url", Err: err}
		c.logOutsideChain(method, spec.URL, serr)
		return nil, serr
	}

	body, err := encodeBody(spec.Body)
	if err != nil {
		serr := &SetupError{Op: "encode body", Err: err}
		c.logOutsideChain(method, target, serr)
		return nil, serr
	}

	cl := &call{
		url:       target,
		method:    method,
		host:      hostOf(target),
		body:      body,
		requestID: newRequestID(),
	}

	run := func() (*Response, error) {
		return c.run(ctx, cl, spec)
	}

	if spec.UseQueue {
		resp, err := c.queue.Enqueue(ctx, run)
		if err != nil && IsCanceled(err) {
			var ce *CanceledError
			if errors.As(err, &ce) && ce.URL == "" {
				ce.Method, ce.URL = method, target
			}
		}
		return resp, err
	}
	return run()
}

// run выполняет логический запрос: span, метрики активных запросов, попытки.
func (c *Client) run(ctx context.Context, cl *call, spec RequestSpec) (*Response, error) {
	cl.started = time.Now()

	var span trace.Span
	if c.tracer != nil {
		ctx, span = c.tracer.StartSpan(ctx, "HTTP "+cl.method)
		span.SetAttributes(
			attribute.String("http.method", cl.method),
			attribute.String("http.url", cl.url),
			attribute.String("http.host", cl.host),
			attribute.String("http.request_id", cl.requestID),
			attribute.Bool("http.queued", spec.UseQueue),
		)
	}

	c.metrics.IncrementInflight(ctx, cl.method, cl.host)
	c.metrics.RecordRequestSize(ctx, cl.body.size(), cl.method, cl.host)

	resp, err := c.execute(ctx, cl, spec)

	c.metrics.DecrementInflight(ctx, cl.method, cl.host)
	if span != nil {
		span.SetAttributes(attribute.Int("http.attempts", cl.attempt))
		if resp != nil {
			span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		}
		finishSpan(span, err)
	}
	return resp, err
}

// execute делает одну попытку и, если политика разрешает, рекурсивно
// повторяет последовательность с уменьшенной политикой.
func (c *Client) execute(ctx context.Context, cl *call, spec RequestSpec) (*Response, error) {
	cl.attempt++

	resp, err := c.attempt(ctx, cl, spec)
	if err == nil {
		return resp, nil
	}

	if !spec.Retry.permits(err) {
		return nil, err
	}

	reason := retryReason(err)
	c.metrics.RecordRetry(ctx, reason, cl.method, cl.host)
	c.logger.Info("retrying request",
		zap.String("method", cl.method),
		zap.String("url", cl.url),
		zap.String("request_id", cl.requestID),
		zap.Int("attempt", cl.attempt),
		zap.Int("retries_left", spec.Retry.MaxRetries-1),
		zap.Duration("delay", spec.Retry.Delay),
		zap.String("reason", reason),
	)

	if werr := sleepCtx(ctx, spec.Retry.Delay); werr != nil {
		cerr := &CanceledError{Method: cl.method, URL: cl.url, Cause: context.Cause(ctx)}
		c.logOutsideChain(cl.method, cl.url, cerr)
		return nil, cerr
	}

	return c.execute(ctx, cl, spec.withRetry(spec.Retry.next()))
}

// attempt одна попытка: токены лимитера → построение запроса → транспорт.
func (c *Client) attempt(ctx context.Context, cl *call, spec RequestSpec) (*Response, error) {
	// Вызывающий мог сдаться, пока запрос стоял в очереди
	if ctx.Err() != nil {
		cerr := &CanceledError{Method: cl.method, URL: cl.url, Cause: context.Cause(ctx)}
		c.logOutsideChain(cl.method, cl.url, cerr)
		return nil, cerr
	}

	waitStart := time.Now()
	if err := c.limiter.WaitN(ctx, spec.tokens()); err != nil {
		var lerr error
		switch {
		case ctx.Err() != nil:
			lerr = &CanceledError{Method: cl.method, URL: cl.url, Cause: context.Cause(ctx)}
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			lerr = &CanceledError{Method: cl.method, URL: cl.url, Cause: err}
		default:
			lerr = &SetupError{Op: "rate limit", Err: err}
		}
		c.logOutsideChain(cl.method, cl.url, lerr)
		return nil, lerr
	}
	c.metrics.RecordRateLimitWait(ctx, time.Since(waitStart).Seconds(), cl.host)

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	attemptCtx = withAttemptInfo(attemptCtx, attemptInfo{
		requestID: cl.requestID,
		attempt:   cl.attempt,
		timeout:   timeout,
		parent:    ctx,
	})

	req, err := c.buildRequest(attemptCtx, cl, spec)
	if err != nil {
		c.logOutsideChain(cl.method, cl.url, err)
		return nil, err
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		err = unwrapURLError(err)
		// Ошибки, не прошедшие через dispatch (например, лимит редиректов)
		if Classify(err) == KindUnknown {
			err = classifyTransportError(req, err, duration)
		}
		c.recordAttempt(ctx, cl, StatusCode(err), err, duration, 0)
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		nerr := classifyTransportError(req, err, duration)
		c.recordAttempt(ctx, cl, httpResp.StatusCode, nerr, duration, 0)
		return nil, nerr
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		rerr := newResponseError(req, httpResp, data)
		c.logOutsideChain(cl.method, cl.url, rerr)
		c.recordAttempt(ctx, cl, httpResp.StatusCode, rerr, duration, int64(len(data)))
		return nil, rerr
	}

	c.recordAttempt(ctx, cl, httpResp.StatusCode, nil, duration, int64(len(data)))

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		Body:       data,
		URL:        cl.url,
		RequestID:  cl.requestID,
		Attempts:   cl.attempt,
		Duration:   time.Since(cl.started),
	}, nil
}

// buildRequest строит http.Request для попытки. Заголовки: клиентские по умолчанию,
// тип содержимого тела, затем заголовки спецификации.
func (c *Client) buildRequest(ctx context.Context, cl *call, spec RequestSpec) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, cl.method, cl.url, cl.body.reader(spec.OnProgress))
	if err != nil {
		return nil, &SetupError{Op: "build request", Err: err}
	}

	if cl.body != nil {
		req.ContentLength = cl.body.size()
		req.GetBody = func() (io.ReadCloser, error) {
			return cl.body.reader(nil), nil
		}
	}

	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if cl.body != nil && cl.body.contentType != "" {
		req.Header.Set("Content-Type", cl.body.contentType)
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// recordAttempt записывает метрики одной попытки
func (c *Client) recordAttempt(ctx context.Context, cl *call, status int, err error, duration time.Duration, respSize int64) {
	statusStr := strconv.Itoa(status)
	c.metrics.RecordRequest(ctx, cl.method, cl.host, statusStr, cl.attempt > 1, Classify(err))
	c.metrics.RecordDuration(ctx, duration.Seconds(), cl.method, cl.host, statusStr, cl.attempt)
	if status > 0 {
		c.metrics.RecordResponseSize(ctx, respSize, cl.method, cl.host, statusStr)
	}
}

// logOutsideChain логирует ошибки, возникшие вне цепочки перехватчиков.
func (c *Client) logOutsideChain(method, rawURL string, err error) {
	logClassifiedError(c.logger.With(zap.String("method", method), zap.String("url", rawURL)), nil, err, 0)
}

// Limiter возвращает лимитер клиента.
func (c *Client) Limiter() RateLimiter {
	return c.limiter
}

// Queue возвращает очередь последовательных запросов.
func (c *Client) Queue() *RequestQueue {
	return c.queue
}

// Credentials возвращает источник токена авторизации (может быть nil).
func (c *Client) Credentials() CredentialStore {
	return c.config.Credentials
}

// GetConfig возвращает конфигурацию клиента.
func (c *Client) GetConfig() Config {
	return c.config
}

// Name возвращает имя клиента.
func (c *Client) Name() string {
	return c.name
}

// Close освобождает ресурсы клиента.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	if c.metrics != nil {
		return c.metrics.Close()
	}
	return nil
}

// unwrapURLError снимает обёртку *url.Error, добавляемую http.Client.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}

// hostOf извлекает хост из URL для метрик
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// String для отладки
func (c *Client) String() string {
	return fmt.Sprintf("apiclient.Client{name=%s, base=%s}", c.name, c.config.BaseURL)
}
