// Package testclient диагностическая обёртка над apiclient для тестов и утилит.
// Имеет собственный внешний цикл повторов и приводит успешные ответы и ошибки
// к плоской структуре.
package testclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	apiclient "gitlab.citydrive.tech/back-end/go/pkg/api-client"
)

const (
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
)

// Options настройки внешнего цикла повторов
type Options struct {
	// Retries количество повторов после первой попытки.
	// nil или отрицательное значение: DefaultRetries; 0 явно выключает повторы
	Retries *int

	// RetryDelay пауза между попытками; 0: значение по умолчанию
	RetryDelay time.Duration

	Logger *zap.Logger
}

// Retries возвращает указатель для Options.Retries.
func Retries(n int) *int {
	return &n
}

// Result плоское представление успешного ответа.
type Result struct {
	Status     int
	StatusText string
	Headers    http.Header
	// Data разобранный JSON или строка, если тело не JSON
	Data   any
	Config apiclient.RequestSpec
}

// Failure плоское представление неудачного запроса.
type Failure struct {
	// Status HTTP статус, если сервер ответил; иначе 0
	Status int
	// Data разобранное тело ошибочного ответа
	Data any
	Err  error
}

// Error реализует интерфейс error
func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("status %d: %v", f.Status, f.Err)
	}
	return f.Err.Error()
}

// Unwrap возвращает ошибку apiclient
func (f *Failure) Unwrap() error {
	return f.Err
}

// Client диагностический клиент. Встроенные повторы apiclient на его запросах выключены.
type Client struct {
	api    *apiclient.Client
	opts   Options
	logger *zap.Logger
}

// New создаёт диагностический клиент поверх api.
func New(api *apiclient.Client, opts Options) *Client {
	if opts.Retries == nil || *opts.Retries < 0 {
		opts.Retries = Retries(DefaultRetries)
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		api:    api,
		opts:   opts,
		logger: opts.Logger.With(zap.String("component", "testclient")),
	}
}

// Do выполняет запрос, повторяя его до Retries раз с паузой RetryDelay.
// Отмена, ошибки валидации и построения запроса прерывают цикл сразу.
func (c *Client) Do(ctx context.Context, spec apiclient.RequestSpec) (*Result, error) {
	// Один уровень повторов на вызов: внутренний выключен
	spec.Retry = apiclient.RetryPolicy{}

	retries := *c.opts.Retries
	attempt := 0
	for retries >= 0 {
		attempt++
		resp, err := c.api.Execute(ctx, spec)
		if err == nil {
			return newResult(resp, spec), nil
		}

		failure := newFailure(err)
		switch apiclient.Classify(err) {
		case apiclient.KindCanceled, apiclient.KindValidation, apiclient.KindSetup:
			return nil, failure
		}

		retries--
		if retries < 0 {
			return nil, failure
		}

		c.logger.Warn("request failed, retrying",
			zap.String("method", spec.Method),
			zap.String("url", spec.URL),
			zap.Int("attempt", attempt),
			zap.Int("retries_left", retries),
			zap.Duration("delay", c.opts.RetryDelay),
			zap.Error(err),
		)

		timer := time.NewTimer(c.opts.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, newFailure(&apiclient.CanceledError{
				Method: spec.Method,
				URL:    spec.URL,
				Cause:  context.Cause(ctx),
			})
		case <-timer.C:
		}
	}
	return nil, &Failure{Err: apiclient.ErrCanceled}
}

// Get выполняет GET запрос.
func (c *Client) Get(ctx context.Context, url string, opts ...apiclient.SpecOption) (*Result, error) {
	return c.Do(ctx, apiclient.NewRequestSpec(http.MethodGet, url, nil, opts...))
}

// Post выполняет POST запрос.
func (c *Client) Post(ctx context.Context, url string, body any, opts ...apiclient.SpecOption) (*Result, error) {
	return c.Do(ctx, apiclient.NewRequestSpec(http.MethodPost, url, body, opts...))
}

// Put выполняет PUT запрос.
func (c *Client) Put(ctx context.Context, url string, body any, opts ...apiclient.SpecOption) (*Result, error) {
	return c.Do(ctx, apiclient.NewRequestSpec(http.MethodPut, url, body, opts...))
}

// Patch выполняет PATCH запрос.
func (c *Client) Patch(ctx context.Context, url string, body any, opts ...apiclient.SpecOption) (*Result, error) {
	return c.Do(ctx, apiclient.NewRequestSpec(http.MethodPatch, url, body, opts...))
}

// Delete выполняет DELETE запрос.
func (c *Client) Delete(ctx context.Context, url string, opts ...apiclient.SpecOption) (*Result, error) {
	return c.Do(ctx, apiclient.NewRequestSpec(http.MethodDelete, url, nil, opts...))
}

func newResult(resp *apiclient.Response, spec apiclient.RequestSpec) *Result {
	return &Result{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    resp.Header,
		Data:       decodeData(resp.Body),
		Config:     spec,
	}
}

func newFailure(err error) *Failure {
	f := &Failure{Err: err}
	var re *apiclient.ResponseError
	if errors.As(err, &re) {
		f.Status = re.StatusCode
		f.Data = decodeData(re.Body)
	}
	return f
}

// decodeData разбирает JSON; если тело не JSON, возвращает строку
func decodeData(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}
	return data
}
