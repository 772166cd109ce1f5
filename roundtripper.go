package apiclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// RoundTripper реализует http.RoundTripper: прогоняет запрос через цепочку
// перехватчиков и базовый транспорт, читает тело ответа и превращает
// ответы с ошибочным статусом и ошибки транспорта в типизированные ошибки.
type RoundTripper struct {
	base  http.RoundTripper
	chain *MiddlewareChain
}

// NewRoundTripper создаёт транспорт с цепочкой перехватчиков
func NewRoundTripper(base http.RoundTripper, chain *MiddlewareChain) *RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if chain == nil {
		chain = NewMiddlewareChain()
	}
	return &RoundTripper{base: base, chain: chain}
}

// RoundTrip выполняет одну попытку через цепочку перехватчиков
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.chain.Execute(req, rt.dispatch)
}

// dispatch терминальный обработчик цепочки: обращение к базовому транспорту
func (rt *RoundTripper) dispatch(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return nil, classifyTransportError(req, err, time.Since(start))
	}

	// Читаем тело целиком, чтобы перехватчики и вызывающий код видели одно и то же
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, classifyTransportError(req, err, time.Since(start))
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	// 3xx отдаём http.Client для следования редиректам
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, newResponseError(req, resp, body)
	}
	return resp, nil
}

// classifyTransportError относит ошибку транспорта к отмене или к отсутствию ответа.
// Отмена родительского контекста вызывающим кодом важнее таймаута попытки.
func classifyTransportError(req *http.Request, err error, elapsed time.Duration) error {
	info, hasInfo := attemptFromContext(req.Context())

	if hasInfo && info.parent != nil && info.parent.Err() != nil {
		return &CanceledError{Method: req.Method, URL: req.URL.String(), Cause: context.Cause(info.parent)}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCanceled) {
		return &CanceledError{Method: req.Method, URL: req.URL.String(), Cause: err}
	}

	var timeout time.Duration
	if hasInfo {
		timeout = info.timeout
	}
	return &NoResponseError{
		Method:  req.Method,
		URL:     req.URL.String(),
		Timeout: timeout,
		Elapsed: elapsed,
		Err:     err,
	}
}
