package apiclient

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"
	HeaderAttempt       = "X-Attempt"
)

// Middleware перехватчик запроса/ответа. Может изменить запрос и наблюдать
// результат, но решение о повторе ему не принадлежит.
type Middleware interface {
	Process(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error)
}

// MiddlewareFunc адаптер функции к интерфейсу Middleware
type MiddlewareFunc func(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error)

// Process implements the Middleware interface
func (f MiddlewareFunc) Process(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	return f(req, next)
}

// MiddlewareChain represents a chain of middleware
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewMiddlewareChain creates a new middleware chain
func NewMiddlewareChain(middlewares ...Middleware) *MiddlewareChain {
	return &MiddlewareChain{
		middlewares: middlewares,
	}
}

// Add appends a middleware to the chain
func (mc *MiddlewareChain) Add(middleware Middleware) {
	mc.middlewares = append(mc.middlewares, middleware)
}

// GetMiddlewares возвращает копию списка middleware
func (mc *MiddlewareChain) GetMiddlewares() []Middleware {
	result := make([]Middleware, len(mc.middlewares))
	copy(result, mc.middlewares)
	return result
}

// Execute processes the request through the middleware chain
func (mc *MiddlewareChain) Execute(req *http.Request, finalHandler func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	if len(mc.middlewares) == 0 {
		return finalHandler(req)
	}

	// Build the chain from right to left
	handler := finalHandler
	for i := len(mc.middlewares) - 1; i >= 0; i-- {
		middleware := mc.middlewares[i]
		currentHandler := handler
		handler = func(r *http.Request) (*http.Response, error) {
			return middleware.Process(r, currentHandler)
		}
	}

	return handler(req)
}

// attemptInfo сведения о текущей попытке, передаются через контекст запроса.
type attemptInfo struct {
	requestID string
	attempt   int
	timeout   time.Duration
	parent    context.Context
}

type attemptInfoKey struct{}

// withAttemptInfo кладёт сведения о попытке в контекст
func withAttemptInfo(ctx context.Context, info attemptInfo) context.Context {
	return context.WithValue(ctx, attemptInfoKey{}, info)
}

// attemptFromContext достаёт сведения о попытке из контекста
func attemptFromContext(ctx context.Context) (attemptInfo, bool) {
	info, ok := ctx.Value(attemptInfoKey{}).(attemptInfo)
	return info, ok
}

// newRequestID генерирует идентификатор логического запроса
func newRequestID() string {
	return uuid.NewString()
}

// HeaderMiddleware adds headers to requests
type HeaderMiddleware struct {
	headers map[string]string
}

// NewHeaderMiddleware creates a new header middleware
func NewHeaderMiddleware(headers map[string]string) *HeaderMiddleware {
	return &HeaderMiddleware{
		headers: headers,
	}
}

// Process implements the Middleware interface
func (hm *HeaderMiddleware) Process(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	for key, value := range hm.headers {
		req.Header.Set(key, value)
	}
	return next(req)
}

// RequestIDMiddleware проставляет X-Request-ID (один на все попытки) и X-Attempt.
type RequestIDMiddleware struct{}

// NewRequestIDMiddleware creates a new request id middleware
func NewRequestIDMiddleware() *RequestIDMiddleware {
	return &RequestIDMiddleware{}
}

// Process implements the Middleware interface
func (RequestIDMiddleware) Process(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	info, ok := attemptFromContext(req.Context())
	if !ok {
		info = attemptInfo{requestID: newRequestID(), attempt: 1}
	}
	if req.Header.Get(HeaderRequestID) == "" {
		req.Header.Set(HeaderRequestID, info.requestID)
	}
	req.Header.Set(HeaderAttempt, strconv.Itoa(info.attempt))
	return next(req)
}

// AuthMiddleware adds authentication to requests
type AuthMiddleware struct {
	scheme string
	store  CredentialStore
}

// NewAuthMiddleware читает токен из хранилища на каждой попытке.
func NewAuthMiddleware(store CredentialStore) *AuthMiddleware {
	return &AuthMiddleware{
		scheme: "Bearer",
		store:  store,
	}
}

// NewBearerAuthMiddleware creates a new Bearer token authentication middleware
func NewBearerAuthMiddleware(token string) *AuthMiddleware {
	return NewAuthMiddleware(StaticToken(token))
}

// NewBasicAuthMiddleware creates a new Basic authentication middleware
func NewBasicAuthMiddleware(username, password string) *AuthMiddleware {
	return &AuthMiddleware{
		scheme: "Basic",
		store:  StaticToken(base64.StdEncoding.EncodeToString([]byte(username + ":" + password))),
	}
}

// Process implements the Middleware interface
func (am *AuthMiddleware) Process(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	if am.store != nil {
		if token, ok := am.store.Token(); ok {
			req.Header.Set(HeaderAuthorization, am.scheme+" "+token)
		}
	}
	return next(req)
}

// UserAgentMiddleware sets a custom User-Agent header
type UserAgentMiddleware struct {
	userAgent string
}

// NewUserAgentMiddleware creates a new User-Agent middleware
func NewUserAgentMiddleware(userAgent string) *UserAgentMiddleware {
	return &UserAgentMiddleware{
		userAgent: userAgent,
	}
}

// Process implements the Middleware interface
func (uam *UserAgentMiddleware) Process(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	req.Header.Set("User-Agent", uam.userAgent)
	return next(req)
}

// LoggingMiddleware logs HTTP requests, responses and classified errors.
// Only observes: the request is not modified and errors are returned unchanged.
type LoggingMiddleware struct {
	logger *zap.Logger
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger *zap.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingMiddleware{
		logger: logger,
	}
}

// Process implements the Middleware interface
func (lm *LoggingMiddleware) Process(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	start := time.Now()

	lm.logger.Info("HTTP request started",
		append(requestFields(req),
			zap.Any("headers", redactHeaders(req.Header)),
			zap.Int64("body_size", req.ContentLength),
		)...,
	)

	resp, err := next(req)
	duration := time.Since(start)

	if err != nil {
		logClassifiedError(lm.logger, req, err, duration)
		return resp, err
	}

	lm.logger.Info("HTTP request completed",
		append(requestFields(req),
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", duration),
		)...,
	)
	return resp, nil
}

// logClassifiedError пишет ошибку в лог согласно её категории.
// Используется и для ошибок построения запроса, которые до цепочки не доходят.
func logClassifiedError(logger *zap.Logger, req *http.Request, err error, duration time.Duration) {
	kind := Classify(err)
	fields := append(requestFields(req),
		zap.String("error_kind", string(kind)),
		zap.Duration("duration", duration),
		zap.Error(err),
	)

	switch kind {
	case KindCanceled:
		logger.Warn("HTTP request canceled", fields...)
	case KindResponse:
		var body string
		var status int
		if re := asResponseError(err); re != nil {
			status = re.StatusCode
			body = truncate(string(re.Body), 2048)
		}
		logger.Error("HTTP request failed with response",
			append(fields, zap.Int("status_code", status), zap.String("response_body", body))...,
		)
	case KindNoResponse:
		logger.Error("HTTP request got no response", fields...)
	default:
		logger.Error("HTTP request failed", fields...)
	}
}

// requestFields базовые поля лога запроса
func requestFields(req *http.Request) []zap.Field {
	if req == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
	}
	if info, ok := attemptFromContext(req.Context()); ok {
		fields = append(fields,
			zap.String("request_id", info.requestID),
			zap.Int("attempt", info.attempt),
		)
	}
	return fields
}

// redactHeaders копирует заголовки, скрывая учётные данные
func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		if k == HeaderAuthorization || k == "Cookie" {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
