package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RequestSpec неизменяемое описание одного логического запроса.
// Повтор получает копию с уменьшенным Retry.MaxRetries.
type RequestSpec struct {
	// URL абсолютный или относительный к Config.BaseURL
	URL string `validate:"required"`

	// Method HTTP метод; пустой означает GET
	Method string `validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`

	// Headers заголовки запроса, перекрывают заголовки клиента
	Headers map[string]string `validate:"-"`

	// Body полезная нагрузка: nil, []byte, string, io.Reader или значение для JSON
	Body any `validate:"-"`

	// Timeout таймаут одной попытки; 0: Config.Timeout
	Timeout time.Duration `validate:"gte=0"`

	// UseQueue сериализовать запрос через очередь
	UseQueue bool

	// RateLimitTokens сколько токенов лимитера тратит каждая попытка; 0: один
	RateLimitTokens int `validate:"gte=0"`

	// Retry политика повторов
	Retry RetryPolicy

	// OnProgress получает процент отправленного тела запроса (0..100)
	OnProgress func(percent int) `validate:"-"`

	// Validate данные, проверяемые по тегам validate до обращения к сети
	Validate any `validate:"-"`
}

// SpecOption функциональная опция для RequestSpec.
type SpecOption func(*RequestSpec)

// WithHeader sets a single request header.
func WithHeader(key, value string) SpecOption {
	return func(s *RequestSpec) {
		if s.Headers == nil {
			s.Headers = make(map[string]string)
		}
		s.Headers[key] = value
	}
}

// WithHeaders sets multiple request headers.
func WithHeaders(headers map[string]string) SpecOption {
	return func(s *RequestSpec) {
		for k, v := range headers {
			WithHeader(k, v)(s)
		}
	}
}

// WithQueue routes the request through the sequential queue.
func WithQueue() SpecOption {
	return func(s *RequestSpec) { s.UseQueue = true }
}

// WithRetry sets the retry policy.
func WithRetry(policy RetryPolicy) SpecOption {
	return func(s *RequestSpec) { s.Retry = policy }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) SpecOption {
	return func(s *RequestSpec) { s.Timeout = d }
}

// WithTokens sets the number of limiter tokens spent per attempt.
func WithTokens(n int) SpecOption {
	return func(s *RequestSpec) { s.RateLimitTokens = n }
}

// WithProgress registers an upload progress callback.
func WithProgress(fn func(percent int)) SpecOption {
	return func(s *RequestSpec) { s.OnProgress = fn }
}

// WithValidation checks v against its validate tags before sending.
func WithValidation(v any) SpecOption {
	return func(s *RequestSpec) { s.Validate = v }
}

// withRetry возвращает копию спецификации с другой политикой повторов.
func (s RequestSpec) withRetry(policy RetryPolicy) RequestSpec {
	s.Retry = policy
	return s
}

// clone возвращает копию с собственной картой заголовков.
func (s RequestSpec) clone() RequestSpec {
	if s.Headers != nil {
		s.Headers = maps.Clone(s.Headers)
	}
	return s
}

// method возвращает метод с учётом значения по умолчанию.
func (s RequestSpec) method() string {
	if s.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(s.Method)
}

// tokens возвращает количество токенов на попытку.
func (s RequestSpec) tokens() int {
	if s.RateLimitTokens <= 0 {
		return 1
	}
	return s.RateLimitTokens
}

// validate проверяет саму спецификацию и, если задано, полезную нагрузку.
func (s RequestSpec) validate(limiterCapacity int) error {
	norm := s
	norm.Method = s.method()
	if err := defaultValidator().Struct(norm); err != nil {
		return newValidationError(err)
	}
	if s.tokens() > limiterCapacity {
		return &ValidationError{
			Errors: []FieldError{{
				Field: "RequestSpec.RateLimitTokens",
				Tag:   "lte",
				Param: fmt.Sprint(limiterCapacity),
				Value: s.RateLimitTokens,
			}},
			Err: ErrTokensExceedCapacity,
		}
	}
	return ValidatePayload(s.Validate)
}

// resolveURL разрешает URL спецификации относительно базового адреса.
func resolveURL(baseURL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return u.String(), nil
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	// Сохраняем путь базового адреса: "/api" + "devices" -> "/api/devices"
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(&url.URL{
		Path:     strings.TrimPrefix(u.Path, "/"),
		RawQuery: u.RawQuery,
		Fragment: u.Fragment,
	}).String(), nil
}

// encodedBody тело запроса, закодированное один раз и перечитываемое на каждой попытке.
type encodedBody struct {
	data        []byte
	contentType string
}

// encodeBody кодирует полезную нагрузку. Строки и байты отправляются как есть,
// io.Reader читается целиком, остальное кодируется в JSON.
func encodeBody(body any) (*encodedBody, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case xmlPayload:
		return v.encode()
	case multipartPayload:
		return v.encode()
	case []byte:
		return &encodedBody{data: v}, nil
	case string:
		return &encodedBody{data: []byte(v)}, nil
	case url.Values:
		return &encodedBody{data: []byte(v.Encode()), contentType: "application/x-www-form-urlencoded"}, nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return &encodedBody{data: data}, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		return &encodedBody{data: data, contentType: DefaultContentType}, nil
	}
}

// reader возвращает свежий reader для очередной попытки.
func (b *encodedBody) reader(onProgress func(int)) io.ReadCloser {
	if b == nil {
		return http.NoBody
	}
	r := io.NopCloser(bytes.NewReader(b.data))
	if onProgress != nil {
		return newProgressReader(r, int64(len(b.data)), onProgress)
	}
	return r
}

// size возвращает длину тела
func (b *encodedBody) size() int64 {
	if b == nil {
		return 0
	}
	return int64(len(b.data))
}
