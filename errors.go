package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrorKind классифицирует ошибку запроса.
type ErrorKind string

const (
	KindCanceled   ErrorKind = "canceled"
	KindResponse   ErrorKind = "response"
	KindNoResponse ErrorKind = "no_response"
	KindSetup      ErrorKind = "setup"
	KindValidation ErrorKind = "validation"
	KindUnknown    ErrorKind = "unknown"
)

// ErrCanceled возвращается, когда вызывающий код отменил операцию без указания причины.
var ErrCanceled = errors.New("request canceled")

// ErrTokensExceedCapacity возвращается лимитером, если запрошено больше токенов, чем вмещает бакет.
var ErrTokensExceedCapacity = errors.New("requested tokens exceed rate limiter capacity")

// CanceledError операция прервана вызывающим кодом. Не ретраится.
type CanceledError struct {
	Method string
	URL    string
	Cause  error
}

// Error реализует интерфейс error
func (e *CanceledError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("request canceled: %v", e.Cause)
	}
	return fmt.Sprintf("request canceled: %s %s: %v", e.Method, e.URL, e.Cause)
}

// Unwrap возвращает причину отмены
func (e *CanceledError) Unwrap() error {
	return e.Cause
}

// ResponseError транспорт вернул ответ со статусом вне диапазона 2xx.
type ResponseError struct {
	StatusCode int
	Status     string
	Method     string
	URL        string
	Headers    http.Header
	Body       []byte
}

// Error реализует интерфейс error
func (e *ResponseError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s %s", e.StatusCode, http.StatusText(e.StatusCode), e.Method, e.URL)
}

// newResponseError создаёт ошибку ответа из прочитанного ответа транспорта.
func newResponseError(req *http.Request, resp *http.Response, body []byte) *ResponseError {
	return &ResponseError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Method:     req.Method,
		URL:        req.URL.String(),
		Headers:    resp.Header,
		Body:       body,
	}
}

// NoResponseError запрос отправлен, но ответа нет (сеть, таймаут).
type NoResponseError struct {
	Method  string
	URL     string
	Timeout time.Duration
	Elapsed time.Duration
	Err     error
}

// Error реализует интерфейс error
func (e *NoResponseError) Error() string {
	if e.Timedout() {
		return fmt.Sprintf("no response: %s %s timed out after %v (timeout %v)", e.Method, e.URL, e.Elapsed, e.Timeout)
	}
	return fmt.Sprintf("no response: %s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap возвращает ошибку транспорта
func (e *NoResponseError) Unwrap() error {
	return e.Err
}

// Timedout сообщает, что причина в истечении таймаута попытки.
func (e *NoResponseError) Timedout() bool {
	return isTimeoutError(e.Err)
}

// SetupError запрос не удалось даже построить. Не ретраится.
type SetupError struct {
	Op  string
	Err error
}

// Error реализует интерфейс error
func (e *SetupError) Error() string {
	return fmt.Sprintf("request setup failed (%s): %v", e.Op, e.Err)
}

// Unwrap возвращает исходную ошибку
func (e *SetupError) Unwrap() error {
	return e.Err
}

// FieldError описывает нарушение одного правила валидации.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
	Value any    `json:"value,omitempty"`
}

// ValidationError данные запроса не прошли проверку до обращения к сети.
// Никогда не попадает в цикл повторов.
type ValidationError struct {
	Errors []FieldError
	Err    error
}

// Error реализует интерфейс error
func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("validation failed: %v", e.Err)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Param != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field, fe.Tag, fe.Param))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Tag))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap возвращает исходную ошибку валидатора
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// newValidationError превращает ошибки go-playground/validator в ValidationError.
func newValidationError(err error) *ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Err: err}
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field: fe.Namespace(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
			Value: fe.Value(),
		})
	}
	return &ValidationError{Errors: fields, Err: err}
}

// DecodeError тело успешного ответа не удалось разобрать в целевой тип.
type DecodeError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

// Error реализует интерфейс error
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response %s %s (HTTP %d): %v", e.Method, e.URL, e.StatusCode, e.Err)
}

// Unwrap возвращает ошибку декодера
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ConfigurationError представляет ошибку конфигурации
type ConfigurationError struct {
	Field   string
	Value   any
	Message string
}

// Error реализует интерфейс error
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewConfigurationError создаёт новую ошибку конфигурации
func NewConfigurationError(field string, value any, message string) *ConfigurationError {
	return &ConfigurationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Classify относит ошибку к одной из категорий таксономии.
// Чистая функция: одна и та же ошибка всегда даёт одну и ту же категорию.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var (
		canceledErr   *CanceledError
		responseErr   *ResponseError
		noResponseErr *NoResponseError
		setupErr      *SetupError
		validationErr *ValidationError
	)

	switch {
	case errors.As(err, &canceledErr):
		return KindCanceled
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &setupErr):
		return KindSetup
	case errors.As(err, &responseErr):
		return KindResponse
	case errors.As(err, &noResponseErr):
		return KindNoResponse
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	}

	return KindUnknown
}

// IsCanceled проверяет, что ошибка вызвана отменой операции.
func IsCanceled(err error) bool {
	return Classify(err) == KindCanceled
}

// IsResponseError проверяет, что сервер ответил статусом вне 2xx.
func IsResponseError(err error) bool {
	return Classify(err) == KindResponse
}

// IsNoResponseError проверяет, что ответа от сервера не было.
func IsNoResponseError(err error) bool {
	return Classify(err) == KindNoResponse
}

// StatusCode возвращает HTTP статус из ResponseError или 0.
func StatusCode(err error) int {
	if re := asResponseError(err); re != nil {
		return re.StatusCode
	}
	return 0
}

// asResponseError достаёт *ResponseError из цепочки ошибок.
func asResponseError(err error) *ResponseError {
	var responseErr *ResponseError
	if errors.As(err, &responseErr) {
		return responseErr
	}
	return nil
}
