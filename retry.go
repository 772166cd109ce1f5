package apiclient

import (
	"context"
	"errors"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Причины повтора для метрик.
const (
	RetryReasonStatus     = "status"
	RetryReasonTimeout    = "timeout"
	RetryReasonNetwork    = "net"
	RetryReasonPredicate  = "predicate"
	RetryReasonNoResponse = "no-response"
)

// timeoutErrorStrings contains error substrings indicating timeout failures.
var timeoutErrorStrings = []string{
	"timeout",
	"deadline exceeded",
	"context deadline exceeded",
	"request timeout",
}

// networkErrorStrings contains error substrings indicating TCP-level failures.
var networkErrorStrings = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"connection timed out",
}

// RetryPolicy неизменяемое описание политики повторов.
// Каждый повтор получает новое значение с MaxRetries, уменьшенным на единицу.
type RetryPolicy struct {
	// MaxRetries количество дополнительных попыток сверх первой
	MaxRetries int `validate:"gte=0"`

	// Delay фиксированная пауза между попытками
	Delay time.Duration `validate:"gte=0"`

	// ShouldRetry решает, стоит ли повторять после данной ошибки. nil: всегда да.
	ShouldRetry func(err error) bool `validate:"-"`
}

// NoRetry политика без повторов.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// DefaultRetryPolicy три повтора с паузой в секунду.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Delay: time.Second}
}

// next возвращает копию политики для следующей попытки.
func (p RetryPolicy) next() RetryPolicy {
	p.MaxRetries--
	return p
}

// permits принимает решение о повторе после ошибки err.
// Отмена, ошибки построения запроса и валидации не повторяются никогда,
// независимо от предиката.
func (p RetryPolicy) permits(err error) bool {
	if err == nil || p.MaxRetries <= 0 {
		return false
	}

	switch Classify(err) {
	case KindCanceled, KindSetup, KindValidation:
		return false
	}

	if p.ShouldRetry == nil {
		return true
	}
	return p.callPredicate(err)
}

// callPredicate вызывает пользовательский предикат; паника трактуется как "не повторять".
func (p RetryPolicy) callPredicate(err error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return p.ShouldRetry(err)
}

// RetryOnStatus повторяет только ответы с перечисленными статусами.
func RetryOnStatus(codes ...int) func(error) bool {
	return func(err error) bool {
		return slices.Contains(codes, StatusCode(err))
	}
}

// RetryOnNoResponse повторяет только запросы, оставшиеся без ответа.
func RetryOnNoResponse(err error) bool {
	return IsNoResponseError(err)
}

// RetryOnServerErrors повторяет 429, 5xx и запросы без ответа.
func RetryOnServerErrors(err error) bool {
	if IsNoResponseError(err) {
		return true
	}
	status := StatusCode(err)
	return status == 429 || (status >= 500 && status <= 599)
}

// retryReason определяет причину повтора для метрик.
func retryReason(err error) string {
	switch Classify(err) {
	case KindResponse:
		return RetryReasonStatus
	case KindNoResponse:
		if isTimeoutError(err) {
			return RetryReasonTimeout
		}
		if isNetworkError(err) {
			return RetryReasonNetwork
		}
		return RetryReasonNoResponse
	}
	return RetryReasonPredicate
}

// sleepCtx ждёт d или отмену контекста.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isNetworkError проверяет, является ли ошибка сетевой
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && urlErr.Err != err {
		return isNetworkError(urlErr.Err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := err.Error()
	for _, s := range networkErrorStrings {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// isTimeoutError проверяет, является ли ошибка таймаутом
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	for _, s := range timeoutErrorStrings {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}
