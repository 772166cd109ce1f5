package apiclient

import (
	"context"
	"errors"
)

// CancelSource источник отмены для одного или нескольких запросов.
// Контекст передаётся в Execute, Cancel прерывает ожидание лимитера,
// очереди, задержки повтора и текущую попытку.
type CancelSource struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewCancelSource создаёт источник отмены поверх parent.
func NewCancelSource(parent context.Context) *CancelSource {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &CancelSource{ctx: ctx, cancel: cancel}
}

// Context возвращает контекст для передачи в запросы.
func (s *CancelSource) Context() context.Context {
	return s.ctx
}

// Cancel отменяет все запросы источника. Повторный вызов ничего не меняет.
func (s *CancelSource) Cancel(reason string) {
	if reason == "" {
		s.cancel(ErrCanceled)
		return
	}
	s.cancel(&cancelReason{reason: reason})
}

// Reason возвращает причину отмены или пустую строку.
func (s *CancelSource) Reason() string {
	cause := context.Cause(s.ctx)
	if cause == nil {
		return ""
	}
	var r *cancelReason
	if errors.As(cause, &r) {
		return r.reason
	}
	return cause.Error()
}

// cancelReason причина отмены, переданная вызывающим кодом.
type cancelReason struct {
	reason string
}

func (r *cancelReason) Error() string {
	return "canceled: " + r.reason
}

// Is позволяет сопоставить причину с ErrCanceled.
func (r *cancelReason) Is(target error) bool {
	return target == ErrCanceled
}
