package apiclient

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer обёртка для OpenTelemetry трассировки
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer создаёт новый экземпляр трассировщика
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(instrumentationScopeName),
	}
}

// NewTracerWithProvider создаёт трассировщик на указанном провайдере
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(instrumentationScopeName),
	}
}

// StartSpan начинает новый span
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// finishSpan завершает span логического запроса с учётом итоговой ошибки
func finishSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(Classify(err)))
	}
	span.End()
}
