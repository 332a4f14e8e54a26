// Package telemetry wraps the OpenTelemetry tracer, spans are ended with an optional error.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/keboola/cluster-scheduler"

type ctxKey string

const disabledTracingCtxKey = ctxKey("disabled-tracing")

type Tracer interface {
	Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, Span)
}

type tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the provider, the global provider is used if it is nil.
func NewTracer(provider trace.TracerProvider) Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &tracer{tracer: provider.Tracer(instrumentationName)}
}

func NewNopTracer() Tracer {
	return &tracer{tracer: noop.NewTracerProvider().Tracer(instrumentationName)}
}

func (t *tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, Span) {
	if IsTracingDisabled(ctx) {
		return ctx, &span{span: trace.SpanFromContext(context.Background())}
	}
	ctx, s := t.tracer.Start(ctx, spanName, opts...)
	return ctx, &span{span: s}
}

func ContextWithDisabledTracing(ctx context.Context) context.Context {
	return context.WithValue(ctx, disabledTracingCtxKey, true)
}

func IsTracingDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(disabledTracingCtxKey).(bool)
	return v
}
