package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
)

// NewLogTracerProvider creates an SDK tracer provider, ended spans are written to the debug log.
func NewLogTracerProvider(logger log.Logger, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	processor := &logSpanProcessor{logger: logger.WithComponent("telemetry")}
	return sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{sdktrace.WithSpanProcessor(processor)}, opts...)...)
}

type logSpanProcessor struct {
	logger log.Logger
}

func (p *logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	ctx := context.Background()
	duration := s.EndTime().Sub(s.StartTime())
	if status := s.Status(); status.Code == codes.Error {
		p.logger.Debugf(ctx, `span "%s" failed after %s: %s`, s.Name(), duration, status.Description)
		return
	}
	p.logger.Debugf(ctx, `span "%s" done in %s`, s.Name(), duration)
}

func (p *logSpanProcessor) Shutdown(context.Context) error {
	return nil
}

func (p *logSpanProcessor) ForceFlush(context.Context) error {
	return nil
}
