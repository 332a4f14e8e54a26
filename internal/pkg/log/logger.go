// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/keboola/cluster-scheduler/internal/pkg/ctxattr"
)

const componentKey = "component"

// zapLogger is default implementation of the Logger interface.
type zapLogger struct {
	logger    *zap.Logger
	component string
	attrs     []attribute.KeyValue
}

func loggerFromZapCore(core zapcore.Core) *zapLogger {
	return &zapLogger{logger: zap.New(core)}
}

func (l *zapLogger) ZapCore() zapcore.Core {
	return l.logger.Core()
}

func (l *zapLogger) With(attrs ...attribute.KeyValue) Logger {
	clone := *l
	clone.attrs = append(append([]attribute.KeyValue{}, l.attrs...), attrs...)
	return &clone
}

func (l *zapLogger) WithComponent(component string) Logger {
	clone := *l
	if clone.component == "" {
		clone.component = component
	} else {
		clone.component = clone.component + "." + component
	}
	return &clone
}

func (l *zapLogger) Debug(ctx context.Context, message string) {
	l.log(ctx, DebugLevel, message)
}

func (l *zapLogger) Info(ctx context.Context, message string) {
	l.log(ctx, InfoLevel, message)
}

func (l *zapLogger) Warn(ctx context.Context, message string) {
	l.log(ctx, WarnLevel, message)
}

func (l *zapLogger) Error(ctx context.Context, message string) {
	l.log(ctx, ErrorLevel, message)
}

func (l *zapLogger) Debugf(ctx context.Context, template string, args ...any) {
	l.log(ctx, DebugLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Infof(ctx context.Context, template string, args ...any) {
	l.log(ctx, InfoLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Warnf(ctx context.Context, template string, args ...any) {
	l.log(ctx, WarnLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Errorf(ctx context.Context, template string, args ...any) {
	l.log(ctx, ErrorLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}

func (l *zapLogger) log(ctx context.Context, level zapcore.Level, message string) {
	if ce := l.logger.Check(level, message); ce != nil {
		ce.Write(l.fields(ctx)...)
	}
}

// fields merges the logger attributes with the context attributes, the context takes precedence.
func (l *zapLogger) fields(ctx context.Context) []zap.Field {
	attrs := append([]attribute.KeyValue{}, l.attrs...)
	attrs = append(attrs, ctxattr.Attributes(ctx).ToSlice()...)
	set := attribute.NewSet(attrs...)

	fields := make([]zap.Field, 0, set.Len()+1)
	if l.component != "" {
		fields = append(fields, zap.String(componentKey, l.component))
	}
	for iter := set.Iter(); iter.Next(); {
		kv := iter.Attribute()
		key := string(kv.Key)
		switch kv.Value.Type() {
		case attribute.BOOL:
			fields = append(fields, zap.Bool(key, kv.Value.AsBool()))
		case attribute.INT64:
			fields = append(fields, zap.Int64(key, kv.Value.AsInt64()))
		case attribute.FLOAT64:
			fields = append(fields, zap.Float64(key, kv.Value.AsFloat64()))
		default:
			fields = append(fields, zap.String(key, kv.Value.Emit()))
		}
	}
	return fields
}
