// Package log provides the Logger interface, implemented by a wrapped zap logger.
//
// Each method accepts a context.Context, attributes stored in the context by the ctxattr package are added to the message.
// Use Logger.WithComponent to identify the source of messages, nested components are joined by a dot.
package log

import (
	"context"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap/zapcore"
)

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

type Logger interface {
	contextLogger
	withAttributes
}

type LoggerWithZapCore interface {
	Logger
	ZapCore() zapcore.Core
}

// DebugLogger returns logs as string in tests.
type DebugLogger interface {
	LoggerWithZapCore
	Truncate()
	AllMessages() string
	CompareJSONMessages(expected string) error
	AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool
}

type contextLogger interface {
	// Debug logs message in the debug level.
	Debug(ctx context.Context, message string)
	// Info logs message in the info level.
	Info(ctx context.Context, message string)
	// Warn logs message in the warning level.
	Warn(ctx context.Context, message string)
	// Error logs message in the error level.
	Error(ctx context.Context, message string)

	// Debugf logs formatted message in the debug level.
	Debugf(ctx context.Context, template string, args ...any)
	// Infof logs formatted message in the info level.
	Infof(ctx context.Context, template string, args ...any)
	// Warnf logs formatted message in the warning level.
	Warnf(ctx context.Context, template string, args ...any)
	// Errorf logs formatted message in the error level.
	Errorf(ctx context.Context, template string, args ...any)

	Sync() error
}

type withAttributes interface {
	With(attrs ...attribute.KeyValue) Logger
	WithComponent(component string) Logger
}
