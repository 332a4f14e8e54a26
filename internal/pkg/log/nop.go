package log

import "go.uber.org/zap/zapcore"

// NewNopLogger returns a logger that discards all messages.
func NewNopLogger() LoggerWithZapCore {
	return loggerFromZapCore(zapcore.NewNopCore())
}
