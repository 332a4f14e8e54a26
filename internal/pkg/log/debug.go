package log

import (
	"io"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/keboola/cluster-scheduler/internal/pkg/utils/ioutil"
)

type debugLogger struct {
	*zapLogger
	writer *ioutil.AtomicWriter
}

// NewDebugLogger creates a logger which stores all messages in memory as JSON lines.
func NewDebugLogger() DebugLogger {
	writer := ioutil.NewAtomicWriter()
	core := zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), writer, DebugLevel)
	return &debugLogger{zapLogger: loggerFromZapCore(core), writer: writer}
}

// ConnectTo copies all messages also to the writer, for example os.Stdout.
func (l *debugLogger) ConnectTo(w io.Writer) {
	l.writer.ConnectTo(w)
}

func (l *debugLogger) Truncate() {
	l.writer.Truncate()
}

func (l *debugLogger) AllMessages() string {
	return l.writer.String()
}

func (l *debugLogger) CompareJSONMessages(expected string) error {
	return CompareJSONMessages(expected, l.AllMessages())
}

func (l *debugLogger) AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool {
	return AssertJSONMessages(t, expected, l.AllMessages(), msgAndArgs...)
}
