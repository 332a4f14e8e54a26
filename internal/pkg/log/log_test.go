package log

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/cluster-scheduler/internal/pkg/ctxattr"
)

func TestServiceLogger_Console(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	logger := NewServiceLogger(&out, false, LogFormatConsole)

	ctx := context.Background()
	logger.Debug(ctx, "Debug msg")
	logger.Info(ctx, "Info msg")
	logger.Warnf(ctx, "Warn %s", "msg")
	logger.Error(ctx, "Error msg")

	expected := `
INFO Info msg
WARN Warn msg
ERROR Error msg
`
	assert.Equal(t, strings.TrimLeft(expected, "\n"), out.String())
}

func TestServiceLogger_JSON_Debug(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	logger := NewServiceLogger(&out, true, LogFormatJSON).WithComponent("scheduler")

	logger.Debug(context.Background(), "Debug msg")
	logger.Info(context.Background(), "Info msg")

	expected := `
{"level":"debug","message":"Debug msg","component":"scheduler","time":"%s"}
{"level":"info","message":"Info msg","component":"scheduler"}
`
	AssertJSONMessages(t, expected, out.String())
}

func TestDebugLogger_Attributes(t *testing.T) {
	t.Parallel()

	logger := NewDebugLogger()
	ctx := ctxattr.ContextWith(context.Background(), attribute.String("worker.id", "10.0.0.1$ABC$0000000001"))

	logger.
		WithComponent("membership").
		WithComponent("registry").
		With(attribute.String("worker.id", "overridden"), attribute.Int("members", 3)).
		Infof(ctx, "registered %s", "worker")

	logger.AssertJSONMessages(t, `
{"level":"info","message":"registered worker","component":"membership.registry","worker.id":"10.0.0.1$ABC$0000000001","members":3}
`)

	logger.Truncate()
	assert.Empty(t, logger.AllMessages())
}

func TestCompareJSONMessages(t *testing.T) {
	t.Parallel()

	actual := `
{"level":"info","message":"one"}
{"level":"warn","message":"two","count":2}
{"level":"info","message":"three"}
`

	require.NoError(t, CompareJSONMessages(`{"message":"one"}`+"\n"+`{"message":"th%s"}`, actual))
	require.NoError(t, CompareJSONMessages(`{"level":"warn","count":2}`, actual))

	// Order matters
	err := CompareJSONMessages(`{"message":"three"}`+"\n"+`{"message":"one"}`, actual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `{"message":"one"}`)

	// Invalid JSON
	require.Error(t, CompareJSONMessages(`{`, actual))
}

func TestNewLogFormat(t *testing.T) {
	t.Parallel()

	f, err := NewLogFormat("json")
	require.NoError(t, err)
	assert.Equal(t, LogFormatJSON, f)

	f, err = NewLogFormat("foo")
	require.Error(t, err)
	assert.Equal(t, LogFormatConsole, f)
}

func TestNopLogger(t *testing.T) {
	t.Parallel()
	logger := NewNopLogger()
	logger.Info(context.Background(), "nothing")
	assert.NoError(t, logger.Sync())
}
