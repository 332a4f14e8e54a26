package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerSequence(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int64(12), WorkerSequence("10.0.0.1$ABCDEF$0000000012"))
	assert.Equal(t, int64(0), WorkerSequence("10.0.0.1$ABCDEF$0000000000"))
	assert.Equal(t, int64(math.MaxInt64), WorkerSequence("10.0.0.1$ABCDEF$"))
	assert.Equal(t, int64(math.MaxInt64), WorkerSequence("no-separator"))
	assert.Equal(t, int64(math.MaxInt64), WorkerSequence("10.0.0.1$ABCDEF$x1"))
	assert.Equal(t, "10.0.0.1", WorkerIP("10.0.0.1$ABCDEF$0000000012"))
	assert.Equal(t, "10.0.0.1$ABCDEF$", NodeNamePrefix("10.0.0.1", "ABCDEF"))
}

func TestAssignment(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1700000000123).UTC()
	assert.Equal(t, "0:1700000000123", string(NewAssignment(now).Encode()))

	a, err := DecodeAssignment([]byte("0:1700000000123"))
	require.NoError(t, err)
	assert.Equal(t, Assignment{Status: 0, AssignedAt: now}, a)

	_, err = DecodeAssignment([]byte("foo"))
	assert.Error(t, err)
	_, err = DecodeAssignment([]byte("x:1"))
	assert.Error(t, err)
	_, err = DecodeAssignment([]byte("0:x"))
	assert.Error(t, err)
}

func TestTask_WithName(t *testing.T) {
	t.Parallel()

	original := Task{Name: "stored", Handler: "log", Params: map[string]string{"a": "1"}}
	task := original.WithName("node-name")
	task.Params["a"] = "2"

	assert.Equal(t, "node-name", task.Name)
	assert.Equal(t, "stored", original.Name)
	assert.Equal(t, "1", original.Params["a"])
}

func TestJSONCodec(t *testing.T) {
	t.Parallel()

	codec := NewJSONCodec()
	startedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := codec.EncodeWorker(&Worker{ID: "10.0.0.1$A$0000000001", IP: "10.0.0.1", Hostname: "host", UUID: "A", Registered: true, StartedAt: startedAt})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"10.0.0.1$A$0000000001","ip":"10.0.0.1","hostname":"host","uuid":"A","registered":true,"startedAt":"2024-01-02T03:04:05Z"}`, string(data))

	task, err := codec.DecodeTask([]byte(`{"name":"foo","handler":"log","params":{"k":"v"}}`))
	require.NoError(t, err)
	assert.Equal(t, Task{Name: "foo", Handler: "log", Params: map[string]string{"k": "v"}}, task)

	_, err = codec.DecodeTask([]byte(`{`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid task descriptor")
}
