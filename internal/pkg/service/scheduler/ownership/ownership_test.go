package ownership

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination/memory"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/metrics"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/model"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

const (
	w1 = "10.0.0.1$A$0000000001"
	w2 = "10.0.0.2$B$0000000002"
)

type fakeExecutor struct {
	lock      sync.Mutex
	scheduled []model.Task
	cleared   [][]string
	failFor   string
}

func (e *fakeExecutor) ScheduleTask(_ context.Context, task model.Task) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if task.Name == e.failFor {
		return errors.Errorf(`unknown handler "%s"`, task.Handler)
	}
	e.scheduled = append(e.scheduled, task)
	return nil
}

func (e *fakeExecutor) ClearLocalTasks(_ context.Context, owned []string) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.cleared = append(e.cleared, owned)
}

func createTask(t *testing.T, store coordination.Store, name string, task *model.Task, owners ...string) {
	t.Helper()
	ctx := context.Background()
	var data []byte
	if task != nil {
		var err error
		data, err = model.NewJSONCodec().EncodeTask(*task)
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, "/tasks/"+name, data, coordination.Persistent)
	require.NoError(t, err)
	for _, owner := range owners {
		_, err := store.Create(ctx, "/tasks/"+name+"/"+owner, []byte("0:0"), coordination.Ephemeral)
		require.NoError(t, err)
	}
}

func TestSync_IsOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := memory.NewCluster().Connect()
	createTask(t, client, "A", &model.Task{Handler: "log"}, w1)
	s := New(log.NewNopLogger(), client, &fakeExecutor{}, "/tasks")

	assert.True(t, s.IsOwner(ctx, "A", w1))
	assert.False(t, s.IsOwner(ctx, "A", w2))
	assert.False(t, s.IsOwner(ctx, "B", w1))
	assert.False(t, s.IsOwner(ctx, "", w1))
	assert.False(t, s.IsOwner(ctx, "A", ""))
}

func TestSync_CheckLocalTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := log.NewDebugLogger()
	client := memory.NewCluster().Connect()
	m := metrics.New()
	createTask(t, client, "A", &model.Task{Name: "other", Handler: "log", Params: map[string]string{"k": "v"}}, w1)
	createTask(t, client, "B", &model.Task{Handler: "log"}, w2)
	createTask(t, client, "C", &model.Task{Handler: "log"}, w2, w1)
	createTask(t, client, "D", nil, w1)
	createTask(t, client, "E", &model.Task{Handler: "log"})

	exec := &fakeExecutor{}
	New(logger, client, exec, "/tasks", WithMetrics(m)).CheckLocalTasks(ctx, w1)

	assert.Equal(t, []model.Task{
		{Name: "A", Handler: "log", Params: map[string]string{"k": "v"}},
		{Name: "C", Handler: "log"},
	}, exec.scheduled)
	assert.Equal(t, [][]string{{"A", "C"}}, exec.cleared)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.LocalTasks))

	// The assignment moved away
	require.NoError(t, client.Delete(ctx, "/tasks/A/"+w1))
	require.NoError(t, client.Delete(ctx, "/tasks/C/"+w1))
	exec = &fakeExecutor{}
	New(logger, client, exec, "/tasks", WithMetrics(m)).CheckLocalTasks(ctx, w1)
	assert.Empty(t, exec.scheduled)
	assert.Equal(t, [][]string{{}}, exec.cleared)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.LocalTasks))
}

func TestSync_CheckLocalTasks_InvalidDescriptor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := log.NewDebugLogger()
	client := memory.NewCluster().Connect()
	_, err := client.Create(ctx, "/tasks/A", []byte("{invalid"), coordination.Persistent)
	require.NoError(t, err)
	_, err = client.Create(ctx, "/tasks/A/"+w1, []byte("0:0"), coordination.Ephemeral)
	require.NoError(t, err)
	createTask(t, client, "B", &model.Task{Handler: "unknown"}, w1)

	exec := &fakeExecutor{failFor: "B"}
	New(logger, client, exec, "/tasks").CheckLocalTasks(ctx, w1)

	assert.Empty(t, exec.scheduled)
	assert.Equal(t, [][]string{{"B"}}, exec.cleared)
	logger.AssertJSONMessages(t, `
{"level":"error","message":"cannot load task \"A\": invalid task descriptor:%A","component":"ownership","task":"A"}
{"level":"error","message":"cannot schedule task \"B\": unknown handler \"unknown\"","component":"ownership","task":"B"}
`)
}

func TestSync_CheckLocalTasks_StoreError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := log.NewDebugLogger()
	cluster := memory.NewCluster()
	client := cluster.Connect()
	cluster.Expire(client)

	exec := &fakeExecutor{}
	New(logger, client, exec, "/tasks").CheckLocalTasks(ctx, w1)

	// Local tasks are kept
	assert.Empty(t, exec.cleared)
	logger.AssertJSONMessages(t, `{"level":"error","message":"cannot check local tasks: cannot list tasks:\n- session expired"}`)
}

func TestSync_CheckLocalTasks_NoTaskRoot(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	New(log.NewNopLogger(), memory.NewCluster().Connect(), exec, "/tasks").CheckLocalTasks(context.Background(), w1)
	assert.Equal(t, [][]string{{}}, exec.cleared)
}
