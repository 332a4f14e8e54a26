package assignment

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination/memory"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/metrics"
)

const (
	w1   = "10.0.0.1$A$0000000001"
	w2   = "10.0.0.2$B$0000000002"
	w3   = "10.0.0.3$C$0000000003"
	dead = "10.0.0.9$Z$0000000000"
)

type staticMembers []string

func (m staticMembers) ListMembers(context.Context) []string {
	return m
}

type testEnv struct {
	ctx     context.Context
	cluster *memory.Cluster
	admin   *memory.Client
	metrics *metrics.Metrics
	logger  log.DebugLogger
	clock   *clockwork.FakeClock
}

func newTestEnv(t *testing.T, tasks ...string) *testEnv {
	t.Helper()
	env := &testEnv{
		ctx:     context.Background(),
		cluster: memory.NewCluster(),
		metrics: metrics.New(),
		logger:  log.NewDebugLogger(),
		clock:   clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	env.admin = env.cluster.Connect()
	for _, task := range tasks {
		_, err := env.admin.Create(env.ctx, "/tasks/"+task, nil, coordination.Persistent)
		require.NoError(t, err)
	}
	return env
}

func (env *testEnv) engine(live []string, opts ...Option) *Engine {
	opts = append([]Option{WithClock(env.clock), WithMetrics(env.metrics)}, opts...)
	return New(env.logger, env.cluster.Connect(), staticMembers(live), "/tasks", opts...)
}

// records returns "<task>/<worker>" for each assignment record.
func (env *testEnv) records() []string {
	var out []string
	for _, path := range env.cluster.Paths() {
		if rel, ok := strings.CutPrefix(path, "/tasks/"); ok && strings.Contains(rel, "/") {
			out = append(out, rel)
		}
	}
	return out
}

func TestEngine_Assign_RoundRobinExample(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "A", "B", "C")
	members := []string{w1, w2}
	env.engine(members).Assign(env.ctx, w1, members)

	assert.Equal(t, []string{"A/" + w1, "B/" + w2, "C/" + w1}, env.records())

	data, err := env.admin.GetData(env.ctx, "/tasks/A/"+w1)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("0:%d", env.clock.Now().UnixMilli()), string(data))

	assert.Equal(t, float64(3), testutil.ToFloat64(env.metrics.RecordsCreated))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.AssignPasses))
	env.logger.AssertJSONMessages(t, `
{"level":"info","message":"assigned task \"A\" to worker \"`+w1+`\"","component":"assignment","task":"A"}
{"level":"info","message":"assigned task \"B\" to worker \"`+w2+`\"","component":"assignment","task":"B"}
{"level":"info","message":"assigned task \"C\" to worker \"`+w1+`\"","component":"assignment","task":"C"}
{"level":"info","message":"assignment pass done: 3 tasks, 3 records created, 0 records deleted"}
`)
}

func TestEngine_Assign_ConvergenceAndIdempotence(t *testing.T) {
	t.Parallel()

	tasks := []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7"}
	members := []string{w1, w2, w3}

	for _, strategy := range []string{StrategyRoundRobin, StrategyConsistentHash} {
		t.Run(strategy, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, tasks...)
			s, _ := NewStrategy(strategy)
			engine := env.engine(members, WithStrategy(s))

			engine.Assign(env.ctx, w1, members)
			records := env.records()
			require.Len(t, records, len(tasks))

			perTask := make(map[string]int)
			perWorker := make(map[string]int)
			for _, record := range records {
				task, worker, _ := strings.Cut(record, "/")
				perTask[task]++
				perWorker[worker]++
				assert.Contains(t, members, worker)
			}
			for _, task := range tasks {
				assert.Equal(t, 1, perTask[task], task)
			}
			if strategy == StrategyRoundRobin {
				assert.Equal(t, map[string]int{w1: 3, w2: 2, w3: 2}, perWorker)
			}

			// Second pass changes nothing
			engine.Assign(env.ctx, w1, members)
			assert.Equal(t, records, env.records())
			assert.Equal(t, float64(len(tasks)), testutil.ToFloat64(env.metrics.RecordsCreated))
			assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.AssignPasses))
		})
	}
}

func TestEngine_Assign_NotLeader(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "A")
	members := []string{w1, w2}

	env.engine(members).Assign(env.ctx, w2, members)
	env.engine(members).Assign(env.ctx, w1, nil)
	env.engine(members).Assign(env.ctx, "unknown", members)

	assert.Empty(t, env.records())
	assert.Equal(t, float64(0), testutil.ToFloat64(env.metrics.AssignPasses))
}

func TestEngine_Assign_NoLiveMember(t *testing.T) {
	t.Parallel()

	// The worker believes it is the leader, but the re-fetched list is empty
	env := newTestEnv(t, "A")
	env.engine(nil).Assign(env.ctx, w1, []string{w1})
	assert.Empty(t, env.records())
}

func TestEngine_Assign_NoTaskRoot(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	members := []string{w1}
	env.engine(members).Assign(env.ctx, w1, members)
	assert.Empty(t, env.cluster.Paths())
}

func TestEngine_Assign_DuplicatePruning(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "A")
	members := []string{w1, w2}
	for _, w := range []string{w2, w1} {
		_, err := env.admin.Create(env.ctx, "/tasks/A/"+w, []byte("0:0"), coordination.Ephemeral)
		require.NoError(t, err)
	}

	env.engine(members).Assign(env.ctx, w1, members)

	// First listed record is kept
	assert.Equal(t, []string{"A/" + w1}, env.records())
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.RecordsDeleted.WithLabelValues("duplicate")))
	assert.Equal(t, float64(0), testutil.ToFloat64(env.metrics.RecordsCreated))
}

func TestEngine_Assign_OrphanReassignment(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "A", "B")
	members := []string{w1, w2}
	_, err := env.admin.Create(env.ctx, "/tasks/A/"+dead, []byte("0:0"), coordination.Ephemeral)
	require.NoError(t, err)
	_, err = env.admin.Create(env.ctx, "/tasks/B/"+dead, []byte("0:0"), coordination.Ephemeral)
	require.NoError(t, err)
	_, err = env.admin.Create(env.ctx, "/tasks/B/"+w2, []byte("0:0"), coordination.Ephemeral)
	require.NoError(t, err)

	env.engine(members).Assign(env.ctx, w1, members)

	// Stale records are left for the store
	assert.Equal(t, []string{"A/" + w1, "A/" + dead, "B/" + w2, "B/" + dead}, env.records())
}

func TestEngine_Assign_StaleRecordsPruning(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "A", "B")
	members := []string{w1, w2}
	_, err := env.admin.Create(env.ctx, "/tasks/A/"+dead, []byte("0:0"), coordination.Ephemeral)
	require.NoError(t, err)
	_, err = env.admin.Create(env.ctx, "/tasks/B/"+dead, []byte("0:0"), coordination.Ephemeral)
	require.NoError(t, err)
	_, err = env.admin.Create(env.ctx, "/tasks/B/"+w2, []byte("0:0"), coordination.Ephemeral)
	require.NoError(t, err)

	env.engine(members, WithStaleRecordsPruning(true)).Assign(env.ctx, w1, members)

	assert.Equal(t, []string{"A/" + w1, "B/" + w2}, env.records())
	assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.RecordsDeleted.WithLabelValues("stale")))
}

func TestEngine_Assign_CursorSharedAcrossPasses(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "A", "B", "C")
	members := []string{w1, w2, w3}
	engine := env.engine(members)
	engine.Assign(env.ctx, w1, members)
	assert.Equal(t, []string{"A/" + w1, "B/" + w2, "C/" + w3}, env.records())

	// New task continues from the cursor, it wraps to the first worker
	_, err := env.admin.Create(env.ctx, "/tasks/D", nil, coordination.Persistent)
	require.NoError(t, err)
	engine.Assign(env.ctx, w1, members)
	assert.Contains(t, env.records(), "D/"+w1)

	_, err = env.admin.Create(env.ctx, "/tasks/E", nil, coordination.Persistent)
	require.NoError(t, err)
	engine.Assign(env.ctx, w1, members)
	assert.Contains(t, env.records(), "E/"+w2)
}

func TestEngine_Assign_StoreError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "A")
	client := env.cluster.Connect()
	env.cluster.Expire(client)

	members := []string{w1}
	New(env.logger, client, staticMembers(members), "/tasks", WithMetrics(env.metrics)).Assign(env.ctx, w1, members)

	assert.Empty(t, env.records())
	env.logger.AssertJSONMessages(t, `{"level":"error","message":"assignment pass failed:\ncannot list tasks:\n- session expired","component":"assignment"}`)
}

func TestEngine_Assign_TaskDeletedBeforeCreate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "A")
	store := &deleteTaskOnCreate{Client: env.cluster.Connect(), admin: env.admin}
	members := []string{w1}
	New(env.logger, store, staticMembers(members), "/tasks", WithClock(env.clock), WithMetrics(env.metrics)).Assign(env.ctx, w1, members)

	// The deleted task is not re-created by the record
	found, err := env.admin.Exists(env.ctx, "/tasks/A")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{"/tasks"}, env.cluster.Paths())
	assert.Equal(t, float64(0), testutil.ToFloat64(env.metrics.RecordsCreated))
	assert.NotContains(t, env.logger.AllMessages(), "assignment pass failed")
	env.logger.AssertJSONMessages(t, `{"level":"debug","message":"task \"A\" has been deleted, skipped assignment","component":"assignment"}`)
}

// deleteTaskOnCreate deletes the task node right before an assignment record is created.
type deleteTaskOnCreate struct {
	*memory.Client
	admin *memory.Client
}

func (s *deleteTaskOnCreate) Create(ctx context.Context, path string, data []byte, mode coordination.Mode) (string, error) {
	if mode == coordination.Ephemeral {
		if err := s.admin.Delete(ctx, coordination.ParentPath(path)); err != nil {
			return "", err
		}
	}
	return s.Client.Create(ctx, path, data, mode)
}
