package dependencies

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/common/servicectx"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/config"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination/memory"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/metrics"
	"github.com/keboola/cluster-scheduler/internal/pkg/telemetry"
)

// Mocked provides access to the test doubles of a mocked WorkerScope.
type Mocked interface {
	DebugLogger() log.DebugLogger
	TestClock() *clockwork.FakeClock
	TestCluster() *memory.Cluster
	TestClient() *memory.Client
}

type mocked struct {
	*workerScope
	debugLogger log.DebugLogger
	fakeClock   *clockwork.FakeClock
	cluster     *memory.Cluster
	client      *memory.Client
}

type mockedConfig struct {
	cluster      *memory.Cluster
	clock        *clockwork.FakeClock
	modifyConfig func(cfg *config.Config)
}

type MockedOption func(c *mockedConfig)

// WithCluster connects the scope to a shared in-memory cluster, so multiple workers can be tested.
func WithCluster(v *memory.Cluster) MockedOption {
	return func(c *mockedConfig) {
		c.cluster = v
	}
}

func WithClock(v *clockwork.FakeClock) MockedOption {
	return func(c *mockedConfig) {
		c.clock = v
	}
}

func WithConfig(fn func(cfg *config.Config)) MockedOption {
	return func(c *mockedConfig) {
		c.modifyConfig = fn
	}
}

func NewMockedWorkerScope(t *testing.T, opts ...MockedOption) (WorkerScope, Mocked) {
	t.Helper()

	mc := mockedConfig{}
	for _, o := range opts {
		o(&mc)
	}
	if mc.cluster == nil {
		mc.cluster = memory.NewCluster()
	}
	if mc.clock == nil {
		mc.clock = clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	}

	cfg := config.NewConfig()
	cfg.NodeIP = "127.0.0.1"
	cfg.Etcd.Endpoint = "memory"
	cfg.Scheduler.EventsGroupInterval = 0
	if mc.modifyConfig != nil {
		mc.modifyConfig(&cfg)
	}

	logger := log.NewDebugLogger()
	client := mc.cluster.Connect()
	t.Cleanup(client.Close)

	m := &mocked{
		workerScope: &workerScope{
			logger:  logger,
			clock:   mc.clock,
			proc:    servicectx.NewForTest(t),
			config:  cfg,
			store:   client,
			metrics: metrics.New(),
			tracer:  telemetry.NewNopTracer(),
		},
		debugLogger: logger,
		fakeClock:   mc.clock,
		cluster:     mc.cluster,
		client:      client,
	}
	return m, m
}

func (v *mocked) DebugLogger() log.DebugLogger {
	return v.debugLogger
}

func (v *mocked) TestClock() *clockwork.FakeClock {
	return v.fakeClock
}

func (v *mocked) TestCluster() *memory.Cluster {
	return v.cluster
}

func (v *mocked) TestClient() *memory.Client {
	return v.client
}
