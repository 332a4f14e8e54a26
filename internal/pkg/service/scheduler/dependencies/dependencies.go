// Package dependencies provides dependencies of the scheduler worker.
//
// The WorkerScope is created once per process by NewWorkerScope,
// tests use NewMockedWorkerScope with the in-memory coordination store.
package dependencies

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/common/etcdclient"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/common/servicectx"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/config"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination/etcdstore"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/metrics"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/worker"
	"github.com/keboola/cluster-scheduler/internal/pkg/telemetry"
)

type WorkerScope interface {
	Logger() log.Logger
	Clock() clockwork.Clock
	Process() *servicectx.Process
	Config() config.Config
	Store() worker.Store
	Metrics() *metrics.Metrics
	Tracer() telemetry.Tracer
}

// workerScope implements WorkerScope interface.
type workerScope struct {
	logger  log.Logger
	clock   clockwork.Clock
	proc    *servicectx.Process
	config  config.Config
	store   worker.Store
	metrics *metrics.Metrics
	tracer  telemetry.Tracer
}

func NewWorkerScope(ctx context.Context, cfg config.Config, proc *servicectx.Process, logger log.Logger, tracer telemetry.Tracer) (v WorkerScope, err error) {
	ctx, span := tracer.Start(ctx, "keboola.scheduler.dependencies.NewWorkerScope")
	defer span.End(&err)

	client, err := etcdclient.New(ctx, proc, logger, cfg.Etcd)
	if err != nil {
		return nil, err
	}

	// The session is closed when the process context is cancelled, wait for it before the client is closed
	wg := &sync.WaitGroup{}
	proc.OnShutdown(func(_ context.Context) {
		wg.Wait()
	})

	store, err := etcdstore.New(
		proc.Ctx(), wg, logger, client,
		etcdstore.WithPrefix(etcdstore.DefaultPrefix),
		etcdstore.WithSessionTTL(cfg.Scheduler.SessionTTLSeconds),
	)
	if err != nil {
		return nil, err
	}

	return &workerScope{
		logger:  logger,
		clock:   clockwork.NewRealClock(),
		proc:    proc,
		config:  cfg,
		store:   store,
		metrics: metrics.New(),
		tracer:  tracer,
	}, nil
}

func (v *workerScope) Logger() log.Logger {
	return v.logger
}

func (v *workerScope) Clock() clockwork.Clock {
	return v.clock
}

func (v *workerScope) Process() *servicectx.Process {
	return v.proc
}

func (v *workerScope) Config() config.Config {
	return v.config
}

func (v *workerScope) Store() worker.Store {
	return v.store
}

func (v *workerScope) Metrics() *metrics.Metrics {
	return v.metrics
}

func (v *workerScope) Tracer() telemetry.Tracer {
	return v.tracer
}
