// Package worker runs the scheduler on one process.
//
// The Node registers the worker in the cluster and then reconciles the cluster state:
//   - periodically, see Config.CheckInterval,
//   - on a change of the workers or tasks list, grouped by Config.EventsGroupInterval.
//
// Each run lists the live workers, runs the assignment pass if the worker is the leader,
// and synchronizes the local tasks with the assignment records.
package worker

import (
	"context"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/sasha-s/go-deadlock"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"

	"github.com/keboola/cluster-scheduler/internal/pkg/ctxattr"
	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/common/servicectx"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/assignment"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/membership"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/metrics"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/model"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/ownership"
	"github.com/keboola/cluster-scheduler/internal/pkg/telemetry"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/netutils"
)

// Store is the coordination store client of the worker session.
type Store interface {
	coordination.Store
	coordination.ChildrenWatcher
}

// Executor runs the owned tasks.
type Executor interface {
	ownership.TaskExecutor
	Shutdown(ctx context.Context)
}

// sessionNotifier is implemented by a store which can replace an expired session.
type sessionNotifier interface {
	OnSessionRecreated(fn func())
}

type dependencies interface {
	Logger() log.Logger
	Clock() clockwork.Clock
	Process() *servicectx.Process
	Store() Store
	Metrics() *metrics.Metrics
	Tracer() telemetry.Tracer
}

type Node struct {
	config   Config
	logger   log.Logger
	clock    clockwork.Clock
	store    Store
	metrics  *metrics.Metrics
	executor Executor

	registry *membership.Registry
	engine   *assignment.Engine
	sync     *ownership.Sync

	// runLock serializes runs
	runLock    *deadlock.Mutex
	worker     *model.Worker
	reRegister *atomic.Bool
	trigger    chan struct{}

	// stateLock protects the result of the last run
	stateLock *deadlock.RWMutex
	id        string
	members   []string
	isLeader  bool
}

type Option func(c *nodeConfig)

type nodeConfig struct {
	ip       string
	hostname string
}

// WithIP sets the worker IP, by default the first non-loopback IPv4 address is used.
func WithIP(v string) Option {
	return func(c *nodeConfig) {
		c.ip = v
	}
}

func WithHostname(v string) Option {
	return func(c *nodeConfig) {
		c.hostname = v
	}
}

// New registers the worker and starts the reconciliation in the background.
func New(d dependencies, cfg Config, executor Executor, opts ...Option) (*Node, error) {
	nc := nodeConfig{}
	for _, o := range opts {
		o(&nc)
	}
	if nc.ip == "" {
		ip, err := netutils.LocalIP()
		if err != nil {
			return nil, errors.PrefixError(err, "cannot detect worker IP")
		}
		nc.ip = ip
	}
	if nc.hostname == "" {
		nc.hostname, _ = os.Hostname()
	}

	strategy, ok := assignment.NewStrategy(cfg.Strategy)
	if !ok {
		return nil, errors.Errorf(`unexpected assignment strategy "%s"`, cfg.Strategy)
	}

	logger := d.Logger().WithComponent("worker")
	store := d.Store()
	proc := d.Process()

	n := &Node{
		config:     cfg,
		logger:     logger,
		clock:      d.Clock(),
		store:      store,
		metrics:    d.Metrics(),
		executor:   executor,
		runLock:    &deadlock.Mutex{},
		worker:     model.NewWorker(nc.ip, nc.hostname, d.Clock().Now()),
		reRegister: atomic.NewBool(false),
		trigger:    make(chan struct{}, 1),
		stateLock:  &deadlock.RWMutex{},
	}

	n.registry = membership.NewRegistry(d.Logger(), store, cfg.ServerRoot, membership.WithOperationTimeout(cfg.OperationTimeout))
	n.engine = assignment.New(
		d.Logger(), store, n.registry, cfg.TaskRoot,
		assignment.WithStrategy(strategy),
		assignment.WithStaleRecordsPruning(cfg.PruneStaleRecords),
		assignment.WithClock(d.Clock()),
		assignment.WithMetrics(d.Metrics()),
		assignment.WithTracer(d.Tracer()),
		assignment.WithOperationTimeout(cfg.OperationTimeout),
	)
	n.sync = ownership.New(
		d.Logger(), store, executor, cfg.TaskRoot,
		ownership.WithMetrics(d.Metrics()),
		ownership.WithTracer(d.Tracer()),
		ownership.WithOperationTimeout(cfg.OperationTimeout),
	)

	// The new session has no ephemeral node, register the worker again
	if s, ok := store.(sessionNotifier); ok {
		s.OnSessionRecreated(func() {
			n.reRegister.Store(true)
			n.Trigger()
		})
	}

	// Register the worker
	startupCtx, cancel := context.WithTimeout(proc.Ctx(), cfg.StartupTimeout)
	defer cancel()
	n.register(startupCtx)
	if !n.worker.Registered {
		return nil, errors.New("cannot register the worker to the cluster")
	}

	// Stop local tasks on shutdown, the process context is already cancelled, the run loop has stopped
	proc.OnShutdown(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
		defer cancel()
		n.logger.Info(ctx, "shutting down worker")
		n.runLock.Lock()
		defer n.runLock.Unlock()
		n.executor.Shutdown(ctx)
		n.logger.Info(ctx, "worker shutdown done")
	})

	proc.Add(func(ctx context.Context, _ chan<- error) {
		n.watch(ctx, cfg.ServerRoot)
	})
	proc.Add(func(ctx context.Context, _ chan<- error) {
		n.watch(ctx, cfg.TaskRoot)
	})
	proc.Add(func(ctx context.Context, _ chan<- error) {
		n.run(ctx)
	})

	return n, nil
}

// ID returns the worker ID, it changes if the worker is registered again after a session loss.
func (n *Node) ID() string {
	n.stateLock.RLock()
	defer n.stateLock.RUnlock()
	return n.id
}

// IsLeader returns the leadership observed by the last run.
func (n *Node) IsLeader() bool {
	n.stateLock.RLock()
	defer n.stateLock.RUnlock()
	return n.isLeader
}

// Members returns the live workers observed by the last run.
func (n *Node) Members() []string {
	n.stateLock.RLock()
	defer n.stateLock.RUnlock()
	return append([]string(nil), n.members...)
}

// Trigger requests a run, multiple requests are coalesced.
func (n *Node) Trigger() {
	select {
	case n.trigger <- struct{}{}:
	default:
	}
}

// RunOnce registers the worker if needed, runs the assignment pass and checks the local tasks.
func (n *Node) RunOnce(ctx context.Context) {
	n.runLock.Lock()
	defer n.runLock.Unlock()

	if n.reRegister.CompareAndSwap(true, false) {
		n.logger.Warnf(ctx, `session of the worker "%s" has been re-created, registering the worker again`, n.worker.ID)
		n.worker.Registered = false
	}
	if n.worker.Registered {
		// The membership node is deleted with an expired session
		if found, err := n.registry.Exists(ctx, n.worker.ID); errors.Is(err, coordination.ErrSessionExpired) || (err == nil && !found) {
			n.logger.Warnf(ctx, `membership node of the worker "%s" not found, registering the worker again`, n.worker.ID)
			n.worker.Registered = false
		}
	}
	if !n.worker.Registered {
		n.register(ctx)
	}

	members := n.registry.ListMembers(ctx)
	registered := n.worker.Registered
	isLeader := registered && membership.IsLeader(n.worker.ID, members)
	n.setState(ctx, members, isLeader)

	if !registered {
		// Records of the previous session are gone, nothing is owned
		n.executor.ClearLocalTasks(ctx, []string{})
		return
	}

	ctx = ctxattr.ContextWith(ctx, attribute.String("worker.id", n.worker.ID))
	n.engine.Assign(ctx, n.worker.ID, members)
	n.sync.CheckLocalTasks(ctx, n.worker.ID)
}

func (n *Node) register(ctx context.Context) {
	n.worker.Registered = false
	n.registry.Register(ctx, n.worker)
	if n.worker.Registered {
		n.stateLock.Lock()
		n.id = n.worker.ID
		n.stateLock.Unlock()
	}
}

func (n *Node) setState(ctx context.Context, members []string, isLeader bool) {
	n.stateLock.Lock()
	wasLeader := n.isLeader
	n.members = members
	n.isLeader = isLeader
	n.stateLock.Unlock()

	if isLeader && !wasLeader {
		n.logger.Infof(ctx, `worker "%s" is the leader`, n.worker.ID)
	} else if !isLeader && wasLeader {
		n.logger.Infof(ctx, `worker "%s" is no longer the leader`, n.worker.ID)
	}

	n.metrics.Members.Set(float64(len(members)))
	n.metrics.IsLeader.Set(metrics.Bool(isLeader))
}

func (n *Node) run(ctx context.Context) {
	ticker := n.clock.NewTicker(n.config.CheckInterval)
	defer ticker.Stop()

	n.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			n.RunOnce(ctx)
		case <-n.trigger:
			n.RunOnce(ctx)
		}
	}
}

// watch triggers a run on each change of the path children, changes are grouped by the EventsGroupInterval.
func (n *Node) watch(ctx context.Context, path string) {
	ch := n.store.WatchChildren(ctx, path)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
		}

		if interval := n.config.EventsGroupInterval; interval > 0 {
			timer := n.clock.NewTimer(interval)
		group:
			for {
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case _, ok := <-ch:
					if !ok {
						timer.Stop()
						return
					}
				case <-timer.Chan():
					break group
				}
			}
		}

		n.logger.Debugf(ctx, `detected a change in "%s"`, path)
		n.Trigger()
	}
}
