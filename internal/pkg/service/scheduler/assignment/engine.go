// Package assignment reconciles tasks with live workers.
//
// Each task node "<taskRoot>/<task>" should have exactly one ephemeral child,
// the assignment record, named after a live worker. The leader runs Engine.Assign periodically:
//   - A task without a valid record gets a new one, the worker is picked by the Strategy.
//   - Duplicate records naming live workers are deleted, the first listed is kept.
//   - Records naming dead workers are ignored, the store deletes them when the session of the creator ends.
//     Optionally they are deleted by the engine, see WithStaleRecordsPruning.
//
// Leadership is advisory, two workers may run the pass at the same time during a hand-off.
// Each write is preceded by a check and the next pass removes duplicates.
package assignment

import (
	"context"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sasha-s/go-deadlock"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/membership"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/metrics"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/model"
	"github.com/keboola/cluster-scheduler/internal/pkg/telemetry"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

const (
	DefaultOperationTimeout = 10 * time.Second
	reasonDuplicate         = "duplicate"
	reasonStale             = "stale"
)

// MemberLister returns IDs of live workers, sorted by the sequence number.
type MemberLister interface {
	ListMembers(ctx context.Context) []string
}

type Engine struct {
	logger   log.Logger
	store    coordination.Store
	members  MemberLister
	taskRoot string

	clock      clockwork.Clock
	metrics    *metrics.Metrics
	tracer     telemetry.Tracer
	timeout    time.Duration
	pruneStale bool

	// lock serializes passes, the strategy state is modified only under the lock
	lock     *deadlock.Mutex
	strategy Strategy
}

// Result of one pass.
type Result struct {
	Tasks   int
	Created int
	Deleted int
}

type Option func(e *Engine)

func WithStrategy(v Strategy) Option {
	return func(e *Engine) {
		e.strategy = v
	}
}

// WithStaleRecordsPruning enables deleting of records naming dead workers.
func WithStaleRecordsPruning(v bool) Option {
	return func(e *Engine) {
		e.pruneStale = v
	}
}

func WithClock(v clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = v
	}
}

func WithMetrics(v *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = v
	}
}

func WithTracer(v telemetry.Tracer) Option {
	return func(e *Engine) {
		e.tracer = v
	}
}

func WithOperationTimeout(v time.Duration) Option {
	return func(e *Engine) {
		e.timeout = v
	}
}

func New(logger log.Logger, store coordination.Store, members MemberLister, taskRoot string, opts ...Option) *Engine {
	e := &Engine{
		logger:   logger.WithComponent("assignment"),
		store:    store,
		members:  members,
		taskRoot: coordination.JoinPath(taskRoot),
		clock:    clockwork.NewRealClock(),
		tracer:   telemetry.NewNopTracer(),
		timeout:  DefaultOperationTimeout,
		lock:     &deadlock.Mutex{},
		strategy: &RoundRobin{},
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	return e
}

// Assign runs one assignment pass, if the current worker is the leader of the members.
// Errors are logged, the next pass continues from the store state.
func (e *Engine) Assign(ctx context.Context, currentID string, members []string) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if len(members) == 0 {
		e.logger.Debug(ctx, "no live worker, skipped assignment")
		return
	}
	if !membership.IsLeader(currentID, members) {
		return
	}

	var err error
	ctx, span := e.tracer.Start(ctx, "keboola.scheduler.assignment.Assign")
	defer span.End(&err)

	e.metrics.AssignPasses.Inc()

	var result Result
	result, err = e.assign(ctx)
	span.SetAttributes(
		attribute.Int("tasks", result.Tasks),
		attribute.Int("created", result.Created),
		attribute.Int("deleted", result.Deleted),
	)
	if result.Created > 0 || result.Deleted > 0 {
		e.logger.Infof(ctx, "assignment pass done: %d tasks, %d records created, %d records deleted", result.Tasks, result.Created, result.Deleted)
	}
	if err != nil {
		e.logger.Errorf(ctx, "assignment pass failed:\n%s", errors.Format(err))
	}
}

func (e *Engine) assign(ctx context.Context) (Result, error) {
	var result Result

	live := e.members.ListMembers(ctx)
	if len(live) == 0 {
		e.logger.Debug(ctx, "no live worker, skipped assignment")
		return result, nil
	}

	liveSet := make(map[string]bool, len(live))
	for _, id := range live {
		liveSet[id] = true
	}

	tasks, err := e.children(ctx, e.taskRoot)
	if errors.Is(err, coordination.ErrNoNode) {
		return result, nil
	} else if err != nil {
		return result, errors.PrefixError(err, "cannot list tasks")
	}
	sort.Strings(tasks)
	result.Tasks = len(tasks)

	errs := errors.NewMultiError()
	for _, task := range tasks {
		if err := e.assignTask(ctx, task, live, liveSet, &result); err != nil {
			errs.AppendWithPrefixf(err, `task "%s"`, task)
		}
	}
	return result, errs.ErrorOrNil()
}

func (e *Engine) assignTask(ctx context.Context, task string, live []string, liveSet map[string]bool, result *Result) error {
	taskPath := coordination.JoinPath(e.taskRoot, task)

	records, err := e.children(ctx, taskPath)
	if errors.Is(err, coordination.ErrNoNode) {
		// Task has been deleted in the meantime
		return nil
	} else if err != nil {
		return errors.PrefixError(err, "cannot list assignment records")
	}

	valid := ""
	for _, workerID := range records {
		switch {
		case liveSet[workerID] && valid == "":
			valid = workerID
		case liveSet[workerID]:
			if err := e.deleteRecord(ctx, task, workerID, reasonDuplicate, result); err != nil {
				return err
			}
		case e.pruneStale:
			if err := e.deleteRecord(ctx, task, workerID, reasonStale, result); err != nil {
				return err
			}
		}
	}

	if valid != "" {
		return nil
	}

	workerID := e.strategy.Pick(task, live)
	if workerID == "" {
		return nil
	}
	return e.createRecord(ctx, task, workerID, result)
}

func (e *Engine) createRecord(ctx context.Context, task, workerID string, result *Result) error {
	taskPath := coordination.JoinPath(e.taskRoot, task)
	recordPath := coordination.JoinPath(taskPath, workerID)

	if found, err := e.exists(ctx, taskPath); err != nil {
		return err
	} else if !found {
		return nil
	}
	if found, err := e.exists(ctx, recordPath); err != nil {
		return err
	} else if found {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	_, err := e.store.Create(opCtx, recordPath, model.NewAssignment(e.clock.Now()).Encode(), coordination.Ephemeral)
	switch {
	case errors.Is(err, coordination.ErrNodeExists):
		return nil
	case errors.Is(err, coordination.ErrNoNode):
		e.logger.Debugf(ctx, `task "%s" has been deleted, skipped assignment`, task)
		return nil
	case err != nil:
		return errors.PrefixErrorf(err, `cannot create assignment record for worker "%s"`, workerID)
	}

	result.Created++
	e.metrics.RecordsCreated.Inc()
	e.logger.With(attribute.String("task", task), attribute.String("worker.id", workerID)).Infof(ctx, `assigned task "%s" to worker "%s"`, task, workerID)
	return nil
}

func (e *Engine) deleteRecord(ctx context.Context, task, workerID, reason string, result *Result) error {
	opCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := e.store.Delete(opCtx, coordination.JoinPath(e.taskRoot, task, workerID))
	if errors.Is(err, coordination.ErrNoNode) {
		return nil
	} else if err != nil {
		return errors.PrefixErrorf(err, `cannot delete %s assignment record of worker "%s"`, reason, workerID)
	}

	result.Deleted++
	e.metrics.RecordsDeleted.WithLabelValues(reason).Inc()
	e.logger.With(attribute.String("task", task), attribute.String("worker.id", workerID)).Infof(ctx, `deleted %s assignment record of task "%s", worker "%s"`, reason, task, workerID)
	return nil
}

func (e *Engine) children(ctx context.Context, path string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.store.GetChildren(ctx, path)
}

func (e *Engine) exists(ctx context.Context, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.store.Exists(ctx, path)
}
