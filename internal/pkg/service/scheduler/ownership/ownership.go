// Package ownership decides which tasks run on the local worker.
//
// A worker owns a task if the assignment record "<taskRoot>/<task>/<workerID>" exists.
// Sync.CheckLocalTasks forwards the owned tasks to the TaskExecutor,
// tasks no longer owned are stopped by the executor.
package ownership

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/metrics"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/model"
	"github.com/keboola/cluster-scheduler/internal/pkg/telemetry"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

const DefaultOperationTimeout = 10 * time.Second

// TaskExecutor runs tasks locally.
type TaskExecutor interface {
	// ScheduleTask starts the task, a running task is refreshed.
	ScheduleTask(ctx context.Context, task model.Task) error
	// ClearLocalTasks stops each running task not present in the owned list.
	ClearLocalTasks(ctx context.Context, owned []string)
}

type Sync struct {
	logger   log.Logger
	store    coordination.Store
	codec    model.Codec
	executor TaskExecutor
	taskRoot string
	metrics  *metrics.Metrics
	tracer   telemetry.Tracer
	timeout  time.Duration
}

type Option func(s *Sync)

func WithCodec(v model.Codec) Option {
	return func(s *Sync) {
		s.codec = v
	}
}

func WithMetrics(v *metrics.Metrics) Option {
	return func(s *Sync) {
		s.metrics = v
	}
}

func WithTracer(v telemetry.Tracer) Option {
	return func(s *Sync) {
		s.tracer = v
	}
}

func WithOperationTimeout(v time.Duration) Option {
	return func(s *Sync) {
		s.timeout = v
	}
}

func New(logger log.Logger, store coordination.Store, executor TaskExecutor, taskRoot string, opts ...Option) *Sync {
	s := &Sync{
		logger:   logger.WithComponent("ownership"),
		store:    store,
		codec:    model.NewJSONCodec(),
		executor: executor,
		taskRoot: coordination.JoinPath(taskRoot),
		tracer:   telemetry.NewNopTracer(),
		timeout:  DefaultOperationTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	return s
}

// IsOwner returns true if the assignment record of the worker exists.
// It returns false if the task or the record doesn't exist, or the store operation failed.
func (s *Sync) IsOwner(ctx context.Context, task, workerID string) bool {
	if task == "" || workerID == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	found, err := s.store.Exists(ctx, coordination.JoinPath(s.taskRoot, task, workerID))
	if err != nil {
		s.logger.Errorf(ctx, `cannot check owner of task "%s": %s`, task, errors.Format(err))
		return false
	}
	return found
}

// CheckLocalTasks schedules each task owned by the worker, then clears all other local tasks.
// If the tasks cannot be listed, the local tasks are kept as they are.
func (s *Sync) CheckLocalTasks(ctx context.Context, workerID string) {
	var err error
	ctx, span := s.tracer.Start(ctx, "keboola.scheduler.ownership.CheckLocalTasks")
	defer span.End(&err)

	var tasks []string
	tasks, err = s.listTasks(ctx)
	if err != nil {
		s.logger.Errorf(ctx, "cannot check local tasks: %s", errors.Format(err))
		return
	}

	owned := make([]string, 0)
	for _, name := range tasks {
		if !s.IsOwner(ctx, name, workerID) {
			continue
		}

		task, found, loadErr := s.loadTask(ctx, name)
		if loadErr != nil {
			s.logger.With(attribute.String("task", name)).Errorf(ctx, `cannot load task "%s": %s`, name, errors.Format(loadErr))
			continue
		} else if !found {
			continue
		}

		if scheduleErr := s.executor.ScheduleTask(ctx, task); scheduleErr != nil {
			s.logger.With(attribute.String("task", name)).Errorf(ctx, `cannot schedule task "%s": %s`, name, errors.Format(scheduleErr))
		}
		owned = append(owned, name)
	}

	span.SetAttributes(attribute.Int("tasks", len(tasks)), attribute.Int("owned", len(owned)))
	s.metrics.LocalTasks.Set(float64(len(owned)))
	s.executor.ClearLocalTasks(ctx, owned)
}

func (s *Sync) listTasks(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tasks, err := s.store.GetChildren(ctx, s.taskRoot)
	if errors.Is(err, coordination.ErrNoNode) {
		return nil, nil
	} else if err != nil {
		return nil, errors.PrefixError(err, "cannot list tasks")
	}
	sort.Strings(tasks)
	return tasks, nil
}

// loadTask decodes the task descriptor, the name is taken from the node.
// An empty descriptor or a deleted task is not an error, found is false.
func (s *Sync) loadTask(ctx context.Context, name string) (model.Task, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.store.GetData(ctx, coordination.JoinPath(s.taskRoot, name))
	if errors.Is(err, coordination.ErrNoNode) || (err == nil && len(data) == 0) {
		return model.Task{}, false, nil
	} else if err != nil {
		return model.Task{}, false, err
	}

	task, err := s.codec.DecodeTask(data)
	if err != nil {
		return model.Task{}, false, err
	}
	return task.WithName(name), true, nil
}
