// Package executor runs tasks owned by the local worker.
//
// Each task is executed by a Handler, selected by the Task.Handler name, in its own goroutine.
// The Manager implements the TaskExecutor interface of the ownership package.
package executor

import (
	"context"
	"sort"
	"sync"

	"github.com/mitchellh/hashstructure/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/model"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

// Handler runs the task until it is done or the context is cancelled.
type Handler func(ctx context.Context, logger log.Logger, task model.Task) error

type Manager struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   log.Logger
	handlers map[string]Handler

	lock    *sync.Mutex
	wg      *sync.WaitGroup
	tasks   map[string]*runningTask
	running *atomic.Int64
}

type runningTask struct {
	task   model.Task
	hash   uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(logger log.Logger, handlers map[string]Handler) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.WithComponent("executor"),
		handlers: make(map[string]Handler),
		lock:     &sync.Mutex{},
		wg:       &sync.WaitGroup{},
		tasks:    make(map[string]*runningTask),
		running:  atomic.NewInt64(0),
	}
	for name, h := range handlers {
		m.handlers[name] = h
	}
	return m
}

// ScheduleTask starts the task. A running task with the same descriptor is kept,
// a task with a modified descriptor is restarted, a finished task is started again.
func (m *Manager) ScheduleTask(_ context.Context, task model.Task) error {
	handler, found := m.handlers[task.Handler]
	if !found {
		return errors.Errorf(`unknown handler "%s"`, task.Handler)
	}

	hash, err := hashstructure.Hash(task, hashstructure.FormatV2, nil)
	if err != nil {
		return errors.PrefixError(err, "cannot hash task descriptor")
	}

	m.lock.Lock()
	if m.ctx.Err() != nil {
		m.lock.Unlock()
		return errors.New("executor is stopped")
	}

	var stopped *runningTask
	if existing, ok := m.tasks[task.Name]; ok {
		if existing.hash == hash && !existing.finished() {
			m.lock.Unlock()
			return nil
		}
		stopped = existing
		existing.cancel()
	}
	m.tasks[task.Name] = m.start(task, hash, handler)
	m.lock.Unlock()

	if stopped != nil {
		<-stopped.done
	}
	return nil
}

// ClearLocalTasks stops all tasks not present in the owned list.
func (m *Manager) ClearLocalTasks(ctx context.Context, owned []string) {
	keep := make(map[string]bool, len(owned))
	for _, name := range owned {
		keep[name] = true
	}

	m.lock.Lock()
	var stopped []*runningTask
	for name, t := range m.tasks {
		if !keep[name] {
			m.logger.With(attribute.String("task", name)).Infof(ctx, `stopping task "%s", it is no longer owned`, name)
			t.cancel()
			stopped = append(stopped, t)
			delete(m.tasks, name)
		}
	}
	m.lock.Unlock()

	for _, t := range stopped {
		<-t.done
	}
}

// Running returns sorted names of running tasks.
func (m *Manager) Running() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	out := make([]string, 0, len(m.tasks))
	for name, t := range m.tasks {
		if !t.finished() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// RunningCount returns number of running handlers.
func (m *Manager) RunningCount() int64 {
	return m.running.Load()
}

// Shutdown stops all tasks and waits for them, at most until the ctx is done.
func (m *Manager) Shutdown(ctx context.Context) {
	m.lock.Lock()
	m.cancel()
	m.tasks = make(map[string]*runningTask)
	m.lock.Unlock()

	m.logger.Info(ctx, "stopping all tasks")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info(ctx, "all tasks stopped")
	case <-ctx.Done():
		m.logger.Warnf(ctx, "cannot stop all tasks, %d still running: %s", m.running.Load(), ctx.Err())
	}
}

// start runs the handler in a new goroutine, the lock must be held.
func (m *Manager) start(task model.Task, hash uint64, handler Handler) *runningTask {
	ctx, cancel := context.WithCancel(m.ctx)
	t := &runningTask{task: task, hash: hash, cancel: cancel, done: make(chan struct{})}
	logger := m.logger.With(attribute.String("task", task.Name), attribute.String("task.handler", task.Handler))

	m.running.Inc()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(t.done)
		defer m.running.Dec()
		defer cancel()

		logger.Infof(ctx, `task "%s" started`, task.Name)
		err := handler(ctx, logger, task)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			logger.Errorf(ctx, `task "%s" failed: %s`, task.Name, errors.Format(err))
		case ctx.Err() != nil:
			logger.Infof(ctx, `task "%s" stopped`, task.Name)
		default:
			logger.Infof(ctx, `task "%s" finished`, task.Name)
		}
	}()

	return t
}

func (t *runningTask) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
