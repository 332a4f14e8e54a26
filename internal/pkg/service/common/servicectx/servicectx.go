// Package servicectx provides the unique ID of a service process and the graceful shutdown.
package servicectx

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/keboola/cluster-scheduler/internal/pkg/idgenerator"
	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

const defaultShutdownTimeout = 30 * time.Second

// Process represents a running service.
// Operations added by Process.Add run until the process context is cancelled.
// Callbacks registered by Process.OnShutdown are invoked in LIFO order when the process is terminating.
type Process struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   log.Logger
	wg       *sync.WaitGroup
	errCh    chan error
	uniqueID string
	timeout  time.Duration

	lock        *sync.Mutex
	terminating bool
	onShutdown  []OnShutdownFn
}

type Option func(c *config)

// OnShutdownFn is a shutdown callback, the ctx is limited by the shutdown timeout.
type OnShutdownFn func(ctx context.Context)

type config struct {
	uniqueID        string
	shutdownTimeout time.Duration
	signals         bool
}

// WithUniqueID sets unique ID of the service process.
// By default, it is generated from the hostname and PID.
func WithUniqueID(v string) Option {
	return func(c *config) {
		c.uniqueID = v
	}
}

// WithShutdownTimeout limits the duration of all OnShutdown callbacks together.
func WithShutdownTimeout(v time.Duration) Option {
	return func(c *config) {
		c.shutdownTimeout = v
	}
}

// WithoutSignals disables SIGINT and SIGTERM handling.
func WithoutSignals() Option {
	return func(c *config) {
		c.signals = false
	}
}

func New(ctx context.Context, logger log.Logger, opts ...Option) (*Process, error) {
	c := config{shutdownTimeout: defaultShutdownTimeout, signals: true}
	for _, o := range opts {
		o(&c)
	}

	if c.uniqueID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, errors.PrefixError(err, "cannot get hostname")
		}
		c.uniqueID = fmt.Sprintf(`%s-%05d`, hostname, os.Getpid())
	}

	ctx, cancel := context.WithCancel(ctx)
	proc := &Process{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.WithComponent("process"),
		wg:       &sync.WaitGroup{},
		errCh:    make(chan error),
		uniqueID: c.uniqueID,
		timeout:  c.shutdownTimeout,
		lock:     &sync.Mutex{},
	}

	// SIGINT and SIGTERM stop the process gracefully
	if c.signals {
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			select {
			case sig := <-sigCh:
				proc.Shutdown(errors.Errorf("%s", sig))
			case <-ctx.Done():
			}
		}()
	}

	proc.Add(func(ctx context.Context, _ chan<- error) {
		<-ctx.Done()
		proc.runShutdownCallbacks()
	})

	proc.logger.Infof(ctx, `process unique id "%s"`, proc.UniqueID())
	return proc, nil
}

func NewForTest(t *testing.T) *Process {
	t.Helper()

	proc, err := New(
		context.Background(),
		log.NewNopLogger(),
		WithUniqueID("test_"+idgenerator.ProcessID()),
		WithoutSignals(),
	)
	if err != nil {
		t.Fatal(err)
		return nil
	}

	t.Cleanup(func() {
		proc.Shutdown(errors.New("test cleanup"))
		proc.WaitForShutdown()
	})

	return proc
}

// Ctx returns context of the Process, it is cancelled on shutdown.
func (v *Process) Ctx() context.Context {
	return v.ctx
}

// UniqueID returns unique process ID, by default it consists of hostname and PID.
func (v *Process) UniqueID() string {
	return v.uniqueID
}

// Shutdown triggers termination of the Process.
// It is safe to call it multiple times, only the first error is logged.
func (v *Process) Shutdown(err error) {
	go func() {
		select {
		case v.errCh <- err:
		case <-v.ctx.Done():
		}
	}()
}

// WaitForShutdown blocks until the process is terminated and all operations are completed.
func (v *Process) WaitForShutdown() {
	select {
	case err := <-v.errCh:
		v.logger.Infof(context.Background(), "exiting (%v)", err)
	case <-v.ctx.Done():
		v.logger.Info(context.Background(), "exiting (context cancelled)")
	}

	v.cancel()
	v.wg.Wait()
	v.logger.Info(context.Background(), "exited")
}

// Add an operation.
// The ctx parameter is cancelled when the process is terminating.
// The errCh parameter can be used to stop the process with an error.
func (v *Process) Add(operation func(ctx context.Context, errCh chan<- error)) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		operation(v.ctx, v.errCh)
	}()
}

// OnShutdown registers a callback that is invoked when the process is terminating.
// Callbacks are invoked sequentially in LIFO order.
func (v *Process) OnShutdown(fn OnShutdownFn) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.terminating {
		v.logger.Error(context.Background(), "cannot register OnShutdown callback: the process is terminating")
		return
	}
	v.onShutdown = append(v.onShutdown, fn)
}

func (v *Process) runShutdownCallbacks() {
	v.lock.Lock()
	v.terminating = true
	callbacks := v.onShutdown
	v.lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()
	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i](ctx)
	}
}
