package executor

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cast"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/model"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

const (
	LogHandlerName      = "log"
	defaultLogInterval  = 10 * time.Second
	logIntervalParamKey = "interval"
)

// LogHandler logs a message in the interval until the task is stopped.
// The interval is set by the "interval" param, for example "30s".
func LogHandler(clock clockwork.Clock) Handler {
	return func(ctx context.Context, logger log.Logger, task model.Task) error {
		interval := defaultLogInterval
		if v, ok := task.Params[logIntervalParamKey]; ok {
			d, err := cast.ToDurationE(v)
			if err != nil || d <= 0 {
				return errors.Errorf(`invalid param "%s" value "%s"`, logIntervalParamKey, v)
			}
			interval = d
		}

		ticker := clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.Chan():
				logger.Infof(ctx, `task "%s" is running`, task.Name)
			}
		}
	}
}

// DefaultHandlers returns built-in handlers.
func DefaultHandlers(clock clockwork.Clock) map[string]Handler {
	return map[string]Handler{
		LogHandlerName: LogHandler(clock),
	}
}
