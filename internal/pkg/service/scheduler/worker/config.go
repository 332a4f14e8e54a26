package worker

import (
	"time"

	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/assignment"
)

type Config struct {
	ServerRoot string `configKey:"serverRoot" configUsage:"Path of the workers namespace in the coordination store." validate:"required,coordinationPath"`
	TaskRoot   string `configKey:"taskRoot" configUsage:"Path of the tasks namespace in the coordination store." validate:"required,coordinationPath"`
	// SessionTTLSeconds configures the number of seconds after which the worker is automatically un-registered if an outage occurs.
	SessionTTLSeconds int `configKey:"sessionTTLSeconds" configUsage:"Seconds after which the worker is automatically un-registered if an outage occurs." validate:"required,min=1,max=300"`
	// CheckInterval configures how often the assignment and the local tasks are reconciled, regardless of changes.
	CheckInterval time.Duration `configKey:"checkInterval" configUsage:"Interval of the periodic assignment and local tasks check." validate:"required,min=100ms,max=1h"`
	// EventsGroupInterval configures how often changes in the cluster topology are processed.
	// All changes in the interval are grouped together. Use 0 to disable the grouping.
	EventsGroupInterval time.Duration `configKey:"eventsGroupInterval" configUsage:"Interval of processing changes in the topology. Use 0 to disable the grouping." validate:"min=0,max=30s"`
	StartupTimeout      time.Duration `configKey:"startupTimeout" configUsage:"Timeout for the worker registration to the cluster." validate:"required,min=1s,max=5m"`
	ShutdownTimeout     time.Duration `configKey:"shutdownTimeout" configUsage:"Timeout for stopping of local tasks." validate:"required,min=1s,max=5m"`
	OperationTimeout    time.Duration `configKey:"operationTimeout" configUsage:"Timeout of one coordination store operation." validate:"required,min=100ms,max=1m"`
	Strategy            string        `configKey:"strategy" configUsage:"Strategy of picking a worker for an unassigned task: roundRobin or consistentHash." validate:"required,oneof=roundRobin consistentHash"`
	PruneStaleRecords   bool          `configKey:"pruneStaleRecords" configUsage:"Delete assignment records of dead workers, instead of waiting for the store to expire them."`
}

func NewConfig() Config {
	return Config{
		ServerRoot:          "/servers",
		TaskRoot:            "/tasks",
		SessionTTLSeconds:   15,
		CheckInterval:       10 * time.Second,
		EventsGroupInterval: time.Second,
		StartupTimeout:      60 * time.Second,
		ShutdownTimeout:     30 * time.Second,
		OperationTimeout:    10 * time.Second,
		Strategy:            assignment.StrategyRoundRobin,
	}
}
