// Package metrics contains Prometheus collectors of the scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "scheduler"

// Metrics of one worker process, all collectors are registered to the Registry.
type Metrics struct {
	Registry       *prometheus.Registry
	Members        prometheus.Gauge
	IsLeader       prometheus.Gauge
	AssignPasses   prometheus.Counter
	RecordsCreated prometheus.Counter
	RecordsDeleted *prometheus.CounterVec
	LocalTasks     prometheus.Gauge
}

// New creates collectors registered in a new registry, process and Go runtime collectors are included.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members",
			Help:      "Number of live workers in the cluster.",
		}),
		IsLeader: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "is_leader",
			Help:      "1 if the worker is the leader, otherwise 0.",
		}),
		AssignPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assign_passes_total",
			Help:      "Number of assignment passes run by the leader.",
		}),
		RecordsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_records_created_total",
			Help:      "Number of created assignment records.",
		}),
		RecordsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_records_deleted_total",
			Help:      "Number of deleted assignment records, by reason.",
		}, []string{"reason"}),
		LocalTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "local_tasks",
			Help:      "Number of tasks owned by the worker.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Members,
		m.IsLeader,
		m.AssignPasses,
		m.RecordsCreated,
		m.RecordsDeleted,
		m.LocalTasks,
	)

	return m
}

// Bool converts the value for a gauge.
func Bool(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
