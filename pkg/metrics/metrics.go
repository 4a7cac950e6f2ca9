package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarm_workers_total",
			Help: "Total number of registered workers by type and status",
		},
		[]string{"worker_type", "status"},
	)

	WorkerLoad = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarm_worker_load",
			Help: "Current in-flight task count per worker",
		},
		[]string{"worker_id"},
	)

	WorkersEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarm_workers_evicted_total",
			Help: "Total number of workers evicted for missing heartbeats",
		},
	)

	// Task metrics
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_tasks_total",
			Help: "Total number of tasks by terminal outcome",
		},
		[]string{"status"},
	)

	TasksPendingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swarm_tasks_pending",
			Help: "Current number of tasks waiting in the pending queue",
		},
	)

	TasksInFlightGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swarm_tasks_in_flight",
			Help: "Current number of tasks assigned to a worker and awaiting a result",
		},
	)

	TaskRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarm_task_retries_total",
			Help: "Total number of task retries issued after a failed attempt",
		},
	)

	// Scheduler metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swarm_scheduling_latency_seconds",
			Help:    "Time from a scheduling tick picking up a task to its dispatch",
			Buckets: prometheus.DefBuckets,
		},
	)

	TasksDispatchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarm_tasks_dispatched_total",
			Help: "Total number of tasks successfully dispatched to a worker",
		},
	)

	DispatchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarm_dispatch_failures_total",
			Help: "Total number of dispatch attempts that failed and were requeued",
		},
	)

	// Bus metrics
	BusMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarm_bus_messages_total",
			Help: "Total number of bus messages by subject and outcome",
		},
		[]string{"subject", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(WorkerLoad)
	prometheus.MustRegister(WorkersEvictedTotal)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TasksPendingGauge)
	prometheus.MustRegister(TasksInFlightGauge)
	prometheus.MustRegister(TaskRetriesTotal)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(TasksDispatchedTotal)
	prometheus.MustRegister(DispatchFailuresTotal)
	prometheus.MustRegister(BusMessagesTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
