/*
Package metrics provides Prometheus metrics collection and exposition for
the swarm coordination core.

Metrics are registered once at package init and are safe for concurrent
updates from the Coordinator, Scheduler, Registry, and Worker runtime.
They are exposed over HTTP for scraping.

# Metrics catalog

Worker metrics:

  - swarm_workers_total{worker_type,status} (gauge): registered workers.
  - swarm_worker_load{worker_id} (gauge): in-flight tasks per worker.
  - swarm_workers_evicted_total (counter): workers evicted for stale heartbeats.

Task metrics:

  - swarm_tasks_total{status} (counter): terminal task outcomes.
  - swarm_tasks_pending (gauge): tasks waiting in the pending queue.
  - swarm_tasks_in_flight (gauge): tasks assigned and awaiting a result.
  - swarm_task_retries_total (counter): retries issued after a failure.

Scheduler metrics:

  - swarm_scheduling_latency_seconds (histogram): pickup-to-dispatch latency.
  - swarm_tasks_dispatched_total (counter): successful dispatches.
  - swarm_dispatch_failures_total (counter): dispatch attempts requeued.

Bus metrics:

  - swarm_bus_messages_total{subject,outcome} (counter): publish/deliver/drop counts.

# Usage

	timer := metrics.NewTimer()
	// ... schedule one task ...
	timer.ObserveDuration(metrics.SchedulingLatency)

	metrics.TasksTotal.WithLabelValues("completed").Inc()
	metrics.WorkersTotal.WithLabelValues("pdf_processor", "running").Set(3)

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
