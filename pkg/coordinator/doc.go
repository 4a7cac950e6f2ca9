/*
Package coordinator is the front door of the swarm: it owns the
WorkerRegistry and Scheduler, accepts task submissions and worker
registrations, ingests results published back over the bus, and runs the
three background loops named in spec §4.4 — the scheduler tick (delegated
to pkg/scheduler), a result ingester subscribed to the results subject,
and a stale-worker evictor — plus a worker-health ingester subscribed to
the worker-health subject that feeds registry heartbeats.

The Coordinator is the only owner of the in-flight table (task_id ->
assigned worker); the Scheduler only ever learns about a dispatch decision
through the DispatchCallback/TerminalCallback hooks it is constructed
with, preserving the Registry -> InFlight -> Pending lock order spec §5
requires.
*/
package coordinator
