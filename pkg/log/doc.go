/*
Package log provides structured logging for the swarm coordination core
using zerolog.

It wraps a single global zerolog.Logger with JSON or console output
(Config.JSONOutput; the zero value selects console), plus
a set of context-logger constructors (WithComponent, WithWorkerID,
WithTaskID, WithSubject, ...) that attach a field to every record a
subsystem emits without threading a logger through every call.

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	schedLog := log.WithComponent("scheduler")
	schedLog.Info().Str("task_id", t.ID).Msg("dispatched")

	workerLog := log.WithWorkerID(id)
	workerLog.Warn().Err(err).Msg("heartbeat publish failed")

# Context loggers

Each pkg/<component> package (bus, registry, scheduler, coordinator)
calls WithComponent(name) once at construction and keeps the result as a
field on its struct, rather than calling the global Logger directly, so
every line it emits carries "component":"<name>" for filtering. The
worker Runtime keeps a WithWorkerID(id) logger instead. WithWorkerID/WithTaskID/WithSubject attach the identifier a
handler is currently processing; they're cheap per-call constructors, not
meant to be cached across requests the way a component logger is.

# Output

JSON (JSONOutput: true):

	{"level":"info","component":"scheduler","time":"...","message":"dispatched","task_id":"t-1"}

Console (JSONOutput: false, for local development; RFC 3339 timestamps):

	2026-01-02T15:04:05Z INF dispatched component=scheduler task_id=t-1
*/
package log
