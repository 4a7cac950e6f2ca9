// Package worker implements the worker side of the swarm: Runtime wraps
// one or more TaskExecutors, subscribes to its own inbox subject, and
// drives the heartbeat / task-pickup / graceful-shutdown lifecycle
// described in spec §4.5. TaskExecutor and DocumentSource are the plug-in
// boundary; this package defines the interfaces plus EchoExecutor (used by
// tests and by cmd/swarmd's embedded demo workers) and FixedDocumentSource
// (used only by tests), both reference implementations.
package worker
