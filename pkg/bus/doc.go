/*
Package bus is the message transport the rest of the swarm is built on: a
small publish/subscribe surface moving Envelopes between the Coordinator and
its Workers over named subjects.

Two bindings satisfy the Bus interface: an in-memory binding for tests and
single-process deployments (memory.go), and a NATS-backed binding for real
clusters (nats.go). Callers code against Bus/Subscription only; neither
binding's internals leak past this package.
*/
package bus
