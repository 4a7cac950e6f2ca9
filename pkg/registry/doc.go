/*
Package registry tracks every worker known to the swarm: its declared
capabilities, its lifecycle state, and its current load. The Scheduler
reads the registry to find eligible workers; the Coordinator writes to it
on registration, heartbeat, and task completion.

A single mutex guards all registry state; callers get a consistent
Snapshot rather than partial views of in-flight mutation.
*/
package registry
