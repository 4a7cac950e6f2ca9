/*
Package task defines the data model that flows through the swarm's
coordination core: the Task a submitter hands to the Coordinator, the
TaskResult a worker hands back, and the Document payload used by the
document-processing task kind.

None of the types in this package know about the bus, the registry, or the
scheduler. They are plain, JSON-serializable values passed by the other
packages.
*/
package task
