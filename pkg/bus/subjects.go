package bus

import "fmt"

// Subject names in the wire-visible "swarm" namespace (spec §6). Every
// component that publishes or subscribes uses these constants rather than
// inlining subject strings.
const (
	SubjectDocumentsIncoming    = "swarm.documents.incoming"
	SubjectTasksAssignments     = "swarm.tasks.assignments"
	SubjectTasksResults         = "swarm.tasks.results"
	SubjectWorkersRegistration  = "swarm.workers.registration"
	SubjectWorkersHealth        = "swarm.workers.health"
	SubjectWorkersStatus        = "swarm.workers.status"
	SubjectHeartbeat            = "swarm.heartbeat"
	SubjectErrors               = "swarm.errors"
	workerInboxPrefix           = "swarm.workers.inbox."
)

// WorkerInboxSubject returns the dedicated per-worker subject the
// Scheduler dispatches assignments to and Coordinator.Shutdown broadcasts
// its shutdown message on.
func WorkerInboxSubject(workerID string) string {
	return fmt.Sprintf("%s%s", workerInboxPrefix, workerID)
}
