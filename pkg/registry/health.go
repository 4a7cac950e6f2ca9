package registry

import "time"

// Health is the payload workers publish to swarm.workers.health (spec §6
// subject table) and the Coordinator's health ingester consumes to drive
// Heartbeat. "Idle" is a synonym for "Running" with load 0.
type Health struct {
	WorkerID     string    `json:"worker_id"`
	Status       string    `json:"status"`
	CurrentLoad  int       `json:"current_load"`
	ErrorCount   int64     `json:"error_count"`
	SuccessCount int64     `json:"success_count"`
	Timestamp    time.Time `json:"timestamp"`
}
