package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/swarm/pkg/log"
)

// DefaultHeartbeatInterval is the interval workers are expected to send
// heartbeats at (spec §4.2).
const DefaultHeartbeatInterval = 30 * time.Second

// staleMultiple is how many missed heartbeat intervals mark a worker
// stale, resolved in SPEC_FULL.md's open-question section: 3x the
// heartbeat interval (90s at the 30s default).
const staleMultiple = 3

// ErrWorkerExists is returned by Register when the id is already present.
var ErrWorkerExists = errors.New("registry: worker already registered")

// Registry tracks every worker known to the swarm under a single mutex.
type Registry struct {
	mu                sync.RWMutex
	workers           map[string]*Record
	heartbeatInterval time.Duration
	logger            zerolog.Logger
}

// New constructs an empty Registry. heartbeatInterval of 0 uses
// DefaultHeartbeatInterval.
func New(heartbeatInterval time.Duration) *Registry {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	return &Registry{
		workers:           make(map[string]*Record),
		heartbeatInterval: heartbeatInterval,
		logger:            log.WithComponent("registry"),
	}
}

// staleTimeout is the duration since last heartbeat after which a worker
// is evicted.
func (r *Registry) staleTimeout() time.Duration {
	return time.Duration(staleMultiple) * r.heartbeatInterval
}

// Register admits a new worker in Starting status. Fails if the id is
// already present: a duplicate registration must not reset the load of a
// worker that may still have tasks in flight (I3).
func (r *Registry) Register(rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}

	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[rec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrWorkerExists, rec.ID)
	}

	stored := &Record{
		ID:            rec.ID,
		Type:          rec.Type,
		Capability:    rec.Capability,
		Status:        StatusStarting,
		Load:          0,
		RegisteredAt:  now,
		LastHeartbeat: now,
	}
	r.workers[rec.ID] = stored

	r.logger.Info().
		Str("worker_id", rec.ID).
		Str("worker_type", string(rec.Type)).
		Int("max_concurrent_tasks", stored.MaxLoad()).
		Msg("worker registered")
	return nil
}

// Unregister removes a worker from the registry entirely (spec
// unregister_worker, used for graceful shutdown).
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workers[id]; !ok {
		return fmt.Errorf("registry: unknown worker %s", id)
	}
	delete(r.workers, id)
	r.logger.Info().Str("worker_id", id).Msg("worker unregistered")
	return nil
}

// Heartbeat records that a worker is alive, updating its status and
// current load. Heartbeats from an unknown id are silently ignored
// (out-of-order heartbeats arriving after an unregister).
func (r *Registry) Heartbeat(id string, status Status, load int, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[id]
	if !ok {
		return nil
	}

	rec.LastHeartbeat = time.Now()
	rec.Status = status
	rec.ErrorMessage = errMsg
	if load >= 0 {
		rec.Load = load
	}
	return nil
}

// SetStatus transitions a worker's lifecycle state directly, leaving its
// load and LastHeartbeat untouched. The Coordinator's health ingester uses
// Heartbeat, not SetStatus, for WorkerHealth envelopes.
func (r *Registry) SetStatus(id string, status Status, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("registry: unknown worker %s", id)
	}
	rec.Status = status
	rec.ErrorMessage = errMsg
	return nil
}

// IncrementLoad bumps a worker's in-flight task count by one, enforcing
// I1 (load must not exceed max_load). Called by the Scheduler at the
// moment it dispatches a task, under the Registry -> InFlight -> Pending
// lock order.
func (r *Registry) IncrementLoad(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("registry: unknown worker %s", id)
	}
	if !rec.HasCapacity() {
		return fmt.Errorf("registry: worker %s at capacity (%d/%d)", id, rec.Load, rec.MaxLoad())
	}
	rec.Load++
	if rec.Load >= rec.MaxLoad() {
		rec.Status = StatusBusy
	}
	return nil
}

// DecrementLoad releases one unit of a worker's load, called when a task
// result arrives. Load never goes below 0 regardless of duplicate
// decrements (I1).
func (r *Registry) DecrementLoad(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("registry: unknown worker %s", id)
	}
	if rec.Load > 0 {
		rec.Load--
	}
	if rec.Status == StatusBusy && rec.HasCapacity() {
		rec.Status = StatusIdle
	}
	return nil
}

// Get returns a snapshot of one worker's record.
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.workers[id]
	if !ok {
		return Snapshot{}, false
	}
	return rec.snapshot(), true
}

// Eligible returns a snapshot of every schedulable worker whose
// capability covers kind, for the Scheduler's matching pass.
func (r *Registry) Eligible(kind string) []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Snapshot
	for _, rec := range r.workers {
		if rec.Schedulable() && rec.Capability.Supports(kind) {
			out = append(out, rec.snapshot())
		}
	}
	return out
}

// Snapshot returns every worker currently known to the registry.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.workers))
	for _, rec := range r.workers {
		out = append(out, rec.snapshot())
	}
	return out
}

// EvictStale removes every worker whose last heartbeat is older than the
// stale timeout (3x heartbeat interval) and returns their ids.
func (r *Registry) EvictStale(now time.Time) []string {
	timeout := r.staleTimeout()

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, rec := range r.workers {
		if rec.Status == StatusShutdown {
			continue
		}
		if now.Sub(rec.LastHeartbeat) > timeout {
			evicted = append(evicted, id)
			delete(r.workers, id)
		}
	}

	if len(evicted) > 0 {
		r.logger.Warn().
			Strs("worker_ids", evicted).
			Dur("stale_timeout", timeout).
			Msg("evicted stale workers")
	}
	return evicted
}

// Stats summarizes registry-wide worker counts, mirroring the original
// source's WorkerManagerStats.
type Stats struct {
	TotalWorkers  int
	ByType        map[WorkerType]int
	ByStatus      map[Status]int
	TotalLoad     int
	TotalCapacity int
}

// Stats computes a point-in-time summary for pkg/metrics' collector.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalWorkers: len(r.workers),
		ByType:       make(map[WorkerType]int),
		ByStatus:     make(map[Status]int),
	}
	for _, rec := range r.workers {
		stats.ByType[rec.Type]++
		stats.ByStatus[rec.Status]++
		stats.TotalLoad += rec.Load
		stats.TotalCapacity += rec.MaxLoad()
	}
	return stats
}
