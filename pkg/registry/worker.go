package registry

import (
	"fmt"
	"time"
)

// WorkerType tags a worker with the family of work it was started to do
// (e.g. "pdf_processor", "text_processor"). The original Rust source
// models this as a free-form String; Go has no closed sum type for an
// open-ended set of types, so this mirrors the teacher's own NodeRole/
// ServiceMode idiom instead: a named string with recognized constants
// plus headroom for custom deployments.
type WorkerType string

const (
	WorkerTypePDFProcessor    WorkerType = "pdf_processor"
	WorkerTypeTextProcessor   WorkerType = "text_processor"
	WorkerTypeVectorIndexer   WorkerType = "vector_indexer"
	WorkerTypeGeneralPurpose  WorkerType = "general_purpose"
)

// PerformanceProfile describes a worker's historical throughput and
// resource footprint, used as a scoring input (never a hard gate) by the
// Scheduler.
type PerformanceProfile struct {
	AvgProcessingTimeMS int64   `json:"avg_processing_time_ms"`
	MemoryUsageMB       int64   `json:"memory_usage_mb"`
	CPUIntensity        float64 `json:"cpu_intensity"`
}

// Capability is what a worker declares it can do at registration time.
// SupportedKinds gates eligibility (a worker either can or cannot execute
// a task.TaskKind at all); Capabilities is the finer-grained tag set
// (e.g. "ocr", "table_extraction") the Scheduler's scoring formula uses
// for capability-coverage ranking among otherwise-eligible workers.
type Capability struct {
	Name               string             `json:"name"`
	SupportedKinds     []string           `json:"supported_kinds"`
	Capabilities       []string           `json:"capabilities"`
	MaxConcurrentTasks int                `json:"max_concurrent_tasks"`
	PerformanceProfile PerformanceProfile `json:"performance_profile"`
}

// Supports reports whether this capability covers the given task kind
// string (task.TaskKind.String()).
func (c Capability) Supports(kind string) bool {
	for _, k := range c.SupportedKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// CapabilitySet returns this worker's declared capability tags for
// coverage scoring.
func (c Capability) CapabilitySet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Capabilities))
	for _, cap := range c.Capabilities {
		set[cap] = struct{}{}
	}
	return set
}

// Status is the worker lifecycle FSM state (spec §4.2), mirroring the
// original source's WorkerStatus enum. The Rust Error(String) variant
// becomes a Status plus a separate ErrorMessage field, since Go enums
// cannot carry payloads.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusBusy     Status = "busy"
	StatusIdle     Status = "idle"
	StatusError    Status = "error"
	StatusShutdown Status = "shutdown"
)

// Record is the registry's view of one worker: its identity, declared
// capability, lifecycle state, and current load.
type Record struct {
	ID            string
	Type          WorkerType
	Capability    Capability
	Status        Status
	ErrorMessage  string
	Load          int
	RegisteredAt  time.Time
	LastHeartbeat time.Time
}

// MaxLoad is the worker's declared concurrency ceiling. A worker
// registered with MaxConcurrentTasks == 0 has zero capacity and is never
// eligible for dispatch (spec §8 boundary behavior), so this does not
// default a zero to 1 the way a typical "unset means unlimited" field
// would.
func (r *Record) MaxLoad() int {
	return r.Capability.MaxConcurrentTasks
}

// HasCapacity reports whether the worker can accept one more task without
// violating I1 (0 <= load <= max_load).
func (r *Record) HasCapacity() bool {
	return r.Load < r.MaxLoad()
}

// Schedulable reports whether the worker is in a state the Scheduler may
// dispatch to: Running or Idle with free capacity. Busy workers with free
// capacity (a worker whose MaxConcurrentTasks > 1) are also schedulable.
func (r *Record) Schedulable() bool {
	switch r.Status {
	case StatusRunning, StatusIdle, StatusBusy:
		return r.HasCapacity()
	default:
		return false
	}
}

// validate checks the fields a caller must supply before Register admits
// a record.
func (r *Record) validate() error {
	if r.ID == "" {
		return fmt.Errorf("registry: worker id must not be empty")
	}
	if r.Capability.MaxConcurrentTasks < 0 {
		return fmt.Errorf("registry: worker %s max_concurrent_tasks must be >= 0", r.ID)
	}
	return nil
}

// Snapshot is a read-only copy of a Record safe to hand to callers outside
// the registry's lock.
type Snapshot struct {
	ID            string
	Type          WorkerType
	Capability    Capability
	Status        Status
	ErrorMessage  string
	Load          int
	MaxLoad       int
	RegisteredAt  time.Time
	LastHeartbeat time.Time
}

func (r *Record) snapshot() Snapshot {
	return Snapshot{
		ID:            r.ID,
		Type:          r.Type,
		Capability:    r.Capability,
		Status:        r.Status,
		ErrorMessage:  r.ErrorMessage,
		Load:          r.Load,
		MaxLoad:       r.MaxLoad(),
		RegisteredAt:  r.RegisteredAt,
		LastHeartbeat: r.LastHeartbeat,
	}
}
