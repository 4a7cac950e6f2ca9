package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// Priority is a totally ordered task priority: Low < Normal < High < Critical.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String renders the priority for logging.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Kind names the family of work a Task represents. Document processing,
// text analysis and vector indexing are built-in; Custom carries a
// name/version pair for
// executor types this codebase does not know about (the tagged "Custom"
// variant from the spec's Task.kind).
type Kind string

const (
	KindDocumentProcessing Kind = "document_processing"
	KindTextAnalysis       Kind = "text_analysis"
	KindVectorIndexing     Kind = "vector_indexing"
	KindCustom             Kind = "custom"
)

// TaskKind is the tagged variant of Task.Kind. DocType/Operation apply only
// to KindDocumentProcessing; Name/Version apply only to KindCustom.
type TaskKind struct {
	Kind      Kind         `json:"kind"`
	DocType   DocumentType `json:"doc_type,omitempty"`
	Operation string       `json:"operation,omitempty"`
	Name      string       `json:"name,omitempty"`
	Version   string       `json:"version,omitempty"`
}

// String renders a stable identifier for the kind, used for capability
// matching (registry.Capability.SupportedKinds) and logging.
func (k TaskKind) String() string {
	switch k.Kind {
	case KindDocumentProcessing:
		return fmt.Sprintf("document_processing:%s:%s", k.DocType, k.Operation)
	case KindCustom:
		return fmt.Sprintf("custom:%s:%s", k.Name, k.Version)
	default:
		return string(k.Kind)
	}
}

// Requirements describes what a worker must offer to be eligible for a task.
type Requirements struct {
	Capabilities    []string      `json:"capabilities,omitempty"`
	PreferredWorker string        `json:"preferred_worker_type,omitempty"`
	MaxProcessing   time.Duration `json:"max_processing_time,omitempty"`
	MinMemoryMB     int64         `json:"min_memory_mb,omitempty"`
}

// Status is the task lifecycle FSM state (spec §4.3).
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether status is a terminal FSM state (P2).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// PayloadFormat tags the encoding of Task.Payload when it is opaque bytes
// rather than an inline Document.
type PayloadFormat string

const (
	PayloadFormatJSON   PayloadFormat = "application/json"
	PayloadFormatBinary PayloadFormat = "application/octet-stream"
)

// Task is the unit of work submitted to the Coordinator.
type Task struct {
	ID           string                 `json:"id"`
	Kind         TaskKind               `json:"kind"`
	Priority     Priority               `json:"priority"`
	PayloadBytes []byte                 `json:"payload_bytes,omitempty"`
	PayloadFmt   PayloadFormat          `json:"payload_format,omitempty"`
	Document     *Document              `json:"document,omitempty"`
	Requirements Requirements           `json:"requirements"`
	CreatedAt    time.Time              `json:"created_at"`
	Deadline     *time.Time             `json:"deadline,omitempty"`
	RetryCount   int                    `json:"retry_count"`
	MaxRetries   int                    `json:"max_retries"`
	Status       Status                 `json:"status"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Validate enforces the invariants the Coordinator must check before
// admitting a task (spec §4.4 submit_task validation).
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task: id must not be empty")
	}
	if t.MaxRetries < 0 {
		return fmt.Errorf("task %s: max_retries must be >= 0, got %d", t.ID, t.MaxRetries)
	}
	if t.RetryCount > t.MaxRetries {
		return fmt.Errorf("task %s: retry_count %d exceeds max_retries %d", t.ID, t.RetryCount, t.MaxRetries)
	}
	if t.Kind.Kind == KindDocumentProcessing && t.Document == nil && len(t.PayloadBytes) == 0 {
		return fmt.Errorf("task %s: document_processing task requires a document or payload", t.ID)
	}
	return nil
}

// DeadlineExceeded reports whether the task's optional deadline has passed.
func (t *Task) DeadlineExceeded(now time.Time) bool {
	return t.Deadline != nil && now.After(*t.Deadline)
}

// Clone returns a deep-enough copy for handing off to a worker: callers
// mutate the clone's Status/RetryCount independently of the Coordinator's
// copy of record.
func (t *Task) Clone() *Task {
	clone := *t
	if t.Deadline != nil {
		d := *t.Deadline
		clone.Deadline = &d
	}
	if t.Document != nil {
		doc := *t.Document
		clone.Document = &doc
	}
	if t.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(t.Metadata))
		for k, v := range t.Metadata {
			clone.Metadata[k] = v
		}
	}
	if t.PayloadBytes != nil {
		clone.PayloadBytes = append([]byte(nil), t.PayloadBytes...)
	}
	return &clone
}

// ResultStatus is the terminal outcome reported by a TaskResult.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
	ResultCancelled ResultStatus = "cancelled"
)

// Result is the outcome of one execution attempt, produced once by a worker
// and consumed once by the Coordinator's result ingester.
type Result struct {
	TaskID           string                 `json:"task_id"`
	Status           ResultStatus           `json:"status"`
	Payload          json.RawMessage        `json:"payload,omitempty"`
	Error            string                 `json:"error,omitempty"`
	ProcessingTimeMS int64                  `json:"processing_time_ms"`
	CompletedAt      time.Time              `json:"completed_at"`
	RetryCount       int                    `json:"retry_count"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// Retryable reports whether this failed result's task should be reinserted
// into the pending queue rather than treated as terminal.
func (r *Result) Retryable(maxRetries int) bool {
	return r.Status == ResultFailed && r.RetryCount < maxRetries
}
