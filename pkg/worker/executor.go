package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/swarm/pkg/task"
)

// TaskExecutor is the plug-in boundary a Runtime dispatches work through
// (spec §6). Real decoders — PDF/Word/HTML/Markdown/Text parsers and
// whatever NLP sits behind vector indexing — are external collaborators;
// this package only defines the interface and the EchoExecutor reference
// implementation used by tests.
type TaskExecutor interface {
	// SupportedKinds reports the task.TaskKind.String() values this
	// executor knows how to run.
	SupportedKinds() []string
	// Estimate returns this executor's expected processing time for t.
	// Runtime does not call it: a task without a Deadline runs with no
	// execution deadline.
	Estimate(t *task.Task) time.Duration
	// Execute runs t to completion or until ctx is cancelled, returning
	// the result payload to embed in the TaskResult.
	Execute(ctx context.Context, t *task.Task) (json.RawMessage, error)
}

// DocumentSource produces documents to be wrapped as tasks by an ingester
// (spec §6). No built-in implementation crawls a real filesystem or
// object store; FixedDocumentSource below exists only for tests.
type DocumentSource interface {
	Start(ctx context.Context) error
	Stop() error
	Next(ctx context.Context) (*task.Document, error)
	Stats() DocumentSourceStats
}

// DocumentSourceStats reports how many documents a DocumentSource has
// produced and how many remain, where the source can know that in advance.
type DocumentSourceStats struct {
	Produced  int64
	Remaining int64
}

// EchoExecutor supports a single custom task kind ("custom:<name>:<version>")
// and returns the task's own payload bytes unchanged, exercising the
// dispatch/result round trip without any real document-processing logic
// (spec §8 scenario 1's "echo" worker).
type EchoExecutor struct {
	Name    string
	Version string
	Delay   time.Duration
}

// NewEchoExecutor builds an EchoExecutor bound to custom:name:version.
func NewEchoExecutor(name, version string) *EchoExecutor {
	return &EchoExecutor{Name: name, Version: version}
}

func (e *EchoExecutor) kind() task.TaskKind {
	return task.TaskKind{Kind: task.KindCustom, Name: e.Name, Version: e.Version}
}

// SupportedKinds implements TaskExecutor.
func (e *EchoExecutor) SupportedKinds() []string {
	return []string{e.kind().String()}
}

// Estimate implements TaskExecutor.
func (e *EchoExecutor) Estimate(t *task.Task) time.Duration {
	return e.Delay
}

// Execute implements TaskExecutor: echoes t.PayloadBytes back as the result.
func (e *EchoExecutor) Execute(ctx context.Context, t *task.Task) (json.RawMessage, error) {
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if len(t.PayloadBytes) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(t.PayloadBytes), nil
}

// FixedDocumentSource serves a preloaded slice of documents, one per Next
// call, then reports io.EOF-equivalent exhaustion via ErrExhausted. Used
// only by tests; a real ingester would crawl a filesystem or object store.
type FixedDocumentSource struct {
	docs   []*task.Document
	offset int
	stats  DocumentSourceStats
}

// ErrExhausted is returned by FixedDocumentSource.Next once every document
// has been served.
var ErrExhausted = fmt.Errorf("worker: document source exhausted")

// NewFixedDocumentSource builds a DocumentSource over a fixed set of
// in-memory documents.
func NewFixedDocumentSource(docs []*task.Document) *FixedDocumentSource {
	return &FixedDocumentSource{docs: docs, stats: DocumentSourceStats{Remaining: int64(len(docs))}}
}

func (f *FixedDocumentSource) Start(ctx context.Context) error { return nil }

func (f *FixedDocumentSource) Stop() error { return nil }

func (f *FixedDocumentSource) Next(ctx context.Context) (*task.Document, error) {
	if f.offset >= len(f.docs) {
		return nil, ErrExhausted
	}
	doc := f.docs[f.offset]
	f.offset++
	f.stats.Produced++
	f.stats.Remaining = int64(len(f.docs) - f.offset)
	return doc, nil
}

func (f *FixedDocumentSource) Stats() DocumentSourceStats {
	return f.stats
}
