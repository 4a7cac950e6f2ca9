package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/swarm/pkg/bus"
	"github.com/cuemby/swarm/pkg/registry"
	"github.com/cuemby/swarm/pkg/task"
)

func newTestTask(id string, kind task.Kind, priority task.Priority) *task.Task {
	return &task.Task{
		ID:         id,
		Kind:       task.TaskKind{Kind: kind},
		Priority:   priority,
		CreatedAt:  time.Now(),
		MaxRetries: 1,
		Status:     task.StatusPending,
	}
}

func newTestWorker(id string, kinds []string, caps []string, maxConcurrent int) *registry.Record {
	return &registry.Record{
		ID:   id,
		Type: registry.WorkerTypeGeneralPurpose,
		Capability: registry.Capability{
			Name:               "test",
			SupportedKinds:     kinds,
			Capabilities:       caps,
			MaxConcurrentTasks: maxConcurrent,
		},
	}
}

// recorder collects dispatch/terminal callback invocations for assertions.
type recorder struct {
	mu        sync.Mutex
	dispatch  []string
	terminals []string
}

func (r *recorder) onDispatch(workerID string, t *task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatch = append(r.dispatch, t.ID+"->"+workerID)
}

func (r *recorder) onTerminal(t *task.Task, status task.Status, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminals = append(r.terminals, t.ID+":"+string(status)+":"+reason)
}

func (r *recorder) dispatches() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.dispatch))
	copy(out, r.dispatch)
	return out
}

func (r *recorder) terminalsSnapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.terminals))
	copy(out, r.terminals)
	return out
}

func newTestScheduler(t *testing.T, reg *registry.Registry, rec *recorder) (*Scheduler, bus.Bus) {
	t.Helper()
	b := bus.NewMemory()
	s := New(reg, b, time.Millisecond, rec.onDispatch, rec.onTerminal)
	return s, b
}

func TestDispatchSingleWorker(t *testing.T) {
	reg := registry.New(time.Minute)
	require.NoError(t, reg.Register(newTestWorker("w1", []string{"text_analysis"}, nil, 1)))
	require.NoError(t, reg.SetStatus("w1", registry.StatusRunning, ""))

	rec := &recorder{}
	s, b := newTestScheduler(t, reg, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := b.Subscribe(ctx, bus.WorkerInboxSubject("w1"))
	require.NoError(t, err)

	s.Submit(newTestTask("t1", task.KindTextAnalysis, task.PriorityNormal))
	s.tick()

	env, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", env.Headers["task-id"])

	assert.Equal(t, []string{"t1->w1"}, rec.dispatches())

	snap, ok := reg.Get("w1")
	require.True(t, ok)
	assert.Equal(t, 1, snap.Load)
}

func TestCapabilityMismatchNeverDispatches(t *testing.T) {
	reg := registry.New(time.Minute)
	require.NoError(t, reg.Register(newTestWorker("w1", []string{"text_analysis"}, nil, 1)))
	require.NoError(t, reg.SetStatus("w1", registry.StatusRunning, ""))
	require.NoError(t, reg.Register(newTestWorker("w2", []string{"vector_indexing"}, nil, 1)))
	require.NoError(t, reg.SetStatus("w2", registry.StatusRunning, ""))

	rec := &recorder{}
	s, _ := newTestScheduler(t, reg, rec)

	deadline := time.Now().Add(50 * time.Millisecond)
	tk := newTestTask("t1", task.KindCustom, task.PriorityNormal)
	tk.Kind.Name, tk.Kind.Version = "model_serving", "1"
	tk.Deadline = &deadline
	s.Submit(tk)

	s.tick()
	assert.Empty(t, rec.dispatches())

	time.Sleep(60 * time.Millisecond)
	s.tick()

	terminals := rec.terminalsSnapshot()
	require.Len(t, terminals, 1)
	assert.Equal(t, "t1:failed:no_worker", terminals[0])
}

func TestPriorityOrderingDispatch(t *testing.T) {
	reg := registry.New(time.Minute)
	require.NoError(t, reg.Register(newTestWorker("w1", []string{"text_analysis"}, nil, 1)))
	require.NoError(t, reg.SetStatus("w1", registry.StatusRunning, ""))

	rec := &recorder{}
	s, b := newTestScheduler(t, reg, rec)

	ctx := context.Background()
	_, err := b.Subscribe(ctx, bus.WorkerInboxSubject("w1"))
	require.NoError(t, err)

	s.Submit(newTestTask("low", task.KindTextAnalysis, task.PriorityLow))
	s.Submit(newTestTask("critical", task.KindTextAnalysis, task.PriorityCritical))
	s.Submit(newTestTask("normal", task.KindTextAnalysis, task.PriorityNormal))
	s.Submit(newTestTask("high", task.KindTextAnalysis, task.PriorityHigh))

	// Worker has capacity for one task at a time; each tick dispatches the
	// single available slot then frees it back up for the test.
	for _, want := range []string{"critical", "high", "normal", "low"} {
		s.tick()
		require.NoError(t, reg.DecrementLoad("w1"))
		assert.Contains(t, rec.dispatches()[len(rec.dispatches())-1], want+"->w1")
	}
}

func TestScoreTieBreakPrefersLowerLoadThenLowerID(t *testing.T) {
	reg := registry.New(time.Minute)
	require.NoError(t, reg.Register(newTestWorker("wb", []string{"text_analysis"}, nil, 2)))
	require.NoError(t, reg.SetStatus("wb", registry.StatusRunning, ""))
	require.NoError(t, reg.Register(newTestWorker("wa", []string{"text_analysis"}, nil, 2)))
	require.NoError(t, reg.SetStatus("wa", registry.StatusRunning, ""))
	// Load the lexicographically smaller id so the id rule alone would pick
	// the wrong worker; lower load must win first.
	require.NoError(t, reg.IncrementLoad("wa"))

	rec := &recorder{}
	s, b := newTestScheduler(t, reg, rec)
	ctx := context.Background()
	_, err := b.Subscribe(ctx, bus.WorkerInboxSubject("wa"))
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, bus.WorkerInboxSubject("wb"))
	require.NoError(t, err)

	s.Submit(newTestTask("t1", task.KindTextAnalysis, task.PriorityNormal))
	s.tick()

	assert.Equal(t, []string{"t1->wb"}, rec.dispatches())
}

func TestScoreTieBreakEqualLoadPicksLexicographicallySmallerID(t *testing.T) {
	reg := registry.New(time.Minute)
	require.NoError(t, reg.Register(newTestWorker("wb", []string{"text_analysis"}, nil, 2)))
	require.NoError(t, reg.SetStatus("wb", registry.StatusRunning, ""))
	require.NoError(t, reg.Register(newTestWorker("wa", []string{"text_analysis"}, nil, 2)))
	require.NoError(t, reg.SetStatus("wa", registry.StatusRunning, ""))

	rec := &recorder{}
	s, b := newTestScheduler(t, reg, rec)
	ctx := context.Background()
	_, err := b.Subscribe(ctx, bus.WorkerInboxSubject("wa"))
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, bus.WorkerInboxSubject("wb"))
	require.NoError(t, err)

	s.Submit(newTestTask("t1", task.KindTextAnalysis, task.PriorityNormal))
	s.tick()

	assert.Equal(t, []string{"t1->wa"}, rec.dispatches())
}

func TestNoEligibleWorkerZeroCapacity(t *testing.T) {
	reg := registry.New(time.Minute)
	require.NoError(t, reg.Register(newTestWorker("w1", []string{"text_analysis"}, nil, 0)))
	require.NoError(t, reg.SetStatus("w1", registry.StatusRunning, ""))

	rec := &recorder{}
	s, _ := newTestScheduler(t, reg, rec)

	s.Submit(newTestTask("t1", task.KindTextAnalysis, task.PriorityNormal))
	s.tick()

	assert.Empty(t, rec.dispatches())
	assert.Equal(t, 1, s.PendingCount())
}

func TestCancelRemovesFromPendingQueue(t *testing.T) {
	reg := registry.New(time.Minute)
	rec := &recorder{}
	s, _ := newTestScheduler(t, reg, rec)

	s.Submit(newTestTask("t1", task.KindTextAnalysis, task.PriorityNormal))
	assert.True(t, s.Cancel("t1"))
	assert.Equal(t, 0, s.PendingCount())
	assert.False(t, s.Cancel("t1"))
}
