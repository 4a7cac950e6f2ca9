package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(id string, maxConcurrent int, kinds ...string) *Record {
	return &Record{
		ID:   id,
		Type: WorkerTypeTextProcessor,
		Capability: Capability{
			Name:               "text",
			SupportedKinds:     kinds,
			MaxConcurrentTasks: maxConcurrent,
		},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := New(time.Second)
	require.NoError(t, r.Register(newTestRecord("w1", 2, "text_analysis")))

	snap, ok := r.Get("w1")
	require.True(t, ok)
	assert.Equal(t, StatusStarting, snap.Status)
	assert.Equal(t, 0, snap.Load)
	assert.Equal(t, 2, snap.MaxLoad)
}

func TestRegisterValidation(t *testing.T) {
	r := New(time.Second)
	assert.Error(t, r.Register(&Record{}))
}

func TestUnregisterUnknownWorker(t *testing.T) {
	r := New(time.Second)
	assert.Error(t, r.Unregister("missing"))
}

func TestHeartbeatUnknownWorkerSilentlyIgnored(t *testing.T) {
	r := New(time.Second)
	assert.NoError(t, r.Heartbeat("missing", StatusIdle, 0, ""))
}

func TestHeartbeatAdvancesStatusAndLoad(t *testing.T) {
	r := New(time.Second)
	require.NoError(t, r.Register(newTestRecord("w1", 2, "text_analysis")))

	snap, _ := r.Get("w1")
	assert.Equal(t, StatusStarting, snap.Status)

	require.NoError(t, r.Heartbeat("w1", StatusRunning, 1, ""))
	snap, _ = r.Get("w1")
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, 1, snap.Load)
	assert.True(t, snap.LastHeartbeat.After(snap.RegisteredAt) || snap.LastHeartbeat.Equal(snap.RegisteredAt))
}

func TestRegisterDuplicateIDFails(t *testing.T) {
	r := New(time.Second)
	require.NoError(t, r.Register(newTestRecord("w1", 2, "text_analysis")))
	require.NoError(t, r.IncrementLoad("w1"))

	err := r.Register(newTestRecord("w1", 2, "text_analysis"))
	assert.ErrorIs(t, err, ErrWorkerExists)

	// the in-flight worker's load must survive the rejected re-registration (I3).
	snap, ok := r.Get("w1")
	require.True(t, ok)
	assert.Equal(t, 1, snap.Load)
}

func TestIncrementLoadRespectsCapacity(t *testing.T) {
	r := New(time.Second)
	require.NoError(t, r.Register(newTestRecord("w1", 1, "text_analysis")))
	require.NoError(t, r.SetStatus("w1", StatusRunning, ""))

	require.NoError(t, r.IncrementLoad("w1"))
	snap, _ := r.Get("w1")
	assert.Equal(t, 1, snap.Load)
	assert.Equal(t, StatusBusy, snap.Status)

	assert.Error(t, r.IncrementLoad("w1"), "I1: load must not exceed max_load")
}

func TestDecrementLoadNeverGoesNegative(t *testing.T) {
	r := New(time.Second)
	require.NoError(t, r.Register(newTestRecord("w1", 1, "text_analysis")))

	require.NoError(t, r.DecrementLoad("w1"))
	snap, _ := r.Get("w1")
	assert.Equal(t, 0, snap.Load)

	require.NoError(t, r.IncrementLoad("w1"))
	require.NoError(t, r.DecrementLoad("w1"))
	require.NoError(t, r.DecrementLoad("w1"))
	snap, _ = r.Get("w1")
	assert.Equal(t, 0, snap.Load)
}

func TestEligibleFiltersByCapabilityAndSchedulability(t *testing.T) {
	r := New(time.Second)
	require.NoError(t, r.Register(newTestRecord("pdf-worker", 2, "document_processing:pdf:extract_text")))
	require.NoError(t, r.Register(newTestRecord("text-worker", 2, "text_analysis")))
	require.NoError(t, r.SetStatus("pdf-worker", StatusRunning, ""))
	require.NoError(t, r.SetStatus("text-worker", StatusRunning, ""))

	eligible := r.Eligible("document_processing:pdf:extract_text")
	require.Len(t, eligible, 1)
	assert.Equal(t, "pdf-worker", eligible[0].ID)

	// starting-status workers (never transitioned) are not schedulable
	require.NoError(t, r.Register(newTestRecord("starting-worker", 2, "text_analysis")))
	eligible = r.Eligible("text_analysis")
	require.Len(t, eligible, 1)
	assert.Equal(t, "text-worker", eligible[0].ID)
}

func TestEvictStaleRemovesOldWorkers(t *testing.T) {
	r := New(10 * time.Millisecond)
	require.NoError(t, r.Register(newTestRecord("w1", 1, "text_analysis")))

	evicted := r.EvictStale(time.Now())
	assert.Empty(t, evicted)

	evicted = r.EvictStale(time.Now().Add(1 * time.Second))
	require.Len(t, evicted, 1)
	assert.Equal(t, "w1", evicted[0])

	_, ok := r.Get("w1")
	assert.False(t, ok)
}

func TestEvictStaleSkipsShutdownWorkers(t *testing.T) {
	r := New(10 * time.Millisecond)
	require.NoError(t, r.Register(newTestRecord("w1", 1, "text_analysis")))
	require.NoError(t, r.SetStatus("w1", StatusShutdown, ""))

	evicted := r.EvictStale(time.Now().Add(time.Second))
	assert.Empty(t, evicted)
}

func TestStats(t *testing.T) {
	r := New(time.Second)
	require.NoError(t, r.Register(newTestRecord("w1", 2, "text_analysis")))
	require.NoError(t, r.Register(newTestRecord("w2", 3, "text_analysis")))
	require.NoError(t, r.IncrementLoad("w1"))

	stats := r.Stats()
	assert.Equal(t, 2, stats.TotalWorkers)
	assert.Equal(t, 1, stats.TotalLoad)
	assert.Equal(t, 5, stats.TotalCapacity)
	assert.Equal(t, 2, stats.ByType[WorkerTypeTextProcessor])
}

func TestZeroMaxConcurrentTasksNeverSchedulable(t *testing.T) {
	r := New(time.Second)
	require.NoError(t, r.Register(newTestRecord("w1", 0, "text_analysis")))
	require.NoError(t, r.SetStatus("w1", StatusRunning, ""))

	eligible := r.Eligible("text_analysis")
	assert.Empty(t, eligible)

	snap, ok := r.Get("w1")
	require.True(t, ok)
	assert.Equal(t, 0, snap.MaxLoad)
	assert.False(t, snap.Load < snap.MaxLoad)
}
