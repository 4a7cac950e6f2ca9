package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/swarm/pkg/bus"
	"github.com/cuemby/swarm/pkg/log"
	"github.com/cuemby/swarm/pkg/metrics"
	"github.com/cuemby/swarm/pkg/registry"
	"github.com/cuemby/swarm/pkg/scheduler"
	"github.com/cuemby/swarm/pkg/task"
)

// ErrShuttingDown is returned by SubmitTask once Shutdown has been called.
var ErrShuttingDown = errors.New("coordinator: not accepting new tasks")

// DefaultEvictInterval is how often the stale-worker evictor sweeps the
// registry (spec §4.2's evict_stale is described as a background task;
// this is the tick it runs on).
const DefaultEvictInterval = 10 * time.Second

// DefaultCancelGrace is how long Shutdown waits for in-flight tasks to
// finish before force-cancelling them (spec §5 cancel_grace).
const DefaultCancelGrace = 5 * time.Second

type inFlightEntry struct {
	task       *task.Task
	workerID   string
	assignedAt time.Time
}

// TaskHandle is returned by SubmitTask; Await suspends until the task
// reaches a terminal state or the caller's context is done.
type TaskHandle struct {
	taskID string
	result chan *task.Result
}

// TaskID returns the submitted task's id.
func (h *TaskHandle) TaskID() string {
	return h.taskID
}

// Await blocks until the task's terminal TaskResult arrives or ctx is done.
func (h *TaskHandle) Await(ctx context.Context) (*task.Result, error) {
	select {
	case res := <-h.result:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats is the spec §4.4 CoordinatorStats summary.
type Stats struct {
	TotalWorkers        int
	ActiveWorkers       int
	TotalTasksProcessed int64
	TasksPerSecond      float64
	AvgProcessingTimeMS float64
	ErrorRate           float64
}

// Coordinator is the swarm's front door: it owns the Registry and
// Scheduler, accepts submissions and registrations, and runs the result
// ingester, worker-health ingester, and stale-worker evictor background
// loops.
type Coordinator struct {
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	bus       bus.Bus
	logger    zerolog.Logger

	evictInterval time.Duration

	mu       sync.Mutex
	inFlight map[string]*inFlightEntry

	waitersMu sync.Mutex
	waiters   map[string]chan *task.Result

	statsMu               sync.Mutex
	totalProcessed        int64
	totalErrors           int64
	totalProcessingTimeMS int64
	startedAt             time.Time

	acceptMu  sync.RWMutex
	accepting bool

	ctx       context.Context
	cancel    context.CancelFunc
	resultSub bus.Subscription
	healthSub bus.Subscription
	wg        sync.WaitGroup
}

// New constructs a Coordinator wired to a shared Registry. AttachScheduler
// must be called once before Start: the Scheduler itself is constructed
// with this Coordinator's OnDispatch/OnTerminal methods as callbacks,
// which requires the Coordinator to already exist.
func New(reg *registry.Registry, b bus.Bus, evictInterval time.Duration) *Coordinator {
	if evictInterval <= 0 {
		evictInterval = DefaultEvictInterval
	}
	return &Coordinator{
		registry:      reg,
		bus:           b,
		logger:        log.WithComponent("coordinator"),
		evictInterval: evictInterval,
		inFlight:      make(map[string]*inFlightEntry),
		waiters:       make(map[string]chan *task.Result),
		startedAt:     time.Now(),
		accepting:     true,
	}
}

// AttachScheduler binds the Scheduler this Coordinator's OnDispatch/
// OnTerminal callbacks feed. Construct the Scheduler with scheduler.New(reg,
// bus, tick, coord.OnDispatch, coord.OnTerminal), then call this once
// before Start.
func (c *Coordinator) AttachScheduler(s *scheduler.Scheduler) {
	c.scheduler = s
}

// OnDispatch is the scheduler.DispatchCallback: records the in-flight
// assignment once a task has actually reached a worker's inbox.
func (c *Coordinator) OnDispatch(workerID string, t *task.Task) {
	c.mu.Lock()
	c.inFlight[t.ID] = &inFlightEntry{task: t, workerID: workerID, assignedAt: time.Now()}
	n := len(c.inFlight)
	c.mu.Unlock()

	metrics.TasksInFlightGauge.Set(float64(n))
}

// OnTerminal is the scheduler.TerminalCallback: a task that never reached
// a worker (deadline exceeded, no eligible worker) is resolved directly.
func (c *Coordinator) OnTerminal(t *task.Task, status task.Status, reason string) {
	t.Status = status
	res := &task.Result{
		TaskID:      t.ID,
		Status:      resultStatusFor(status),
		Error:       reason,
		CompletedAt: time.Now(),
		RetryCount:  t.RetryCount,
	}
	c.recordOutcome(true, 0)
	c.resolve(t.ID, res)
	metrics.TasksTotal.WithLabelValues(string(status)).Inc()
}

func resultStatusFor(status task.Status) task.ResultStatus {
	switch status {
	case task.StatusCompleted:
		return task.ResultCompleted
	case task.StatusCancelled:
		return task.ResultCancelled
	default:
		return task.ResultFailed
	}
}

// Start subscribes to the results and worker-health subjects and launches
// the result ingester, worker-health ingester, and stale-worker evictor
// background loops, plus the scheduler itself.
func (c *Coordinator) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	sub, err := c.bus.Subscribe(c.ctx, bus.SubjectTasksResults)
	if err != nil {
		return fmt.Errorf("coordinator: subscribe to results subject: %w", err)
	}
	c.resultSub = sub

	healthSub, err := c.bus.Subscribe(c.ctx, bus.SubjectWorkersHealth)
	if err != nil {
		return fmt.Errorf("coordinator: subscribe to worker-health subject: %w", err)
	}
	c.healthSub = healthSub

	c.scheduler.Start()

	c.wg.Add(3)
	go c.runResultIngester()
	go c.runHealthIngester()
	go c.runEvictor()
	return nil
}

func (c *Coordinator) runResultIngester() {
	defer c.wg.Done()
	for {
		env, err := c.resultSub.Next(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Msg("result ingester subscription error")
			continue
		}

		var res task.Result
		if err := json.Unmarshal(env.Payload, &res); err != nil {
			c.logger.Error().Err(err).Msg("malformed task result envelope")
			continue
		}
		c.ingestResult(&res)
	}
}

// runHealthIngester consumes WorkerHealth envelopes and feeds them into
// registry.Heartbeat, which is what actually advances a worker's
// LastHeartbeat and carries it out of StatusStarting. Without this loop
// a freshly registered worker never becomes Schedulable and is eventually
// reaped by EvictStale for looking stale, not for being dead.
func (c *Coordinator) runHealthIngester() {
	defer c.wg.Done()
	for {
		env, err := c.healthSub.Next(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Msg("health ingester subscription error")
			continue
		}

		var h registry.Health
		if err := json.Unmarshal(env.Payload, &h); err != nil {
			c.logger.Error().Err(err).Msg("malformed worker health envelope")
			continue
		}
		if err := c.registry.Heartbeat(h.WorkerID, registry.Status(h.Status), h.CurrentLoad, ""); err != nil {
			c.logger.Warn().Err(err).Str("worker_id", h.WorkerID).Msg("heartbeat ingestion failed")
		}
	}
}

func (c *Coordinator) runEvictor() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			evicted := c.registry.EvictStale(time.Now())
			if len(evicted) == 0 {
				continue
			}
			metrics.WorkersEvictedTotal.Add(float64(len(evicted)))
			for _, id := range evicted {
				c.requeueWorkerTasks(id)
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// ingestResult implements spec §4.3's result-ingestion rules.
func (c *Coordinator) ingestResult(res *task.Result) {
	c.mu.Lock()
	entry, ok := c.inFlight[res.TaskID]
	if ok {
		delete(c.inFlight, res.TaskID)
	}
	n := len(c.inFlight)
	c.mu.Unlock()

	if !ok {
		// Late duplicate: the task already resolved (or was requeued
		// after its worker was evicted). Drop silently.
		return
	}

	metrics.TasksInFlightGauge.Set(float64(n))
	_ = c.registry.DecrementLoad(entry.workerID)

	t := entry.task

	if res.Status == task.ResultFailed && res.Retryable(t.MaxRetries) {
		t.RetryCount++
		t.Status = task.StatusPending
		c.recordOutcome(true, res.ProcessingTimeMS)
		metrics.TaskRetriesTotal.Inc()
		c.scheduler.Submit(t)
		return
	}

	switch res.Status {
	case task.ResultCompleted:
		t.Status = task.StatusCompleted
		c.recordOutcome(false, res.ProcessingTimeMS)
	case task.ResultCancelled:
		t.Status = task.StatusCancelled
		c.recordOutcome(false, res.ProcessingTimeMS)
	default:
		t.Status = task.StatusFailed
		c.recordOutcome(true, res.ProcessingTimeMS)
	}

	metrics.TasksTotal.WithLabelValues(string(t.Status)).Inc()
	c.resolve(res.TaskID, res)
}

func (c *Coordinator) recordOutcome(isError bool, processingTimeMS int64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.totalProcessed++
	if isError {
		c.totalErrors++
	}
	c.totalProcessingTimeMS += processingTimeMS
}

func (c *Coordinator) resolve(taskID string, res *task.Result) {
	c.waitersMu.Lock()
	ch, ok := c.waiters[taskID]
	if ok {
		delete(c.waiters, taskID)
	}
	c.waitersMu.Unlock()

	if !ok {
		return
	}
	select {
	case ch <- res:
	default:
	}
}

// SubmitTask validates t, assigns defaults (id, created_at, status), and
// enqueues it with the Scheduler. The returned TaskHandle's Await yields
// the terminal TaskResult.
func (c *Coordinator) SubmitTask(t *task.Task) (*TaskHandle, error) {
	c.acceptMu.RLock()
	accepting := c.accepting
	c.acceptMu.RUnlock()
	if !accepting {
		return nil, ErrShuttingDown
	}

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.Status = task.StatusPending

	if err := t.Validate(); err != nil {
		return nil, err
	}

	ch := make(chan *task.Result, 1)
	c.waitersMu.Lock()
	c.waiters[t.ID] = ch
	c.waitersMu.Unlock()

	c.scheduler.Submit(t)

	c.logger.Debug().Str("task_id", t.ID).Str("priority", t.Priority.String()).Msg("task submitted")
	return &TaskHandle{taskID: t.ID, result: ch}, nil
}

// RegisterWorker admits a worker into the registry.
func (c *Coordinator) RegisterWorker(rec *registry.Record) error {
	return c.registry.Register(rec)
}

// UnregisterWorker removes a worker and requeues any task it had in
// flight back to Pending, retry_count unchanged (spec §4.4).
func (c *Coordinator) UnregisterWorker(id string) error {
	c.requeueWorkerTasks(id)
	return c.registry.Unregister(id)
}

func (c *Coordinator) requeueWorkerTasks(workerID string) {
	c.mu.Lock()
	var requeued []*task.Task
	for id, entry := range c.inFlight {
		if entry.workerID != workerID {
			continue
		}
		delete(c.inFlight, id)
		entry.task.Status = task.StatusPending
		requeued = append(requeued, entry.task)
	}
	n := len(c.inFlight)
	c.mu.Unlock()

	metrics.TasksInFlightGauge.Set(float64(n))
	for _, t := range requeued {
		c.scheduler.Submit(t)
	}
}

// InFlightCount returns the number of tasks currently assigned to a
// worker and awaiting a result, used by pkg/metrics.Collector.
func (c *Coordinator) InFlightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

// PendingCount returns the number of tasks waiting in the pending queue,
// used by pkg/metrics.Collector.
func (c *Coordinator) PendingCount() int {
	return c.scheduler.PendingCount()
}

// Stats computes a point-in-time CoordinatorStats summary.
func (c *Coordinator) Stats() Stats {
	regStats := c.registry.Stats()

	active := 0
	for status, n := range regStats.ByStatus {
		if status == registry.StatusRunning || status == registry.StatusIdle || status == registry.StatusBusy {
			active += n
		}
	}

	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	elapsed := time.Since(c.startedAt).Seconds()
	var tps, avgMS, errRate float64
	if elapsed > 0 {
		tps = float64(c.totalProcessed) / elapsed
	}
	if c.totalProcessed > 0 {
		avgMS = float64(c.totalProcessingTimeMS) / float64(c.totalProcessed)
		errRate = float64(c.totalErrors) / float64(c.totalProcessed)
	}

	return Stats{
		TotalWorkers:        regStats.TotalWorkers,
		ActiveWorkers:       active,
		TotalTasksProcessed: c.totalProcessed,
		TasksPerSecond:      tps,
		AvgProcessingTimeMS: avgMS,
		ErrorRate:           errRate,
	}
}

// Shutdown stops accepting new tasks, broadcasts a Shutdown envelope to
// every known worker's inbox, waits up to gracePeriod for in-flight tasks
// to resolve, then force-cancels whatever remains (spec §4.4).
func (c *Coordinator) Shutdown(gracePeriod time.Duration) error {
	if gracePeriod <= 0 {
		gracePeriod = DefaultCancelGrace
	}

	c.acceptMu.Lock()
	c.accepting = false
	c.acceptMu.Unlock()

	for _, snap := range c.registry.Snapshot() {
		env := bus.NewEnvelope(bus.WorkerInboxSubject(snap.ID), []byte(`{"type":"shutdown"}`), 0)
		env.Headers = map[string]string{"content-type": "application/json", "worker-id": snap.ID}
		if err := c.bus.Publish(context.Background(), env.Subject, env); err != nil {
			c.logger.Warn().Err(err).Str("worker_id", snap.ID).Msg("failed to broadcast shutdown")
		}
	}

	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if c.InFlightCount() == 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	c.mu.Lock()
	remaining := c.inFlight
	c.inFlight = make(map[string]*inFlightEntry)
	c.mu.Unlock()

	for taskID, entry := range remaining {
		entry.task.Status = task.StatusCancelled
		_ = c.registry.DecrementLoad(entry.workerID)
		res := &task.Result{
			TaskID:      taskID,
			Status:      task.ResultCancelled,
			CompletedAt: time.Now(),
			RetryCount:  entry.task.RetryCount,
		}
		c.recordOutcome(true, 0)
		c.resolve(taskID, res)
	}

	c.scheduler.Stop()
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}
