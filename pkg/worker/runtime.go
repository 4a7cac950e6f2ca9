package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/swarm/pkg/bus"
	"github.com/cuemby/swarm/pkg/log"
	"github.com/cuemby/swarm/pkg/registry"
	"github.com/cuemby/swarm/pkg/task"
)

// DefaultHeartbeatInterval matches swarmconfig.HeartbeatInterval's default.
const DefaultHeartbeatInterval = 30 * time.Second

// controlEnvelope sniffs an inbox payload for control messages ("shutdown",
// which Coordinator.Shutdown broadcasts, and "cancel" with a task_id),
// distinguishing them from a plain task.Task assignment, which carries no
// "type" field of its own. No component in this repository publishes
// "cancel"; the runtime acts on one when it arrives.
type controlEnvelope struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
}

// Runtime is the worker-side harness: it wraps one or more TaskExecutors,
// holds a bus Subscription to its own inbox subject, and drives the
// heartbeat / task-pickup / graceful-shutdown lifecycle (spec §4.5).
type Runtime struct {
	id         string
	workerType registry.WorkerType
	capability registry.Capability

	bus       bus.Bus
	executors map[string]TaskExecutor

	heartbeatInterval time.Duration
	logger            zerolog.Logger

	mu           sync.Mutex
	load         int
	successCount int64
	errorCount   int64

	current   map[string]context.CancelFunc
	currentMu sync.Mutex

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Runtime identified by id, declaring workerType/capability,
// dispatching over b. Register the returned TaskExecutors with AddExecutor
// before calling Start.
func New(id string, workerType registry.WorkerType, capability registry.Capability, b bus.Bus) *Runtime {
	return &Runtime{
		id:                id,
		workerType:        workerType,
		capability:        capability,
		bus:               b,
		executors:         make(map[string]TaskExecutor),
		heartbeatInterval: DefaultHeartbeatInterval,
		logger:            log.WithWorkerID(id),
		current:           make(map[string]context.CancelFunc),
		stopCh:            make(chan struct{}),
	}
}

// WithHeartbeatInterval overrides DefaultHeartbeatInterval.
func (r *Runtime) WithHeartbeatInterval(d time.Duration) *Runtime {
	if d > 0 {
		r.heartbeatInterval = d
	}
	return r
}

// AddExecutor registers e for every kind it declares support for.
func (r *Runtime) AddExecutor(e TaskExecutor) {
	for _, kind := range e.SupportedKinds() {
		r.executors[kind] = e
	}
}

// Record builds the registry.Record a caller should pass to
// coordinator.RegisterWorker before calling Start.
func (r *Runtime) Record() *registry.Record {
	return &registry.Record{
		ID:         r.id,
		Type:       r.workerType,
		Capability: r.capability,
		Status:     registry.StatusStarting,
	}
}

// Start launches the heartbeat and task-pickup loops on their own
// goroutines. ctx governs both loops' lifetime in addition to Stop.
func (r *Runtime) Start(ctx context.Context) error {
	sub, err := r.bus.Subscribe(ctx, bus.WorkerInboxSubject(r.id))
	if err != nil {
		return fmt.Errorf("worker %s: subscribe to inbox: %w", r.id, err)
	}

	r.wg.Add(2)
	go r.heartbeatLoop(ctx)
	go r.pickupLoop(ctx, sub)
	return nil
}

// Stop stops accepting new tasks, waits up to gracePeriod for in-flight
// executions to finish, then cancels whatever remains (spec §4.5).
func (r *Runtime) Stop(gracePeriod time.Duration) {
	close(r.stopCh)

	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		r.currentMu.Lock()
		n := len(r.current)
		r.currentMu.Unlock()
		if n == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	r.currentMu.Lock()
	for _, cancel := range r.current {
		cancel()
	}
	r.currentMu.Unlock()

	r.wg.Wait()
}

func (r *Runtime) heartbeatLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	r.publishHealth(ctx)
	for {
		select {
		case <-ticker.C:
			r.publishHealth(ctx)
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runtime) publishHealth(ctx context.Context) {
	r.mu.Lock()
	h := registry.Health{
		WorkerID:     r.id,
		Status:       string(registry.StatusRunning),
		CurrentLoad:  r.load,
		ErrorCount:   r.errorCount,
		SuccessCount: r.successCount,
		Timestamp:    time.Now(),
	}
	r.mu.Unlock()

	payload, err := json.Marshal(h)
	if err != nil {
		r.logger.Error().Err(err).Msg("marshal worker health")
		return
	}

	env := bus.NewEnvelope(bus.SubjectWorkersHealth, payload, time.Minute)
	env.Headers = map[string]string{"content-type": "application/json", "worker-id": r.id}
	if err := r.bus.Publish(ctx, bus.SubjectWorkersHealth, env); err != nil {
		r.logger.Warn().Err(err).Msg("publish worker health")
	}
}

func (r *Runtime) pickupLoop(ctx context.Context, sub bus.Subscription) {
	defer r.wg.Done()
	defer sub.Unsubscribe()

	// recvCtx ends on Stop as well as on ctx, so a Next blocked on an idle
	// inbox does not hold Stop's wg.Wait open.
	recvCtx, recvCancel := context.WithCancel(ctx)
	defer recvCancel()
	go func() {
		select {
		case <-r.stopCh:
			recvCancel()
		case <-recvCtx.Done():
		}
	}()

	for {
		env, err := sub.Next(recvCtx)
		if err != nil {
			if recvCtx.Err() != nil {
				return
			}
			r.logger.Warn().Err(err).Msg("inbox subscription error")
			continue
		}

		var ctrl controlEnvelope
		if err := json.Unmarshal(env.Payload, &ctrl); err == nil && ctrl.Type != "" {
			switch ctrl.Type {
			case "shutdown":
				return
			case "cancel":
				r.cancelTask(ctrl.TaskID)
			}
			continue
		}

		var t task.Task
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			r.logger.Error().Err(err).Msg("malformed task assignment envelope")
			continue
		}
		go r.runTask(ctx, &t)
	}
}

func (r *Runtime) cancelTask(taskID string) {
	r.currentMu.Lock()
	cancel, ok := r.current[taskID]
	r.currentMu.Unlock()
	if ok {
		cancel()
	}
}

func (r *Runtime) runTask(ctx context.Context, t *task.Task) {
	r.mu.Lock()
	r.load++
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.load--
		r.mu.Unlock()
	}()

	execCtx, cancel := r.deadlineContext(ctx, t)
	defer cancel()

	r.currentMu.Lock()
	r.current[t.ID] = cancel
	r.currentMu.Unlock()
	defer func() {
		r.currentMu.Lock()
		delete(r.current, t.ID)
		r.currentMu.Unlock()
	}()

	start := time.Now()
	res := r.execute(execCtx, t, start)

	payload, err := json.Marshal(res)
	if err != nil {
		r.logger.Error().Err(err).Str("task_id", t.ID).Msg("marshal task result")
		return
	}
	env := bus.NewEnvelope(bus.SubjectTasksResults, payload, 0)
	env.Headers = map[string]string{"content-type": "application/json", "task-id": t.ID, "worker-id": r.id}
	if err := r.bus.Publish(context.Background(), bus.SubjectTasksResults, env); err != nil {
		r.logger.Warn().Err(err).Str("task_id", t.ID).Msg("publish task result")
	}
}

func (r *Runtime) deadlineContext(ctx context.Context, t *task.Task) (context.Context, context.CancelFunc) {
	if t.Deadline != nil {
		return context.WithDeadline(ctx, *t.Deadline)
	}
	return context.WithCancel(ctx)
}

func (r *Runtime) execute(ctx context.Context, t *task.Task, start time.Time) *task.Result {
	executor, ok := r.executors[t.Kind.String()]
	if !ok {
		r.mu.Lock()
		r.errorCount++
		r.mu.Unlock()
		return &task.Result{
			TaskID:      t.ID,
			Status:      task.ResultFailed,
			Error:       fmt.Sprintf("worker %s: no executor for kind %s", r.id, t.Kind.String()),
			CompletedAt: time.Now(),
			RetryCount:  t.RetryCount,
		}
	}

	payload, err := executor.Execute(ctx, t)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		if ctx.Err() == context.Canceled {
			return &task.Result{
				TaskID:           t.ID,
				Status:           task.ResultCancelled,
				ProcessingTimeMS: time.Since(start).Milliseconds(),
				CompletedAt:      time.Now(),
				RetryCount:       t.RetryCount,
			}
		}
		r.errorCount++
		return &task.Result{
			TaskID:           t.ID,
			Status:           task.ResultFailed,
			Error:            err.Error(),
			ProcessingTimeMS: time.Since(start).Milliseconds(),
			CompletedAt:      time.Now(),
			RetryCount:       t.RetryCount,
		}
	}

	r.successCount++
	return &task.Result{
		TaskID:           t.ID,
		Status:           task.ResultCompleted,
		Payload:          payload,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		CompletedAt:      time.Now(),
		RetryCount:       t.RetryCount,
	}
}
