package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/swarm/pkg/bus"
	"github.com/cuemby/swarm/pkg/log"
	"github.com/cuemby/swarm/pkg/metrics"
	"github.com/cuemby/swarm/pkg/registry"
	"github.com/cuemby/swarm/pkg/task"
)

// DefaultTickInterval is the default scheduling loop period (spec §4.3).
const DefaultTickInterval = 10 * time.Millisecond

// assignmentTTL is the advisory TTL on a dispatched assignment envelope
// (spec §6 subject table: swarm.tasks.assignments, 10 min).
const assignmentTTL = 10 * time.Minute

// DispatchCallback is invoked after a task is successfully handed off to a
// worker, so the Coordinator can record the in-flight assignment. It is
// never called for a task that never reaches a worker.
type DispatchCallback func(workerID string, t *task.Task)

// TerminalCallback is invoked when the Scheduler decides a task's outcome
// without ever dispatching it (deadline exceeded, no eligible worker).
type TerminalCallback func(t *task.Task, status task.Status, reason string)

// Scheduler matches pending tasks to eligible workers and dispatches them
// over the bus, ticking on its own goroutine (spec §4.3 scheduling loop).
type Scheduler struct {
	registry     *registry.Registry
	bus          bus.Bus
	queue        *pendingQueue
	tickInterval time.Duration
	logger       zerolog.Logger
	stopCh       chan struct{}

	onDispatch DispatchCallback
	onTerminal TerminalCallback
}

// New constructs a Scheduler. tickInterval of 0 uses DefaultTickInterval.
func New(reg *registry.Registry, b bus.Bus, tickInterval time.Duration, onDispatch DispatchCallback, onTerminal TerminalCallback) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &Scheduler{
		registry:     reg,
		bus:          b,
		queue:        newPendingQueue(),
		tickInterval: tickInterval,
		logger:       log.WithComponent("scheduler"),
		stopCh:       make(chan struct{}),
		onDispatch:   onDispatch,
		onTerminal:   onTerminal,
	}
}

// Submit enqueues a task for the next scheduling tick.
func (s *Scheduler) Submit(t *task.Task) {
	s.queue.push(t)
	metrics.TasksPendingGauge.Set(float64(s.queue.len()))
}

// Cancel removes a task from the pending queue before it is ever
// dispatched. Reports whether it was found there.
func (s *Scheduler) Cancel(taskID string) bool {
	found := s.queue.remove(taskID)
	metrics.TasksPendingGauge.Set(float64(s.queue.len()))
	return found
}

// PendingCount returns the number of tasks currently queued, used by
// pkg/metrics.Collector.
func (s *Scheduler) PendingCount() int {
	return s.queue.len()
}

// Start begins the scheduling loop on its own goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop halts the scheduling loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopCh:
			return
		}
	}
}

// tick drains one full pass of the pending queue (bounded by its length at
// the start of the tick, so tasks reinserted during the pass are not
// reconsidered until the next one) attempting to dispatch every task it
// pops.
func (s *Scheduler) tick() {
	n := s.queue.len()
	now := time.Now()

	for i := 0; i < n; i++ {
		t, ok := s.queue.pop()
		if !ok {
			break
		}
		s.dispatchOne(t, now)
	}
	metrics.TasksPendingGauge.Set(float64(s.queue.len()))
}

func (s *Scheduler) dispatchOne(t *task.Task, now time.Time) {
	candidates := s.eligibleWorkers(t)

	if t.DeadlineExceeded(now) {
		reason := "deadline_exceeded"
		if len(candidates) == 0 {
			reason = "no_worker"
		}
		s.logger.Warn().Str("task_id", t.ID).Str("reason", reason).Msg("task failed before dispatch")
		s.onTerminal(t, task.StatusFailed, reason)
		return
	}

	if len(candidates) == 0 {
		s.queue.push(t)
		return
	}

	winner := selectBest(candidates, t)
	timer := metrics.NewTimer()

	if err := s.registry.IncrementLoad(winner.ID); err != nil {
		// Lost a capacity race against another dispatch this tick; retry
		// next tick rather than starving the task.
		s.queue.push(t)
		return
	}

	env, err := s.buildAssignment(winner.ID, t)
	if err != nil {
		_ = s.registry.DecrementLoad(winner.ID)
		s.logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to build assignment envelope")
		s.queue.requeue(t)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.bus.Publish(ctx, bus.WorkerInboxSubject(winner.ID), env); err != nil {
		// Capacity was checked, so a blocked/failed send is treated as
		// transient: roll back the load increment and return the task to
		// the front of its lane (spec §4.3 dispatch step 2).
		_ = s.registry.DecrementLoad(winner.ID)
		metrics.DispatchFailuresTotal.Inc()
		metrics.BusMessagesTotal.WithLabelValues(env.Subject, "dropped").Inc()
		s.logger.Warn().Err(err).Str("worker_id", winner.ID).Str("task_id", t.ID).Msg("dispatch publish failed, requeuing")
		s.queue.requeue(t)
		return
	}

	t.Status = task.StatusAssigned
	metrics.TasksDispatchedTotal.Inc()
	metrics.BusMessagesTotal.WithLabelValues(env.Subject, "published").Inc()
	timer.ObserveDuration(metrics.SchedulingLatency)

	s.logger.Info().
		Str("task_id", t.ID).
		Str("worker_id", winner.ID).
		Str("kind", t.Kind.String()).
		Msg("task dispatched")

	s.onDispatch(winner.ID, t)
}

// eligibleWorkers returns the registry snapshot filtered to workers that
// are schedulable, declare support for the task's kind, and whose
// capability tags cover the task's required capability set.
func (s *Scheduler) eligibleWorkers(t *task.Task) []registry.Snapshot {
	candidates := s.registry.Eligible(t.Kind.String())
	reqCaps := t.Requirements.Capabilities
	if len(reqCaps) == 0 {
		return candidates
	}

	out := make([]registry.Snapshot, 0, len(candidates))
	for _, c := range candidates {
		set := c.Capability.CapabilitySet()
		covered := true
		for _, rc := range reqCaps {
			if _, ok := set[rc]; !ok {
				covered = false
				break
			}
		}
		if covered {
			out = append(out, c)
		}
	}
	return out
}

func (s *Scheduler) buildAssignment(workerID string, t *task.Task) (*bus.Envelope, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("scheduler: marshal task %s: %w", t.ID, err)
	}

	env := bus.NewEnvelope(bus.SubjectTasksAssignments, payload, assignmentTTL)
	env.Headers = map[string]string{
		"content-type": "application/json",
		"task-id":      t.ID,
		"priority":     t.Priority.String(),
		"worker-id":    workerID,
	}
	return env, nil
}

// score implements the spec §4.3 scoring formula:
//
//	0.60 * capability coverage + 0.30 * preferred-type match + 0.10 * perf fit
func score(snap registry.Snapshot, t *task.Task) float64 {
	coverage := 1.0
	if reqCaps := t.Requirements.Capabilities; len(reqCaps) > 0 {
		set := snap.Capability.CapabilitySet()
		matched := 0
		for _, c := range reqCaps {
			if _, ok := set[c]; ok {
				matched++
			}
		}
		coverage = float64(matched) / float64(len(reqCaps))
	}

	// No preferred type means every worker satisfies the preference term;
	// an unmet preference scores 0, matching the spec's `[...]` indicator.
	prefMatch := 1.0
	if pref := t.Requirements.PreferredWorker; pref != "" && string(snap.Type) != pref {
		prefMatch = 0.0
	}

	perfFit := 1.0
	if max := t.Requirements.MaxProcessing; max > 0 && snap.Capability.PerformanceProfile.AvgProcessingTimeMS > max.Milliseconds() {
		perfFit = 0.0
	}

	return 0.60*coverage + 0.30*prefMatch + 0.10*perfFit
}

// selectBest picks the highest-scoring candidate, breaking ties by lowest
// current load then lexicographically smallest worker id (spec §4.3,
// scenario 6).
func selectBest(candidates []registry.Snapshot, t *task.Task) registry.Snapshot {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ID < candidates[j].ID
	})

	best := candidates[0]
	bestScore := score(best, t)

	for _, c := range candidates[1:] {
		s := score(c, t)
		switch {
		case s > bestScore:
			best, bestScore = c, s
		case s == bestScore && c.Load < best.Load:
			best = c
		}
	}
	return best
}
