package metrics

import (
	"time"

	"github.com/cuemby/swarm/pkg/registry"
)

// QueueDepthFunc reports the current number of pending, undispatched tasks.
type QueueDepthFunc func() int

// InFlightCountFunc reports the current number of dispatched tasks awaiting
// a result.
type InFlightCountFunc func() int

// Collector polls the registry and the coordinator's queue depth on an
// interval and republishes them as gauges, rather than updating them inline
// on every mutation.
type Collector struct {
	interval time.Duration
	registry *registry.Registry
	pending  QueueDepthFunc
	inFlight InFlightCountFunc
	stopCh   chan struct{}
}

// NewCollector builds a Collector. pending and inFlight may be nil, in
// which case those two gauges are left untouched.
func NewCollector(interval time.Duration, reg *registry.Registry, pending QueueDepthFunc, inFlight InFlightCountFunc) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		interval: interval,
		registry: reg,
		pending:  pending,
		inFlight: inFlight,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting on a ticker, sampling once immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectWorkerMetrics()
	c.collectQueueMetrics()
}

func (c *Collector) collectWorkerMetrics() {
	if c.registry == nil {
		return
	}

	snapshots := c.registry.Snapshot()

	counts := make(map[registry.WorkerType]map[registry.Status]int)
	for _, snap := range snapshots {
		if counts[snap.Type] == nil {
			counts[snap.Type] = make(map[registry.Status]int)
		}
		counts[snap.Type][snap.Status]++
		WorkerLoad.WithLabelValues(snap.ID).Set(float64(snap.Load))
	}

	for workerType, byStatus := range counts {
		for status, n := range byStatus {
			WorkersTotal.WithLabelValues(string(workerType), string(status)).Set(float64(n))
		}
	}
}

func (c *Collector) collectQueueMetrics() {
	if c.pending != nil {
		TasksPendingGauge.Set(float64(c.pending()))
	}
	if c.inFlight != nil {
		TasksInFlightGauge.Set(float64(c.inFlight()))
	}
}
