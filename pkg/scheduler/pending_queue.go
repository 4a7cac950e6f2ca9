package scheduler

import (
	"sync"

	"github.com/cuemby/swarm/pkg/task"
)

// pendingQueue is a four-lane priority FIFO: Critical drains before High
// before Normal before Low, and within a lane tasks come out in submission
// order. Mutex-guarded slices rather than channels, since a retried task
// must be reinserted after it already left the queue once.
type pendingQueue struct {
	mu    sync.Mutex
	lanes map[task.Priority][]*task.Task
	order []task.Priority
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{
		lanes: map[task.Priority][]*task.Task{
			task.PriorityCritical: nil,
			task.PriorityHigh:     nil,
			task.PriorityNormal:   nil,
			task.PriorityLow:      nil,
		},
		order: []task.Priority{
			task.PriorityCritical,
			task.PriorityHigh,
			task.PriorityNormal,
			task.PriorityLow,
		},
	}
}

// push appends t to the back of its priority lane.
func (q *pendingQueue) push(t *task.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lanes[t.Priority] = append(q.lanes[t.Priority], t)
}

// pop removes and returns the front task of the highest non-empty
// priority lane.
func (q *pendingQueue) pop() (*task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range q.order {
		lane := q.lanes[p]
		if len(lane) == 0 {
			continue
		}
		t := lane[0]
		q.lanes[p] = lane[1:]
		return t, true
	}
	return nil, false
}

// requeue pushes a popped-but-undispatchable task back to the front of its
// lane, so a transient dispatch failure does not reorder it behind tasks
// submitted later.
func (q *pendingQueue) requeue(t *task.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lanes[t.Priority] = append([]*task.Task{t}, q.lanes[t.Priority]...)
}

// len returns the total number of tasks queued across all lanes.
func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}

// remove deletes a task by ID from whatever lane it is in, used when a
// task is cancelled before it is ever dispatched. Reports whether it was
// found.
func (q *pendingQueue) remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p, lane := range q.lanes {
		for i, t := range lane {
			if t.ID == id {
				q.lanes[p] = append(lane[:i], lane[i+1:]...)
				return true
			}
		}
	}
	return false
}
