package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/swarm/pkg/log"
)

// DefaultSubscriptionBuffer is the per-subscription channel capacity used
// when MemoryOption does not override it. A slow subscriber drops
// messages past this buffer rather than blocking publishers (spec §5:
// the bus never applies backpressure onto the Coordinator's publish
// path).
const DefaultSubscriptionBuffer = 256

// MemoryOption configures a memoryBus at construction.
type MemoryOption func(*memoryBus)

// WithSubscriptionBuffer overrides the per-subscription channel capacity.
func WithSubscriptionBuffer(n int) MemoryOption {
	return func(b *memoryBus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithMaxMessageSize overrides the I6 size cap enforced on Publish.
func WithMaxMessageSize(n int) MemoryOption {
	return func(b *memoryBus) {
		if n > 0 {
			b.maxMessageSize = n
		}
	}
}

// memoryBus is the in-process Bus binding used by tests and single-process
// deployments. Each Subscribe call gets its own buffered channel; Publish
// fans an independent copy of the envelope out to every matching
// subscription.
type memoryBus struct {
	mu             sync.RWMutex
	subs           map[string]*memorySubscription
	closed         bool
	bufferSize     int
	maxMessageSize int
	logger         zerolog.Logger

	published uint64
	delivered uint64
	dropped   uint64
}

// NewMemory constructs an in-memory Bus.
func NewMemory(opts ...MemoryOption) Bus {
	b := &memoryBus{
		subs:           make(map[string]*memorySubscription),
		bufferSize:     DefaultSubscriptionBuffer,
		maxMessageSize: DefaultMaxMessageSize,
		logger:         log.WithComponent("bus.memory"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *memoryBus) Publish(ctx context.Context, subject string, env *Envelope) error {
	if err := env.Validate(b.maxMessageSize); err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	matches := make([]*memorySubscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if matchSubject(sub.pattern, subject) {
			matches = append(matches, sub)
		}
	}
	b.mu.RUnlock()

	atomic.AddUint64(&b.published, 1)

	for _, sub := range matches {
		select {
		case sub.ch <- env.Clone():
			atomic.AddUint64(&b.delivered, 1)
		default:
			atomic.AddUint64(&b.dropped, 1)
			b.logger.Warn().
				Str("subject", subject).
				Str("subscription_pattern", sub.pattern).
				Msg("subscriber buffer full, dropping envelope")
		}
	}
	return nil
}

func (b *memoryBus) Subscribe(ctx context.Context, subject string) (Subscription, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		id:      uuid.New().String(),
		pattern: subject,
		ch:      make(chan *Envelope, b.bufferSize),
		bus:     b,
		closed:  make(chan struct{}),
	}
	b.subs[sub.id] = sub
	return sub, nil
}

func (b *memoryBus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return Stats{
		Published:     atomic.LoadUint64(&b.published),
		Delivered:     atomic.LoadUint64(&b.delivered),
		Dropped:       atomic.LoadUint64(&b.dropped),
		Subscriptions: n,
	}
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("bus: %w", ErrClosed)
	}
	b.closed = true
	subs := make([]*memorySubscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]*memorySubscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.closeChannel()
	}
	return nil
}

func (b *memoryBus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// memorySubscription is one subscriber's independent view of a subject.
type memorySubscription struct {
	id      string
	pattern string
	ch      chan *Envelope
	bus     *memoryBus

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *memorySubscription) Subject() string {
	return s.pattern
}

func (s *memorySubscription) Next(ctx context.Context) (*Envelope, error) {
	select {
	case env, ok := <-s.ch:
		if !ok {
			return nil, ErrClosed
		}
		return env, nil
	case <-s.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *memorySubscription) TryNext() (*Envelope, bool) {
	select {
	case env, ok := <-s.ch:
		if !ok {
			return nil, false
		}
		return env, true
	default:
		return nil, false
	}
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.remove(s.id)
	s.closeChannel()
	return nil
}

func (s *memorySubscription) closeChannel() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}
