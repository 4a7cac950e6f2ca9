package bus

import "context"

// Bus is the publish/subscribe transport shared by the Coordinator and
// every Worker. Implementations (memory.go, nats.go) must deliver an
// independent copy of each published Envelope to every active
// Subscription on a matching subject.
type Bus interface {
	// Publish validates env (I5/I6) and delivers it to every current
	// subscriber of subject. Publish never blocks on a slow subscriber;
	// a subscriber that falls behind its buffer drops messages. The
	// in-memory binding counts each drop in Stats; the NATS binding does
	// not, and its Stats().Dropped stays 0.
	Publish(ctx context.Context, subject string, env *Envelope) error

	// Subscribe opens a new Subscription to subject. Multiple
	// subscriptions on the same subject are independent: each receives
	// its own copy of every envelope published after it is created.
	Subscribe(ctx context.Context, subject string) (Subscription, error)

	// Stats returns a point-in-time snapshot of bus throughput counters.
	Stats() Stats

	// Close shuts the bus down, closing every open subscription.
	Close() error
}

// Subscription is a single subscriber's view of a subject.
type Subscription interface {
	// Subject returns the subject this subscription was opened on.
	Subject() string

	// Next blocks until an envelope arrives, ctx is cancelled, or the
	// subscription is closed. It is the suspending-call resolution of
	// the bus's receive operation.
	Next(ctx context.Context) (*Envelope, error)

	// TryNext is a non-blocking peek: it returns immediately with
	// (nil, false) if no envelope is queued.
	TryNext() (*Envelope, bool)

	// Unsubscribe stops delivery and releases the subscription's
	// buffer. Safe to call more than once.
	Unsubscribe() error
}

// Stats is a snapshot of bus-wide throughput counters, exported to
// pkg/metrics.
type Stats struct {
	Published     uint64
	Delivered     uint64
	Dropped       uint64
	Subscriptions int
}
