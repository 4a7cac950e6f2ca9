package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/cuemby/swarm/pkg/log"
)

// NATSConfig configures the NATS-backed Bus binding. Field names mirror
// swarmconfig.BusConfig; this struct is what swarmconfig translates into
// before calling NewNATS.
type NATSConfig struct {
	URL                  string
	ConnectionTimeout    time.Duration
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	MaxMessageSize       int
}

// natsBus is the cluster-capable Bus binding: subjects map directly onto
// NATS subjects, with per-subscription buffering and reconnect handling
// delegated to the nats.go client.
type natsBus struct {
	conn           *natsgo.Conn
	maxMessageSize int
	logger         zerolog.Logger

	mu     sync.Mutex
	closed bool

	published uint64
	delivered uint64
	dropped   uint64
}

// NewNATS connects to a NATS server and returns a Bus backed by it.
func NewNATS(cfg NATSConfig) (Bus, error) {
	logger := log.WithComponent("bus.nats")

	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	maxReconnect := cfg.MaxReconnectAttempts
	if maxReconnect == 0 {
		maxReconnect = -1 // infinite reconnects, matching the sms-gateway default
	}

	opts := []natsgo.Option{
		natsgo.Name("swarm-bus"),
		natsgo.Timeout(cfg.ConnectionTimeout),
		natsgo.ReconnectWait(cfg.ReconnectDelay),
		natsgo.MaxReconnects(maxReconnect),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			logger.Error().Err(err).Msg("nats disconnected")
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		natsgo.ClosedHandler(func(nc *natsgo.Conn) {
			logger.Info().Msg("nats connection closed")
		}),
	}

	conn, err := natsgo.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to nats at %s: %v", ErrTransport, cfg.URL, err)
	}
	logger.Info().Str("url", conn.ConnectedUrl()).Msg("connected to nats")

	return &natsBus{
		conn:           conn,
		maxMessageSize: cfg.MaxMessageSize,
		logger:         logger,
	}, nil
}

func (b *natsBus) Publish(ctx context.Context, subject string, env *Envelope) error {
	if err := env.Validate(b.maxMessageSize); err != nil {
		return err
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: marshaling envelope %s: %w", env.ID, err)
	}

	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("%w: publishing to %s: %v", ErrTransport, subject, err)
	}
	atomic.AddUint64(&b.published, 1)
	return nil
}

func (b *natsBus) Subscribe(ctx context.Context, subject string) (Subscription, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	ch := make(chan *natsgo.Msg, DefaultSubscriptionBuffer)
	sub, err := b.conn.ChanSubscribe(subject, ch)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribing to %s: %v", ErrTransport, subject, err)
	}

	return &natsSubscription{
		subject: subject,
		sub:     sub,
		msgs:    ch,
		bus:     b,
		closed:  make(chan struct{}),
	}, nil
}

func (b *natsBus) Stats() Stats {
	return Stats{
		Published: atomic.LoadUint64(&b.published),
		Delivered: atomic.LoadUint64(&b.delivered),
		Dropped:   atomic.LoadUint64(&b.dropped),
		// nats.Conn does not expose a live subscription count cheaply
		// enough to poll on every Stats() call, so this is left at the
		// caller's own bookkeeping.
		Subscriptions: 0,
	}
}

func (b *natsBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.closed = true
	b.mu.Unlock()

	b.conn.Close()
	return nil
}

// natsSubscription adapts a nats.Subscription's channel-delivery mode to
// the Bus package's pull-based Subscription interface.
type natsSubscription struct {
	subject string
	sub     *natsgo.Subscription
	msgs    chan *natsgo.Msg
	bus     *natsBus

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *natsSubscription) Subject() string {
	return s.subject
}

func (s *natsSubscription) Next(ctx context.Context) (*Envelope, error) {
	select {
	case msg, ok := <-s.msgs:
		if !ok {
			return nil, ErrClosed
		}
		return s.decode(msg)
	case <-s.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *natsSubscription) TryNext() (*Envelope, bool) {
	select {
	case msg, ok := <-s.msgs:
		if !ok {
			return nil, false
		}
		env, err := s.decode(msg)
		if err != nil {
			return nil, false
		}
		return env, true
	default:
		return nil, false
	}
}

func (s *natsSubscription) decode(msg *natsgo.Msg) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return nil, fmt.Errorf("bus: decoding envelope from subject %s: %w", msg.Subject, err)
	}
	atomic.AddUint64(&s.bus.delivered, 1)
	return &env, nil
}

func (s *natsSubscription) Unsubscribe() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("%w: unsubscribing from %s: %v", ErrTransport, s.subject, err)
	}
	return nil
}
