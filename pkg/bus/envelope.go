package bus

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxMessageSize is the default cap on an Envelope's encoded size
// (invariant I6), overridable via swarmconfig.BusConfig.MaxMessageSize.
const DefaultMaxMessageSize = 1_048_576

// Envelope is the self-describing structured record carried on every
// subject: a subscriber can decide how to decode Payload from Headers
// without first consulting the sender.
type Envelope struct {
	ID        string            `json:"id"`
	Subject   string            `json:"subject"`
	Payload   []byte            `json:"payload"`
	Headers   map[string]string `json:"headers,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	TTLMillis int64             `json:"ttl_ms,omitempty"`
}

// NewEnvelope builds an Envelope with a generated ID and the current
// timestamp. ttl of 0 means no expiry.
func NewEnvelope(subject string, payload []byte, ttl time.Duration) *Envelope {
	return &Envelope{
		ID:        uuid.New().String(),
		Subject:   subject,
		Payload:   payload,
		Timestamp: time.Now(),
		TTLMillis: ttl.Milliseconds(),
	}
}

// Expired reports whether the envelope's TTL (if any) has elapsed as of now.
func (e *Envelope) Expired(now time.Time) bool {
	if e.TTLMillis <= 0 {
		return false
	}
	return now.After(e.Timestamp.Add(time.Duration(e.TTLMillis) * time.Millisecond))
}

// size estimates the wire size used for I6 enforcement: payload plus
// headers plus a fixed allowance for the envelope's scalar fields.
func (e *Envelope) size() int {
	n := len(e.Payload) + len(e.Subject) + len(e.ID) + 64
	for k, v := range e.Headers {
		n += len(k) + len(v)
	}
	return n
}

// Validate enforces I5 (non-nil id, non-empty subject/payload) and I6
// (size cap) before an envelope is admitted to any binding's Publish.
func (e *Envelope) Validate(maxSize int) error {
	if e.ID == "" {
		return ErrIDEmpty
	}
	if e.Subject == "" {
		return ErrSubjectEmpty
	}
	if len(e.Payload) == 0 {
		return ErrEmptyPayload
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	if size := e.size(); size > maxSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMessageTooLarge, size, maxSize)
	}
	return nil
}

// Clone returns a deep-enough copy for independent delivery to each
// subscriber (each subscription must observe its own copy, never one
// mutated by another subscriber's handler).
func (e *Envelope) Clone() *Envelope {
	clone := *e
	if e.Payload != nil {
		clone.Payload = append([]byte(nil), e.Payload...)
	}
	if e.Headers != nil {
		clone.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			clone.Headers[k] = v
		}
	}
	return &clone
}
