package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     *Envelope
		maxSize int
		wantErr error
	}{
		{
			name:    "valid envelope",
			env:     NewEnvelope("swarm.tasks.assignments", []byte("payload"), 0),
			maxSize: DefaultMaxMessageSize,
		},
		{
			name:    "empty id",
			env:     &Envelope{Subject: "swarm.tasks.assignments", Payload: []byte("x")},
			maxSize: DefaultMaxMessageSize,
			wantErr: ErrIDEmpty,
		},
		{
			name:    "empty subject",
			env:     &Envelope{ID: "env-1", Payload: []byte("x")},
			maxSize: DefaultMaxMessageSize,
			wantErr: ErrSubjectEmpty,
		},
		{
			name:    "empty payload",
			env:     &Envelope{ID: "env-1", Subject: "swarm.tasks.assignments"},
			maxSize: DefaultMaxMessageSize,
			wantErr: ErrEmptyPayload,
		},
		{
			name:    "too large",
			env:     NewEnvelope("swarm.tasks.assignments", make([]byte, 100), 0),
			maxSize: 10,
			wantErr: ErrMessageTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate(tt.maxSize)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEnvelopeExpired(t *testing.T) {
	now := time.Now()

	noTTL := &Envelope{Timestamp: now.Add(-time.Hour)}
	assert.False(t, noTTL.Expired(now))

	notYet := &Envelope{Timestamp: now, TTLMillis: int64(time.Minute / time.Millisecond)}
	assert.False(t, notYet.Expired(now.Add(time.Second)))

	expired := &Envelope{Timestamp: now.Add(-time.Hour), TTLMillis: 1000}
	assert.True(t, expired.Expired(now))
}

func TestEnvelopeCloneIndependence(t *testing.T) {
	orig := NewEnvelope("swarm.tasks.assignments", []byte("payload"), 0)
	orig.Headers = map[string]string{"kind": "text_analysis"}

	clone := orig.Clone()
	clone.Payload[0] = 'X'
	clone.Headers["kind"] = "vector_indexing"

	assert.Equal(t, byte('p'), orig.Payload[0])
	assert.Equal(t, "text_analysis", orig.Headers["kind"])
}
