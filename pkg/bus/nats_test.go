package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestNewNATSWrapsTransportError confirms a failed connection attempt is
// reported as ErrTransport without requiring a live broker: no NATS server
// listens on the reserved, never-assigned port used below, so nats.Connect
// fails fast.
func TestNewNATSWrapsTransportError(t *testing.T) {
	_, err := NewNATS(NATSConfig{
		URL:               "nats://127.0.0.1:0",
		ConnectionTimeout: 200 * time.Millisecond,
	})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}
