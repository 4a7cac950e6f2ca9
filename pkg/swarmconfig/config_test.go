package swarmconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "nats://localhost:4222", cfg.Bus.URL)
	assert.Equal(t, int64(5000), cfg.Bus.ConnectionTimeoutMS)
	assert.Equal(t, 10, cfg.Bus.MaxReconnectAttempts)
	assert.Equal(t, int64(1000), cfg.Bus.ReconnectDelayMS)
	assert.Equal(t, 1_048_576, cfg.Bus.MaxMessageSize)
	assert.False(t, cfg.Bus.EnableTLS)
	assert.Equal(t, 5*time.Second, cfg.Bus.ConnectionTimeout())
}

func TestBusConfigValidateRequiresTLSPaths(t *testing.T) {
	cfg := DefaultBusConfig()
	cfg.EnableTLS = true
	assert.Error(t, cfg.Validate())

	cfg.TLSCertPath = "cert.pem"
	cfg.TLSKeyPath = "key.pem"
	assert.NoError(t, cfg.Validate())
}

func TestCoordinatorConfigStaleAfterIsThreeHeartbeats(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	assert.Equal(t, 90*time.Second, cfg.StaleAfter())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swarm.yaml")
	yamlContent := `
bus:
  url: nats://broker.internal:4222
  max_message_size: 2097152
scheduler:
  tick_interval_ms: 50
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://broker.internal:4222", cfg.Bus.URL)
	assert.Equal(t, 2097152, cfg.Bus.MaxMessageSize)
	assert.Equal(t, int64(5000), cfg.Bus.ConnectionTimeoutMS)
	assert.Equal(t, 50*time.Millisecond, cfg.Scheduler.TickInterval())
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/swarm.yaml")
	assert.Error(t, err)
}
