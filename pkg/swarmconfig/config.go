// Package swarmconfig holds the typed configuration for the bus,
// scheduler, and coordinator, loadable from YAML.
package swarmconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BusConfig mirrors spec §6's "recognized options" table field-for-field.
type BusConfig struct {
	URL                  string `yaml:"url"`
	ConnectionTimeoutMS  int64  `yaml:"connection_timeout_ms"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
	ReconnectDelayMS     int64  `yaml:"reconnect_delay_ms"`
	MaxMessageSize       int    `yaml:"max_message_size"`
	EnableTLS            bool   `yaml:"enable_tls"`
	TLSCertPath          string `yaml:"tls_cert_path,omitempty"`
	TLSKeyPath           string `yaml:"tls_key_path,omitempty"`
	TLSCAPath            string `yaml:"tls_ca_path,omitempty"`
}

// DefaultBusConfig returns the spec §6 defaults.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		URL:                  "nats://localhost:4222",
		ConnectionTimeoutMS:  5000,
		MaxReconnectAttempts: 10,
		ReconnectDelayMS:     1000,
		MaxMessageSize:       1_048_576,
		EnableTLS:            false,
	}
}

// ConnectionTimeout returns ConnectionTimeoutMS as a time.Duration.
func (c BusConfig) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutMS) * time.Millisecond
}

// ReconnectDelay returns ReconnectDelayMS as a time.Duration.
func (c BusConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

// Validate checks the TLS path fields are present when TLS is enabled.
func (c BusConfig) Validate() error {
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("swarmconfig: bus.max_message_size must be > 0")
	}
	if c.EnableTLS {
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return fmt.Errorf("swarmconfig: bus.tls_cert_path and tls_key_path are required when enable_tls is true")
		}
	}
	return nil
}

// SchedulerConfig governs the Scheduler's tick cadence (spec §4.3).
type SchedulerConfig struct {
	TickIntervalMS int64 `yaml:"tick_interval_ms"`
}

// DefaultSchedulerConfig matches scheduler.DefaultTickInterval.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{TickIntervalMS: 10}
}

// TickInterval returns TickIntervalMS as a time.Duration.
func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// CoordinatorConfig governs the Coordinator's background loops (spec §4.4/§5).
type CoordinatorConfig struct {
	EvictIntervalMS     int64 `yaml:"evict_interval_ms"`
	HeartbeatIntervalMS int64 `yaml:"heartbeat_interval_ms"`
	CancelGraceMS       int64 `yaml:"cancel_grace_ms"`
}

// DefaultCoordinatorConfig matches coordinator.DefaultEvictInterval,
// worker.DefaultHeartbeatInterval, and coordinator.DefaultCancelGrace.
// EvictIntervalMS is the evictor's sweep tick; the staleness threshold it
// checks is 3x HeartbeatIntervalMS (see StaleAfter).
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		EvictIntervalMS:     10_000,
		HeartbeatIntervalMS: 30_000,
		CancelGraceMS:       5_000,
	}
}

func (c CoordinatorConfig) EvictInterval() time.Duration {
	return time.Duration(c.EvictIntervalMS) * time.Millisecond
}

func (c CoordinatorConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

func (c CoordinatorConfig) CancelGrace() time.Duration {
	return time.Duration(c.CancelGraceMS) * time.Millisecond
}

// StaleAfter returns the heartbeat-age threshold past which a worker is
// considered stale and evicted: 3x the heartbeat interval.
func (c CoordinatorConfig) StaleAfter() time.Duration {
	return 3 * c.HeartbeatInterval()
}

// Config is the top-level configuration tree for cmd/swarmd.
type Config struct {
	Bus         BusConfig         `yaml:"bus"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
}

// Default returns a Config populated with every subsystem's defaults.
func Default() Config {
	return Config{
		Bus:         DefaultBusConfig(),
		Scheduler:   DefaultSchedulerConfig(),
		Coordinator: DefaultCoordinatorConfig(),
	}
}

// Load reads and parses a Config from a YAML file at path, filling in
// defaults for any field the file omits.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("swarmconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("swarmconfig: parse %s: %w", path, err)
	}
	if err := cfg.Bus.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
