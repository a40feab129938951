package maemio

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config enumerates every tunable the engine exposes. Values are
// expressed in the units their flag name implies; NewEngine converts the
// millisecond fields to time.Duration via the gcInterval/clockSyncInterval
// helpers.
type Config struct {
	// ThreadCount is the number of worker slots: one clock slot and one
	// contention manager per worker. The engine keeps no per-worker free
	// lists.
	ThreadCount int `yaml:"thread_count"`
	// GCIntervalMS is the period between GC sweeps.
	GCIntervalMS int `yaml:"gc_interval_ms"`
	// ClockSyncIntervalMS is the period between global epoch advances.
	ClockSyncIntervalMS int `yaml:"clock_sync_interval_ms"`
	// InitialIndexCapacity is a hint passed through to the external index
	// layer; the core never interprets it itself.
	InitialIndexCapacity int `yaml:"initial_index_capacity"`
	// RetryCap is the maximum number of retries per Execute call before
	// it returns ErrRetryExhausted.
	RetryCap int `yaml:"retry_cap"`
	// HillClimbWindowMS is the length of a hill-climbing measurement
	// window. No component reads it: the engine never calls
	// contention.Manager.OnWindowElapsed, so each worker's backoff mean
	// stays at its starting value.
	HillClimbWindowMS int `yaml:"hill_climb_window_ms"`
	// BackoffMinMicros and BackoffMaxMicros bound the contention
	// manager's hill-climbing walk.
	BackoffMinMicros float64 `yaml:"backoff_min_micros"`
	BackoffMaxMicros float64 `yaml:"backoff_max_micros"`
}

// DefaultConfig returns the engine's documented default tuning.
func DefaultConfig() Config {
	return Config{
		ThreadCount:          1,
		GCIntervalMS:         20,
		ClockSyncIntervalMS:  200,
		InitialIndexCapacity: 1024,
		RetryCap:             8,
		HillClimbWindowMS:    400, // 2x the default clock-sync interval
		BackoffMinMicros:     0.1,
		BackoffMaxMicros:     100_000,
	}
}

// LoadConfigFile reads and parses a YAML config file over DefaultConfig:
// any field the file does not set keeps its default value.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("maemio: read config %q: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("maemio: parse config %q: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects nonsensical configuration before NewEngine wires
// anything up, the way tinySQL's driver DSN parser validates connection
// parameters up front rather than lazily.
func (c Config) Validate() error {
	if c.ThreadCount <= 0 {
		return fmt.Errorf("maemio: thread_count must be positive, got %d", c.ThreadCount)
	}
	if c.GCIntervalMS <= 0 {
		return fmt.Errorf("maemio: gc_interval_ms must be positive, got %d", c.GCIntervalMS)
	}
	if c.ClockSyncIntervalMS <= 0 {
		return fmt.Errorf("maemio: clock_sync_interval_ms must be positive, got %d", c.ClockSyncIntervalMS)
	}
	if c.RetryCap < 0 {
		return fmt.Errorf("maemio: retry_cap must not be negative, got %d", c.RetryCap)
	}
	if c.BackoffMinMicros <= 0 || c.BackoffMaxMicros <= c.BackoffMinMicros {
		return fmt.Errorf("maemio: backoff bounds invalid: min=%v max=%v", c.BackoffMinMicros, c.BackoffMaxMicros)
	}
	return nil
}

func (c Config) gcInterval() time.Duration {
	return time.Duration(c.GCIntervalMS) * time.Millisecond
}

func (c Config) clockSyncInterval() time.Duration {
	return time.Duration(c.ClockSyncIntervalMS) * time.Millisecond
}
