// Package config defines service configuration and its loading hooks.
//
// Values are layered defaults, then an optional YAML file, then JNANA_*
// environment variables. Durations are expressed in whole seconds (or
// minutes where noted) so they read naturally in env vars.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database file. ":memory:" keeps everything in process.
	DBPath string `koanf:"db_path"`

	// Quota is Q: the number of distinct workers whose judgments complete an item.
	Quota int `koanf:"quota"`

	// RetireThreshold is R: distinct manual skips that retire an item.
	RetireThreshold int `koanf:"retire_threshold"`

	// TimerSeconds is the per-item time budget and the reservation TTL.
	TimerSeconds int `koanf:"timer_seconds"`

	// AcceptanceThreshold is the minimum agreement score for export (inclusive).
	AcceptanceThreshold float64 `koanf:"acceptance_threshold"`

	CandidateTTLSeconds    int `koanf:"candidate_ttl_seconds"`
	RetiredCacheTTLSeconds int `koanf:"retired_cache_ttl_seconds"`
	ItemCacheTTLSeconds    int `koanf:"item_cache_ttl_seconds"`
	ItemIDsCacheTTLSeconds int `koanf:"item_ids_cache_ttl_seconds"`
	SessionIdleMinutes     int `koanf:"session_idle_minutes"`

	// MaxAllocationAttempts caps candidates popped by one allocation.
	MaxAllocationAttempts int `koanf:"max_allocation_attempts"`

	// PrioritizeNearComplete orders candidates by fewest judgments remaining.
	PrioritizeNearComplete bool `koanf:"prioritize_near_complete"`

	// SweepIntervalSeconds paces the background expired-reservation sweep.
	SweepIntervalSeconds int `koanf:"sweep_interval_seconds"`

	// ActivityQueueSize bounds the in-memory activity queue.
	ActivityQueueSize int `koanf:"activity_queue_size"`

	// ActivityWorkers sets the number of activity recorder goroutines.
	ActivityWorkers int `koanf:"activity_workers"`

	// RateLimitRPS and RateLimitBurst shape the per-worker request limiter.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		DBPath:                 "jnana.db",
		Quota:                  5,
		RetireThreshold:        3,
		TimerSeconds:           420,
		AcceptanceThreshold:    0.4,
		CandidateTTLSeconds:    300,
		RetiredCacheTTLSeconds: 30,
		ItemCacheTTLSeconds:    600,
		ItemIDsCacheTTLSeconds: 15,
		SessionIdleMinutes:     120,
		MaxAllocationAttempts:  64,
		PrioritizeNearComplete: true,
		SweepIntervalSeconds:   30,
		ActivityQueueSize:      10_000,
		ActivityWorkers:        max(2, runtime.NumCPU()/4),
		RateLimitRPS:           5,
		RateLimitBurst:         10,
	}
}

// Validate reports the first invalid setting wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.Quota < 1:
		return fmt.Errorf("%w: quota must be at least 1, got %d", ErrInvalidConfig, c.Quota)
	case c.RetireThreshold < 1:
		return fmt.Errorf("%w: retire_threshold must be at least 1, got %d", ErrInvalidConfig, c.RetireThreshold)
	case c.TimerSeconds < 1:
		return fmt.Errorf("%w: timer_seconds must be positive, got %d", ErrInvalidConfig, c.TimerSeconds)
	case c.AcceptanceThreshold < 0 || c.AcceptanceThreshold > 1:
		return fmt.Errorf("%w: acceptance_threshold must be within [0,1], got %v", ErrInvalidConfig, c.AcceptanceThreshold)
	case c.MaxAllocationAttempts < 1:
		return fmt.Errorf("%w: max_allocation_attempts must be at least 1", ErrInvalidConfig)
	case c.ActivityQueueSize < 1 || c.ActivityWorkers < 1:
		return fmt.Errorf("%w: activity queue size and workers must be positive", ErrInvalidConfig)
	case c.RateLimitRPS <= 0 || c.RateLimitBurst < 1:
		return fmt.Errorf("%w: rate limit must be positive", ErrInvalidConfig)
	}
	return nil
}

// Timer returns the reservation TTL.
func (c *Config) Timer() time.Duration { return seconds(c.TimerSeconds) }

// CandidateTTL returns how long a worker's candidate memo stays fresh.
func (c *Config) CandidateTTL() time.Duration { return seconds(c.CandidateTTLSeconds) }

// RetiredCacheTTL returns the validity window of the retired-id set.
func (c *Config) RetiredCacheTTL() time.Duration { return seconds(c.RetiredCacheTTLSeconds) }

// ItemCacheTTL returns the read-through item cache TTL.
func (c *Config) ItemCacheTTL() time.Duration { return seconds(c.ItemCacheTTLSeconds) }

// ItemIDsCacheTTL returns how long the item id list is cached. Imports from
// other processes become visible within this window.
func (c *Config) ItemIDsCacheTTL() time.Duration { return seconds(c.ItemIDsCacheTTLSeconds) }

// SessionIdle returns how long an idle worker session is kept.
func (c *Config) SessionIdle() time.Duration { return time.Duration(c.SessionIdleMinutes) * time.Minute }

// SweepInterval returns the pace of the expired-reservation sweep.
func (c *Config) SweepInterval() time.Duration { return seconds(c.SweepIntervalSeconds) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
