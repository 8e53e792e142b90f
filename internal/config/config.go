// Package config holds the engine configuration: recognized options, their
// defaults, loading from a YAML file with environment overrides, and hot
// reloading of the file in long-running processes.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/N3z3d/prioris-sync/internal/conflict"
)

// Config carries every recognized engine option. Zero-value fields are
// replaced by defaults in Normalize, so a partially filled struct is valid
// input everywhere a Config is accepted.
type Config struct {
	ConflictStrategy          conflict.Strategy `yaml:"conflict_strategy" validate:"omitempty,oneof=keepLocal keepCloud smartMerge duplicate askUser"`
	DeleteLocalAfterMigration bool              `yaml:"delete_local_after_migration"`
	BatchSize                 int               `yaml:"batch_size" validate:"gte=0,lte=1000"`
	Timeout                   time.Duration     `yaml:"timeout" validate:"gte=0"`
	EnableProgressTracking    bool              `yaml:"enable_progress_tracking"`
	MaxRetries                int               `yaml:"max_retries" validate:"gte=0,lte=10"`
	WorkerCount               int               `yaml:"worker_count" validate:"gte=0,lte=64"`

	Breaker BreakerConfig `yaml:"breaker"`
	Cache   CacheConfig   `yaml:"cache"`
	Queue   QueueConfig   `yaml:"queue"`
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" validate:"gte=0,lte=100"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" validate:"gte=0"`
}

// CacheConfig tunes the record cache.
type CacheConfig struct {
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
	Capacity int           `yaml:"capacity" validate:"gte=0,lte=1000000"`
}

// QueueConfig tunes the batch write queue.
type QueueConfig struct {
	MaxPending int           `yaml:"max_pending" validate:"gte=0,lte=10000"`
	FlushDelay time.Duration `yaml:"flush_delay" validate:"gte=0"`
}

// Default returns the configuration used when the caller supplies nothing.
func Default() Config {
	return Config{
		ConflictStrategy:       conflict.StrategySmartMerge,
		BatchSize:              10,
		Timeout:                30 * time.Second,
		EnableProgressTracking: true,
		MaxRetries:             3,
		WorkerCount:            4,
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
		},
		Cache: CacheConfig{
			TTL:      15 * time.Minute,
			Capacity: 1000,
		},
		Queue: QueueConfig{
			MaxPending: 50,
			FlushDelay: 100 * time.Millisecond,
		},
	}
}

// Normalize fills zero-value fields with defaults and keeps explicit values.
// It never fails; Validate reports out-of-range explicit values.
func (c Config) Normalize() Config {
	def := Default()
	if c.ConflictStrategy == "" {
		c.ConflictStrategy = def.ConflictStrategy
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = def.WorkerCount
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = def.Breaker.FailureThreshold
	}
	if c.Breaker.RecoveryTimeout <= 0 {
		c.Breaker.RecoveryTimeout = def.Breaker.RecoveryTimeout
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = def.Cache.TTL
	}
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = def.Cache.Capacity
	}
	if c.Queue.MaxPending <= 0 {
		c.Queue.MaxPending = def.Queue.MaxPending
	}
	if c.Queue.FlushDelay <= 0 {
		c.Queue.FlushDelay = def.Queue.FlushDelay
	}
	return c
}

var validate = validator.New()

// Validate checks explicit values against their allowed ranges.
func (c Config) Validate() error {
	if c.ConflictStrategy != "" && !c.ConflictStrategy.Valid() {
		return fmt.Errorf("unknown conflict strategy %q", c.ConflictStrategy)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
