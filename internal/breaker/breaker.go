// Package breaker implements the failure-isolation state machine that shields
// the remote store from repeated calls while it is failing. One breaker is
// shared by all workers; it protects the downstream adapter as a whole and
// has no notion of individual tasks.
package breaker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultFailureThreshold is the number of consecutive failures that
	// opens the circuit.
	DefaultFailureThreshold = 5

	// DefaultRecoveryTimeout is how long the circuit stays closed to
	// traffic after the last recorded failure.
	DefaultRecoveryTimeout = 30 * time.Second

	// pollInterval bounds how often WaitForRecovery re-checks the gate.
	pollInterval = 50 * time.Millisecond
)

// Clock supplies the current time. Injected so tests can drive recovery
// without sleeping.
type Clock func() time.Time

// Config tunes the breaker. Zero values fall back to the defaults.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	Clock            Clock
}

// Breaker is a Closed/Open state machine with a time-gated auto half-open:
// while open, elapsed recovery time re-admits calls, and the next recorded
// success closes the circuit again.
//
// All state transitions are serialized behind a single mutex; the breaker is
// safe for concurrent use by every worker.
type Breaker struct {
	mu sync.Mutex

	failures    int
	lastFailure time.Time
	open        bool

	threshold time.Duration
	limit     int
	now       Clock
	logger    *zap.Logger
}

// New creates a breaker. A nil logger is replaced with a no-op logger.
func New(cfg Config, logger *zap.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		limit:     cfg.FailureThreshold,
		threshold: cfg.RecoveryTimeout,
		now:       cfg.Clock,
		logger:    logger.Named("breaker"),
	}
}

// RecordSuccess resets the failure counter and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open {
		b.logger.Info("circuit closed after successful call")
	}
	b.failures = 0
	b.open = false
}

// RecordFailure increments the consecutive-failure counter and opens the
// circuit once the threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.limit && !b.open {
		b.open = true
		b.logger.Warn("circuit opened",
			zap.Int("consecutive_failures", b.failures),
			zap.Duration("recovery_timeout", b.threshold),
		)
	}
}

// CanExecute reports whether a call may proceed: true when closed, or when
// open but the recovery timeout has elapsed since the last failure.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canExecuteLocked()
}

func (b *Breaker) canExecuteLocked() bool {
	if !b.open {
		return true
	}
	return b.now().Sub(b.lastFailure) >= b.threshold
}

// WaitForRecovery blocks until CanExecute would return true or the context
// is cancelled. It returns immediately when execution is already permitted.
func (b *Breaker) WaitForRecovery(ctx context.Context) error {
	for {
		b.mu.Lock()
		permitted := b.canExecuteLocked()
		var remaining time.Duration
		if !permitted {
			remaining = b.threshold - b.now().Sub(b.lastFailure)
		}
		b.mu.Unlock()

		if permitted {
			return nil
		}

		wait := remaining
		if wait <= 0 || wait > pollInterval {
			wait = pollInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset returns the breaker to its initial closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.open = false
	b.lastFailure = time.Time{}
}

// State reports the current counters for metrics and tests.
func (b *Breaker) State() (open bool, failures int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open, b.failures
}
