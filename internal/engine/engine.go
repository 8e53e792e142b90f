// Package engine coordinates migration and steady-state synchronization of
// lists and items from a local store to a remote store. It owns the worker
// pool, the circuit breaker shielding the remote adapter, the record caches,
// and the batch write queue; callers supply the two store adapters and get
// back an aggregated Result.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/N3z3d/prioris-sync/internal/breaker"
	"github.com/N3z3d/prioris-sync/internal/cache"
	"github.com/N3z3d/prioris-sync/internal/config"
	"github.com/N3z3d/prioris-sync/internal/observability"
	"github.com/N3z3d/prioris-sync/internal/store"
	"github.com/N3z3d/prioris-sync/internal/syncerr"
	"github.com/N3z3d/prioris-sync/internal/writequeue"
)

// ErrDisposed is returned by operations invoked after Dispose.
var ErrDisposed = errors.New("engine disposed")

// Engine is the top-level coordinator. Safe for concurrent use; a single
// breaker and write queue are shared by all workers.
type Engine struct {
	local  store.Adapter
	remote store.Adapter

	brk         *breaker.Breaker
	localCache  *cache.RecordCache
	remoteCache *cache.RecordCache
	queue       *writequeue.Queue

	logger  *zap.Logger
	sink    observability.MetricsSink
	now     func() time.Time
	backoff func(attempt int) time.Duration

	mu       sync.Mutex
	disposed bool
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	sink    observability.MetricsSink
	clock   func() time.Time
	probe   store.SessionProbe
	backoff func(attempt int) time.Duration
	cfg     config.Config
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSink sets the metrics sink. Absence never affects correctness.
func WithSink(s observability.MetricsSink) Option {
	return func(o *options) { o.sink = s }
}

// WithClock injects the time source used by the breaker and the caches.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithSessionProbe sets the remote-availability signal. Remote-bound flushes
// are skipped, not failed, while the probe reports false.
func WithSessionProbe(p store.SessionProbe) Option {
	return func(o *options) { o.probe = p }
}

// WithBackoff overrides the retry delay schedule. The default is
// 2^attempt seconds.
func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(o *options) { o.backoff = f }
}

// WithTuning sets the engine-lifetime component tunables (breaker, cache,
// queue). Per-run options still arrive through Migrate's Config.
func WithTuning(cfg config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

func defaultBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// New builds an Engine over the two adapters.
func New(local, remote store.Adapter, opts ...Option) *Engine {
	o := options{
		sink:    observability.NopSink{},
		clock:   time.Now,
		probe:   store.AlwaysAvailable,
		backoff: defaultBackoff,
		cfg:     config.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.cfg = o.cfg.Normalize()

	brk := breaker.New(breaker.Config{
		FailureThreshold: o.cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  o.cfg.Breaker.RecoveryTimeout,
		Clock:            o.clock,
	}, o.logger)

	cacheCfg := cache.Config{
		TTL:      o.cfg.Cache.TTL,
		Capacity: o.cfg.Cache.Capacity,
		Clock:    o.clock,
	}

	e := &Engine{
		local:       local,
		remote:      remote,
		brk:         brk,
		localCache:  cache.New(cacheCfg, o.logger, o.sink),
		remoteCache: cache.New(cacheCfg, o.logger, o.sink),
		logger:      o.logger.Named("engine"),
		sink:        observability.OrNop(o.sink),
		now:         o.clock,
		backoff:     o.backoff,
	}
	e.queue = writequeue.New(local, remote, writequeue.Config{
		MaxPending: o.cfg.Queue.MaxPending,
		FlushDelay: o.cfg.Queue.FlushDelay,
		Probe:      o.probe,
		Breaker:    brk,
	}, o.logger, o.sink)
	return e
}

// Breaker exposes the shared circuit breaker, mainly for observation.
func (e *Engine) Breaker() *breaker.Breaker { return e.brk }

// Dispose shuts the engine down: further operations are rejected, the
// breaker is reset, caches are emptied, and pending batched writes are
// flushed or dropped with a logged warning.
func (e *Engine) Dispose(ctx context.Context) error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return nil
	}
	e.disposed = true
	e.mu.Unlock()

	err := e.queue.Close(ctx)
	e.brk.Reset()
	e.localCache.InvalidateAll()
	e.remoteCache.InvalidateAll()
	e.logger.Info("engine disposed")
	return err
}

func (e *Engine) isDisposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

// transient reports whether an error is worth a task retry.
func transient(err error) bool {
	if store.IsTransient(err) {
		return true
	}
	return syncerr.IsRetryable(err)
}
