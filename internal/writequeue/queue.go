// Package writequeue batches store writes so callers do not pay one adapter
// round trip per record. Pending operations flush when the queue reaches its
// size limit or when the flush delay elapses, whichever comes first; a failed
// flush puts its unapplied operations back at the head of the queue in their
// original order.
package writequeue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/N3z3d/prioris-sync/internal/breaker"
	"github.com/N3z3d/prioris-sync/internal/domain"
	"github.com/N3z3d/prioris-sync/internal/observability"
	"github.com/N3z3d/prioris-sync/internal/store"
	"github.com/N3z3d/prioris-sync/internal/syncerr"
)

const (
	// DefaultMaxPending is the size trigger for an automatic flush.
	DefaultMaxPending = 50

	// DefaultFlushDelay is the time trigger for an automatic flush.
	DefaultFlushDelay = 100 * time.Millisecond
)

// Target names the store an operation is bound for.
type Target int

const (
	TargetLocal Target = iota
	TargetRemote
)

func (t Target) String() string {
	if t == TargetRemote {
		return "remote"
	}
	return "local"
}

// Kind distinguishes list operations from item operations.
type Kind int

const (
	KindList Kind = iota
	KindItem
)

// Action is the adapter call an operation maps to.
type Action int

const (
	ActionSave Action = iota
	ActionUpdate
	ActionDelete
)

// Op is a single pending write. Exactly one of List, Item or ID is set
// depending on Kind and Action; deletes carry only the record id.
type Op struct {
	Target Target
	Kind   Kind
	Action Action
	List   *domain.List
	Item   *domain.Item
	ID     string

	seq uint64
}

// SaveList builds a save operation for a list.
func SaveList(target Target, l *domain.List) Op {
	return Op{Target: target, Kind: KindList, Action: ActionSave, List: l}
}

// UpdateList builds an update operation for a list.
func UpdateList(target Target, l *domain.List) Op {
	return Op{Target: target, Kind: KindList, Action: ActionUpdate, List: l}
}

// DeleteList builds a delete operation for a list id.
func DeleteList(target Target, id string) Op {
	return Op{Target: target, Kind: KindList, Action: ActionDelete, ID: id}
}

// SaveItem builds a save operation for an item.
func SaveItem(target Target, i *domain.Item) Op {
	return Op{Target: target, Kind: KindItem, Action: ActionSave, Item: i}
}

// UpdateItem builds an update operation for an item.
func UpdateItem(target Target, i *domain.Item) Op {
	return Op{Target: target, Kind: KindItem, Action: ActionUpdate, Item: i}
}

// DeleteItem builds a delete operation for an item id.
func DeleteItem(target Target, id string) Op {
	return Op{Target: target, Kind: KindItem, Action: ActionDelete, ID: id}
}

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("write queue closed")

// Config tunes the queue. Zero values fall back to the defaults. Probe and
// Breaker gate remote-bound groups: when the probe reports no session or the
// breaker refuses execution, remote operations stay queued instead of being
// attempted and failed.
type Config struct {
	MaxPending int
	FlushDelay time.Duration
	Probe      store.SessionProbe
	Breaker    *breaker.Breaker
}

// Queue accumulates writes for the local and remote adapters. All state is
// serialized behind a single mutex; adapter calls happen with the mutex held
// so a flush and a concurrent Enqueue cannot interleave re-prepends.
type Queue struct {
	mu      sync.Mutex
	pending []Op
	nextSeq uint64
	timer   *time.Timer
	closed  bool

	local  store.Adapter
	remote store.Adapter

	maxPending int
	flushDelay time.Duration
	probe      store.SessionProbe
	brk        *breaker.Breaker

	logger *zap.Logger
	sink   observability.MetricsSink
}

// New creates a queue over the two adapters.
func New(local, remote store.Adapter, cfg Config, logger *zap.Logger, sink observability.MetricsSink) *Queue {
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = DefaultFlushDelay
	}
	if cfg.Probe == nil {
		cfg.Probe = store.AlwaysAvailable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		local:      local,
		remote:     remote,
		maxPending: cfg.MaxPending,
		flushDelay: cfg.FlushDelay,
		probe:      cfg.Probe,
		brk:        cfg.Breaker,
		logger:     logger.Named("writequeue"),
		sink:       observability.OrNop(sink),
	}
}

// Enqueue adds an operation. Reaching the size limit triggers an immediate
// flush whose error is returned to this caller; otherwise the delay timer is
// armed and Enqueue returns without touching the adapters.
func (q *Queue) Enqueue(ctx context.Context, op Op) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	op.seq = q.nextSeq
	q.nextSeq++
	q.pending = append(q.pending, op)

	if len(q.pending) >= q.maxPending {
		q.stopTimerLocked()
		_, err := q.flushLocked(ctx)
		return err
	}

	if q.timer == nil {
		q.timer = time.AfterFunc(q.flushDelay, q.timedFlush)
	}
	return nil
}

// Flush applies every pending operation now. The returned count is the
// number of remote-bound operations the flush deferred because the session
// probe or the breaker gated them: those stayed queued without being
// attempted, so a nil error with a non-zero count means the local groups
// landed but the remote side has not seen this flush's writes. Callers
// needing a synchronous durability guarantee invoke this and check both.
func (q *Queue) Flush(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopTimerLocked()
	return q.flushLocked(ctx)
}

// Pending reports the number of queued operations.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the timer, attempts a final flush and rejects further
// enqueues. Operations that cannot be flushed are dropped with a warning.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.stopTimerLocked()

	_, err := q.flushLocked(ctx)
	if dropped := len(q.pending); dropped > 0 {
		q.logger.Warn("dropping unflushed operations on close",
			zap.Int("count", dropped),
			zap.Error(err),
		)
		q.pending = nil
	}
	return err
}

func (q *Queue) timedFlush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.timer = nil
	if q.closed {
		return
	}
	if _, err := q.flushLocked(context.Background()); err != nil {
		q.logger.Warn("timed flush failed, operations remain queued", zap.Error(err))
	}
}

func (q *Queue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

// group keys preserve a fixed apply order: lists before items so a saved
// item always finds its owning list, local before remote.
type groupKey struct {
	target Target
	kind   Kind
}

var groupOrder = []groupKey{
	{TargetLocal, KindList},
	{TargetLocal, KindItem},
	{TargetRemote, KindList},
	{TargetRemote, KindItem},
}

func (q *Queue) flushLocked(ctx context.Context) (int, error) {
	if len(q.pending) == 0 {
		return 0, nil
	}

	ops := q.pending
	q.pending = nil

	groups := make(map[groupKey][]Op, len(groupOrder))
	for _, op := range ops {
		k := groupKey{op.Target, op.Kind}
		groups[k] = append(groups[k], op)
	}

	remoteGated := q.remoteGated()

	var leftover []Op
	var flushErr error
	deferred := 0
	for _, key := range groupOrder {
		group := groups[key]
		if len(group) == 0 {
			continue
		}
		if flushErr != nil {
			leftover = append(leftover, group...)
			continue
		}
		if key.target == TargetRemote && remoteGated {
			deferred += len(group)
			leftover = append(leftover, group...)
			continue
		}
		for i, op := range group {
			if err := q.apply(ctx, op); err != nil {
				// A duplicate id is a conflict signal, not remote
				// ill-health; only transport-class failures count
				// toward opening the circuit.
				if key.target == TargetRemote && q.brk != nil && breakerWorthy(err) {
					q.brk.RecordFailure()
				}
				// A save losing the race to an existing id is retried as
				// an update, never replayed as-is.
				if op.Action == ActionSave && errors.Is(err, store.ErrDuplicateID) {
					group[i].Action = ActionUpdate
					q.logger.Debug("converting duplicate save to update",
						zap.String("target", key.target.String()),
						zap.String("kind", kindName(key.kind)),
					)
				}
				leftover = append(leftover, group[i:]...)
				flushErr = fmt.Errorf("flush %s %s: %w", key.target, kindName(key.kind), err)
				break
			}
			if key.target == TargetRemote && q.brk != nil {
				q.brk.RecordSuccess()
			}
		}
	}

	if len(leftover) > 0 {
		sort.Slice(leftover, func(i, j int) bool { return leftover[i].seq < leftover[j].seq })
		q.pending = append(leftover, q.pending...)
	}

	if flushErr != nil {
		q.sink.Add(observability.MetricQueueFlushFailures, 1)
		return 0, flushErr
	}
	q.sink.Add(observability.MetricQueueFlushes, 1)
	if len(q.pending) > 0 && !q.closed {
		// Remote-gated operations wait for the next trigger.
		q.timer = time.AfterFunc(q.flushDelay, q.timedFlush)
	}
	return deferred, nil
}

// breakerWorthy reports whether a remote failure should count toward
// opening the circuit.
func breakerWorthy(err error) bool {
	return store.IsTransient(err) || syncerr.IsRetryable(err)
}

func (q *Queue) remoteGated() bool {
	if !q.probe() {
		q.logger.Debug("remote session unavailable, keeping remote operations queued")
		return true
	}
	if q.brk != nil && !q.brk.CanExecute() {
		q.logger.Debug("circuit breaker open, keeping remote operations queued")
		return true
	}
	return false
}

func (q *Queue) apply(ctx context.Context, op Op) error {
	adapter := q.local
	if op.Target == TargetRemote {
		adapter = q.remote
	}
	switch {
	case op.Kind == KindList && op.Action == ActionSave:
		return adapter.SaveList(ctx, op.List)
	case op.Kind == KindList && op.Action == ActionUpdate:
		return adapter.UpdateList(ctx, op.List)
	case op.Kind == KindList && op.Action == ActionDelete:
		return adapter.DeleteList(ctx, op.ID)
	case op.Kind == KindItem && op.Action == ActionSave:
		return adapter.SaveItem(ctx, op.Item)
	case op.Kind == KindItem && op.Action == ActionUpdate:
		return adapter.UpdateItem(ctx, op.Item)
	default:
		return adapter.DeleteItem(ctx, op.ID)
	}
}

func kindName(k Kind) string {
	if k == KindItem {
		return "item"
	}
	return "list"
}
