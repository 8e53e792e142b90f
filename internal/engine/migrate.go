package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/N3z3d/prioris-sync/internal/cache"
	"github.com/N3z3d/prioris-sync/internal/config"
	"github.com/N3z3d/prioris-sync/internal/conflict"
	"github.com/N3z3d/prioris-sync/internal/domain"
	"github.com/N3z3d/prioris-sync/internal/observability"
	"github.com/N3z3d/prioris-sync/internal/store"
	"github.com/N3z3d/prioris-sync/internal/syncerr"
	"github.com/N3z3d/prioris-sync/internal/writequeue"
)

// analysis is the read-only volume survey the batch tuning runs on.
type analysis struct {
	lists        []*domain.List
	itemCount    int
	payloadBytes int
}

// perRecordOverhead approximates the serialized envelope around the string
// fields when estimating payload size.
const perRecordOverhead = 64

const payloadHalvingThreshold = 1 << 20 // 1 MiB

// Migrate moves every local list and its items to the remote store,
// resolving conflicts with the configured strategy, and returns the
// aggregated outcome. A failure while surveying the stores aborts with a
// single error and no side effects; after that point individual task
// failures are retried and then counted, never fatal to the run.
func (e *Engine) Migrate(ctx context.Context, cfg config.Config) (*Result, error) {
	if e.isDisposed() {
		return nil, ErrDisposed
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	start := e.now()
	an, err := e.analyze(ctx)
	if err != nil {
		serr := syncerr.Internal("ANALYZE_FAILED", "analyze source store", err).WithOperation("migrate.analyze")
		return &Result{Errors: 1, ErrorDetails: []string{serr.Error()}}, serr
	}
	snapshot, err := e.remoteSnapshot(ctx)
	if err != nil {
		serr := syncerr.Internal("SNAPSHOT_FAILED", "snapshot destination store", err).WithOperation("migrate.snapshot")
		return &Result{Errors: 1, ErrorDetails: []string{serr.Error()}}, serr
	}

	batchSize := tuneBatchSize(cfg.BatchSize, an.itemCount, an.payloadBytes)
	tasks := partition(an.lists, snapshot, cfg, batchSize)

	e.logger.Info("migration planned",
		zap.Int("lists", len(an.lists)),
		zap.Int("items", an.itemCount),
		zap.Int("estimated_payload_bytes", an.payloadBytes),
		zap.Int("batch_size", batchSize),
		zap.Int("tasks", len(tasks)),
		zap.Int("workers", cfg.WorkerCount),
	)

	total := e.dispatch(ctx, cfg, tasks)

	elapsed := e.now().Sub(start)
	result := &Result{
		MigratedLists: total.lists,
		MigratedItems: total.items,
		SkippedLists:  total.skippedLists,
		SkippedItems:  total.skippedItems,
		Conflicts:     total.conflicts,
		Errors:        total.errors,
		ErrorDetails:  total.details,
		Elapsed:       elapsed,
		Stats: map[string]any{
			"workers":                 cfg.WorkerCount,
			"batch_size":              batchSize,
			"tasks":                   len(tasks),
			"tasks_succeeded":         total.tasks,
			"tasks_retried":           total.retried,
			"source_lists":            len(an.lists),
			"source_items":            an.itemCount,
			"estimated_payload_bytes": an.payloadBytes,
		},
	}
	e.emitRunMetrics(result, len(tasks))
	return result, nil
}

func (e *Engine) emitRunMetrics(r *Result, taskCount int) {
	e.sink.Observe(observability.MetricSyncLatencyMS, float64(r.Elapsed.Milliseconds()))
	if taskCount > 0 {
		e.sink.Observe(observability.MetricSyncErrorRate, float64(r.Errors)/float64(taskCount))
	}
	if secs := r.Elapsed.Seconds(); secs > 0 {
		e.sink.Observe(observability.MetricSyncThroughput, float64(r.MigratedItems)/secs)
	}
	e.sink.Add(observability.MetricSyncConflicts, float64(r.Conflicts))
}

// analyze reads every local list with its items, populating the local cache
// on the way, and computes the volume figures batch tuning needs.
func (e *Engine) analyze(ctx context.Context) (*analysis, error) {
	lists, err := e.local.GetAllLists(ctx)
	if err != nil {
		return nil, err
	}

	an := &analysis{lists: make([]*domain.List, 0, len(lists))}
	for _, l := range lists {
		items, err := e.readItems(ctx, e.local, e.localCache, l.ID)
		if err != nil {
			return nil, err
		}
		withItems := l.Clone()
		withItems.Items = items
		e.localCache.PutList(withItems)

		an.lists = append(an.lists, withItems)
		an.itemCount += len(items)
		an.payloadBytes += estimateListPayload(withItems)
	}
	return an, nil
}

// remoteSnapshot reads the destination's current records, items included so
// conflict resolution can work at item granularity, keyed by list id.
func (e *Engine) remoteSnapshot(ctx context.Context) (map[string]*domain.List, error) {
	lists, err := e.remote.GetAllLists(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]*domain.List, len(lists))
	for _, l := range lists {
		items, err := e.readItems(ctx, e.remote, e.remoteCache, l.ID)
		if err != nil {
			return nil, err
		}
		withItems := l.Clone()
		withItems.Items = items
		e.remoteCache.PutList(withItems)
		snapshot[l.ID] = withItems
	}
	return snapshot, nil
}

func (e *Engine) readItems(ctx context.Context, a store.Adapter, c *cache.RecordCache, listID string) ([]*domain.Item, error) {
	if items, ok := c.GetItems(listID); ok {
		return items, nil
	}
	items, err := a.GetItemsByListID(ctx, listID)
	if err != nil {
		return nil, err
	}
	c.PutItems(listID, items)
	return items, nil
}

// estimateListPayload approximates the transfer size of a list and its items
// from string lengths; exact serialization cost is not needed, only a stable
// ordering of volumes.
func estimateListPayload(l *domain.List) int {
	size := len(l.ID) + len(l.Name) + len(l.Description) + len(l.Type) + perRecordOverhead
	for _, item := range l.Items {
		size += len(item.ID) + len(item.Title) + len(item.Description) +
			len(item.Category) + len(item.Notes) + perRecordOverhead
	}
	return size
}

// tuneBatchSize derives the effective batch size from total volume. Pure and
// deterministic: identical inputs always produce identical sizes.
func tuneBatchSize(configured, itemCount, payloadBytes int) int {
	size := configured
	switch {
	case itemCount >= 1000:
		size = 50
	case itemCount >= 100:
		size = 25
	}
	if payloadBytes > payloadHalvingThreshold {
		size /= 2
		if size < 1 {
			size = 1
		}
	}
	return size
}

// partition slices the lists into contiguous batches of the tuned size and
// attaches the shared remote snapshot and a recency-derived priority.
func partition(lists []*domain.List, snapshot map[string]*domain.List, cfg config.Config, batchSize int) []*SyncTask {
	if len(lists) == 0 {
		return nil
	}
	tasks := make([]*SyncTask, 0, (len(lists)+batchSize-1)/batchSize)
	for startIdx := 0; startIdx < len(lists); startIdx += batchSize {
		end := startIdx + batchSize
		if end > len(lists) {
			end = len(lists)
		}
		batch := lists[startIdx:end]

		var priority int64
		for _, l := range batch {
			if ts := l.RelevantTime().Unix(); ts > priority {
				priority = ts
			}
		}
		tasks = append(tasks, &SyncTask{
			Batch:          batch,
			RemoteSnapshot: snapshot,
			Config:         cfg,
			Priority:       priority,
		})
	}
	return tasks
}

// dispatch runs the worker pool over the task queue and merges per-worker
// tallies. Tasks are consumed FIFO; a transiently failing task re-enters the
// queue with an incremented attempt counter until retries are exhausted.
func (e *Engine) dispatch(ctx context.Context, cfg config.Config, tasks []*SyncTask) tally {
	var total tally
	if len(tasks) == 0 {
		return total
	}

	// Capacity covers every task at its maximum number of re-enqueues so
	// workers never block on the send.
	queue := make(chan *SyncTask, len(tasks)*(cfg.MaxRetries+2))
	var outstanding sync.WaitGroup
	outstanding.Add(len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	go func() {
		outstanding.Wait()
		close(queue)
	}()

	var (
		mu        sync.Mutex
		completed int
	)
	var workers sync.WaitGroup
	for w := 0; w < cfg.WorkerCount; w++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			var local tally
			for task := range queue {
				e.runTask(ctx, id, task, queue, &outstanding, &local)
				if task.Config.EnableProgressTracking {
					mu.Lock()
					completed++
					done := completed
					mu.Unlock()
					e.logger.Info("task processed",
						zap.Int("worker", id),
						zap.Int("completed", done),
						zap.Int("total", len(tasks)),
					)
				}
			}
			mu.Lock()
			total.merge(local)
			mu.Unlock()
		}(w)
	}
	workers.Wait()
	return total
}

// runTask executes one task, handling breaker waits, retry scheduling and
// terminal accounting. outstanding is decremented exactly once per task
// lineage, when the task succeeds or fails terminally.
func (e *Engine) runTask(ctx context.Context, worker int, task *SyncTask, queue chan<- *SyncTask, outstanding *sync.WaitGroup, t *tally) {
	if !e.brk.CanExecute() {
		e.sink.Add(observability.MetricBreakerOpenEvents, 1)
		if err := e.brk.WaitForRecovery(ctx); err != nil {
			serr := syncerr.Unavailable("BREAKER_WAIT_ABANDONED", "task abandoned waiting for breaker recovery").
				WithOperation("migrate.task").WithCause(err)
			t.errors++
			t.details = append(t.details, serr.Error())
			outstanding.Done()
			return
		}
	}

	err := e.executeTask(ctx, task, t)
	if err == nil {
		t.tasks++
		outstanding.Done()
		return
	}

	if transient(err) && task.Attempt < task.Config.MaxRetries {
		t.retried++
		e.sink.Add(observability.MetricTasksRetried, 1)
		e.logger.Warn("task failed, scheduling retry",
			zap.Int("worker", worker),
			zap.Int("attempt", task.Attempt),
			zap.Error(err),
		)
		select {
		case <-time.After(e.backoff(task.Attempt)):
			task.Attempt++
			queue <- task
			return
		case <-ctx.Done():
			// Fall through to terminal accounting.
		}
	}

	t.errors++
	t.details = append(t.details, err.Error())
	e.logger.Error("task failed terminally",
		zap.Int("worker", worker),
		zap.Int("attempt", task.Attempt),
		zap.Error(err),
	)
	outstanding.Done()
}

// flushConverging flushes the write queue, retrying through duplicate-id
// failures. Each such failure converts the offending save into an update
// before it is reported, so every iteration makes progress and the loop
// terminates once the batch has no fresh duplicates left.
func (e *Engine) flushConverging(ctx context.Context) (int, error) {
	for {
		deferred, err := e.queue.Flush(ctx)
		if err == nil {
			return deferred, nil
		}
		if !errors.Is(err, store.ErrDuplicateID) {
			return 0, err
		}
		e.logger.Debug("duplicate id during flush, retrying as update", zap.Error(err))
	}
}

// executeTask migrates every list in the batch and flushes the write queue.
// A failed flush leaves the operations queued, so a retried task only
// flushes again instead of enqueueing a second copy; counts are credited to
// the tally once, after the flush lands. When the session probe or the
// breaker keeps the remote groups queued, the batch is counted as skipped
// and the local copies are left in place.
func (e *Engine) executeTask(ctx context.Context, task *SyncTask, t *tally) error {
	if !task.enqueued {
		for _, l := range task.Batch {
			remote := task.RemoteSnapshot[l.ID]
			if remote == nil {
				if err := e.enqueueNewList(ctx, l); err != nil {
					return err
				}
				task.plannedLists++
				task.plannedItems += len(l.Items)
				continue
			}

			task.plannedConflicts++
			_, n, err := e.enqueueResolved(ctx, l, remote, task.Config.ConflictStrategy)
			if err != nil {
				return err
			}
			task.plannedLists++
			task.plannedItems += n
		}
		task.enqueued = true
	}

	deferred, err := e.flushConverging(ctx)
	if err != nil {
		return err
	}
	if deferred > 0 {
		// The remote writes never left the queue. Nothing was migrated,
		// so the local copies must survive even when the configuration
		// asks for post-migration deletion.
		e.logger.Warn("remote unavailable, batch deferred",
			zap.Int("lists", task.plannedLists),
			zap.Int("items", task.plannedItems),
		)
		t.skippedLists += task.plannedLists
		t.skippedItems += task.plannedItems
		t.conflicts += task.plannedConflicts
		return nil
	}

	if task.Config.DeleteLocalAfterMigration && !task.deletesEnqueued {
		for _, l := range task.Batch {
			if err := e.queue.Enqueue(ctx, writequeue.DeleteList(writequeue.TargetLocal, l.ID)); err != nil {
				return err
			}
			e.localCache.Invalidate(l.ID)
		}
		task.deletesEnqueued = true
	}
	if task.deletesEnqueued {
		if _, err := e.flushConverging(ctx); err != nil {
			return err
		}
	}

	for _, l := range task.Batch {
		e.remoteCache.Invalidate(l.ID)
	}

	t.lists += task.plannedLists
	t.items += task.plannedItems
	t.conflicts += task.plannedConflicts
	return nil
}

func (e *Engine) enqueueNewList(ctx context.Context, l *domain.List) error {
	if err := e.queue.Enqueue(ctx, writequeue.SaveList(writequeue.TargetRemote, l)); err != nil {
		return err
	}
	for _, item := range l.Items {
		if err := e.queue.Enqueue(ctx, writequeue.SaveItem(writequeue.TargetRemote, item)); err != nil {
			return err
		}
	}
	return nil
}

// enqueueResolved writes the resolution of a local/remote pair: the chosen
// list as an update, the duplicate (if any) as a fresh save, and each item as
// a save or update depending on whether the destination already holds it.
// Returns the resolution and the number of items written.
func (e *Engine) enqueueResolved(ctx context.Context, local, remote *domain.List, strategy conflict.Strategy) (conflict.ListResolution, int, error) {
	res := conflict.ResolveLists(local, remote, strategy)
	e.logger.Debug("conflict resolved",
		zap.String("list", local.ID),
		zap.String("reason", res.Reason),
	)

	if res.Duplicate != nil {
		if err := e.enqueueNewList(ctx, res.Duplicate); err != nil {
			return res, 0, err
		}
		return res, len(res.Duplicate.Items), nil
	}

	if err := e.queue.Enqueue(ctx, writequeue.UpdateList(writequeue.TargetRemote, res.Chosen)); err != nil {
		return res, 0, err
	}

	existing := make(map[string]bool, len(remote.Items))
	for _, item := range remote.Items {
		existing[item.ID] = true
	}
	for _, item := range res.Chosen.Items {
		op := writequeue.SaveItem(writequeue.TargetRemote, item)
		if existing[item.ID] {
			op = writequeue.UpdateItem(writequeue.TargetRemote, item)
		}
		if err := e.queue.Enqueue(ctx, op); err != nil {
			return res, 0, err
		}
	}
	return res, len(res.Chosen.Items), nil
}
