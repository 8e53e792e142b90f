package engine

import (
	"time"

	"github.com/N3z3d/prioris-sync/internal/config"
	"github.com/N3z3d/prioris-sync/internal/domain"
)

// SyncTask is one unit of work: a contiguous batch of lists, the remote
// snapshot it resolves against, and the configuration active when the task
// was created. Workers consume tasks; transient failures re-enqueue the task
// with an incremented Attempt until Config.MaxRetries is exhausted.
type SyncTask struct {
	Batch          []*domain.List
	RemoteSnapshot map[string]*domain.List
	Config         config.Config

	// Priority is the unix timestamp of the most recently updated list in
	// the batch. Dispatch is FIFO; the field exists for future reordering.
	Priority int64

	// Attempt counts executions so far, zero on first dispatch.
	Attempt int

	// A failed flush keeps this task's operations queued, so a retry must
	// flush again rather than enqueue a second copy. These fields carry
	// the enqueue state and the counts to credit once a flush lands.
	enqueued         bool
	deletesEnqueued  bool
	plannedLists     int
	plannedItems     int
	plannedConflicts int
}

// Result aggregates a whole migration run. Skipped counts cover lists whose
// remote writes were deferred by an unavailable session or an open breaker;
// their local copies are left untouched.
type Result struct {
	MigratedLists int
	MigratedItems int
	SkippedLists  int
	SkippedItems  int
	Conflicts     int
	Errors        int
	ErrorDetails  []string
	Elapsed       time.Duration
	Stats         map[string]any
}

// tally accumulates per-worker counts; merged under the engine's result
// mutex during aggregation.
type tally struct {
	lists        int
	items        int
	skippedLists int
	skippedItems int
	conflicts    int
	errors       int
	details      []string
	tasks        int
	retried      int
}

func (t *tally) merge(o tally) {
	t.lists += o.lists
	t.items += o.items
	t.skippedLists += o.skippedLists
	t.skippedItems += o.skippedItems
	t.conflicts += o.conflicts
	t.errors += o.errors
	t.details = append(t.details, o.details...)
	t.tasks += o.tasks
	t.retried += o.retried
}
