package writequeue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/N3z3d/prioris-sync/internal/breaker"
	"github.com/N3z3d/prioris-sync/internal/domain"
	"github.com/N3z3d/prioris-sync/internal/observability"
	"github.com/N3z3d/prioris-sync/internal/store"
	"github.com/N3z3d/prioris-sync/internal/store/memory"
)

// recordingAdapter wraps the in-memory store, records the order of write
// calls and can be told to fail the next N writes.
type recordingAdapter struct {
	mu       sync.Mutex
	inner    *memory.Store
	calls    []string
	failures int
}

func newRecordingAdapter() *recordingAdapter {
	return &recordingAdapter{inner: memory.NewStore()}
}

func (a *recordingAdapter) failNext(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = n
}

func (a *recordingAdapter) callLog() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.calls))
	copy(out, a.calls)
	return out
}

func (a *recordingAdapter) record(call string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failures > 0 {
		a.failures--
		return store.Transient(call, fmt.Errorf("injected failure"))
	}
	a.calls = append(a.calls, call)
	return nil
}

func (a *recordingAdapter) GetAllLists(ctx context.Context) ([]*domain.List, error) {
	return a.inner.GetAllLists(ctx)
}

func (a *recordingAdapter) GetListByID(ctx context.Context, id string) (*domain.List, error) {
	return a.inner.GetListByID(ctx, id)
}

func (a *recordingAdapter) SaveList(ctx context.Context, l *domain.List) error {
	if err := a.record("saveList:" + l.ID); err != nil {
		return err
	}
	return a.inner.SaveList(ctx, l)
}

func (a *recordingAdapter) UpdateList(ctx context.Context, l *domain.List) error {
	if err := a.record("updateList:" + l.ID); err != nil {
		return err
	}
	return a.inner.UpdateList(ctx, l)
}

func (a *recordingAdapter) DeleteList(ctx context.Context, id string) error {
	if err := a.record("deleteList:" + id); err != nil {
		return err
	}
	return a.inner.DeleteList(ctx, id)
}

func (a *recordingAdapter) GetItemsByListID(ctx context.Context, listID string) ([]*domain.Item, error) {
	return a.inner.GetItemsByListID(ctx, listID)
}

func (a *recordingAdapter) SaveItem(ctx context.Context, i *domain.Item) error {
	if err := a.record("saveItem:" + i.ID); err != nil {
		return err
	}
	return a.inner.SaveItem(ctx, i)
}

func (a *recordingAdapter) UpdateItem(ctx context.Context, i *domain.Item) error {
	if err := a.record("updateItem:" + i.ID); err != nil {
		return err
	}
	return a.inner.UpdateItem(ctx, i)
}

func (a *recordingAdapter) DeleteItem(ctx context.Context, id string) error {
	if err := a.record("deleteItem:" + id); err != nil {
		return err
	}
	return a.inner.DeleteItem(ctx, id)
}

var _ store.Adapter = (*recordingAdapter)(nil)

func listWithID(id string) *domain.List {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	return &domain.List{ID: id, Name: "list " + id, Type: domain.ListTypeCustom, CreatedAt: now, UpdatedAt: now}
}

func TestExplicitFlushAppliesPendingWrites(t *testing.T) {
	local := newRecordingAdapter()
	remote := newRecordingAdapter()
	q := New(local, remote, Config{FlushDelay: time.Hour}, nil, observability.NopSink{})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, SaveList(TargetLocal, listWithID("l1"))))
	require.NoError(t, q.Enqueue(ctx, SaveList(TargetRemote, listWithID("l1"))))
	assert.Equal(t, 2, q.Pending())

	deferred, err := q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, deferred)
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, []string{"saveList:l1"}, local.callLog())
	assert.Equal(t, []string{"saveList:l1"}, remote.callLog())
}

func TestSizeTriggerFlushes(t *testing.T) {
	local := newRecordingAdapter()
	remote := newRecordingAdapter()
	q := New(local, remote, Config{MaxPending: 3, FlushDelay: time.Hour}, nil, observability.NopSink{})
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		require.NoError(t, q.Enqueue(ctx, SaveList(TargetLocal, listWithID(fmt.Sprintf("l%d", i)))))
	}
	assert.Empty(t, local.callLog())

	require.NoError(t, q.Enqueue(ctx, SaveList(TargetLocal, listWithID("l3"))))
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, []string{"saveList:l1", "saveList:l2", "saveList:l3"}, local.callLog())
}

func TestDelayTriggerFlushes(t *testing.T) {
	local := newRecordingAdapter()
	remote := newRecordingAdapter()
	q := New(local, remote, Config{FlushDelay: 10 * time.Millisecond}, nil, observability.NopSink{})

	require.NoError(t, q.Enqueue(context.Background(), SaveList(TargetLocal, listWithID("l1"))))

	assert.Eventually(t, func() bool {
		return q.Pending() == 0 && len(local.callLog()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFailedFlushReprependsInOrder(t *testing.T) {
	local := newRecordingAdapter()
	remote := newRecordingAdapter()
	q := New(local, remote, Config{FlushDelay: time.Hour}, nil, observability.NopSink{})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, SaveList(TargetLocal, listWithID("o1"))))
	require.NoError(t, q.Enqueue(ctx, SaveList(TargetLocal, listWithID("o2"))))
	require.NoError(t, q.Enqueue(ctx, SaveList(TargetLocal, listWithID("o3"))))

	local.failNext(1)
	_, err := q.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, 3, q.Pending(), "all three operations stay pending after the failed flush")
	assert.Empty(t, local.callLog())

	_, err = q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, []string{"saveList:o1", "saveList:o2", "saveList:o3"}, local.callLog(),
		"retry applies the operations exactly once, in original order")
}

func TestPartialFlushDoesNotReplayAppliedOps(t *testing.T) {
	local := newRecordingAdapter()
	remote := newRecordingAdapter()
	q := New(local, remote, Config{FlushDelay: time.Hour}, nil, observability.NopSink{})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, SaveList(TargetLocal, listWithID("o1"))))
	require.NoError(t, q.Enqueue(ctx, SaveList(TargetRemote, listWithID("o2"))))
	require.NoError(t, q.Enqueue(ctx, SaveList(TargetRemote, listWithID("o3"))))

	// Local group applies, remote group fails at its first op: o2 and o3
	// stay pending, o1 is not replayed on the retry.
	remote.failNext(1)
	_, err := q.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, []string{"saveList:o1"}, local.callLog())
	assert.Equal(t, 2, q.Pending())

	_, err = q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"saveList:o1"}, local.callLog())
	assert.Equal(t, []string{"saveList:o2", "saveList:o3"}, remote.callLog())
	assert.Equal(t, 0, q.Pending())
}

func TestListsFlushBeforeItems(t *testing.T) {
	local := newRecordingAdapter()
	remote := newRecordingAdapter()
	q := New(local, remote, Config{FlushDelay: time.Hour}, nil, observability.NopSink{})
	ctx := context.Background()

	item := domain.NewItem("l1", "task")
	require.NoError(t, q.Enqueue(ctx, SaveItem(TargetLocal, item)))
	require.NoError(t, q.Enqueue(ctx, SaveList(TargetLocal, listWithID("l1"))))

	_, err := q.Flush(ctx)
	require.NoError(t, err)
	log := local.callLog()
	require.Len(t, log, 2)
	assert.Equal(t, "saveList:l1", log[0], "owning list must be written before its items")
	assert.Equal(t, "saveItem:"+item.ID, log[1])
}

func TestUnavailableSessionKeepsRemoteOpsQueued(t *testing.T) {
	local := newRecordingAdapter()
	remote := newRecordingAdapter()
	available := false
	q := New(local, remote, Config{
		FlushDelay: time.Hour,
		Probe:      func() bool { return available },
	}, nil, observability.NopSink{})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, SaveList(TargetLocal, listWithID("l1"))))
	require.NoError(t, q.Enqueue(ctx, SaveList(TargetRemote, listWithID("l1"))))

	deferred, err := q.Flush(ctx)
	require.NoError(t, err, "skipped remote group is not a flush failure")
	assert.Equal(t, 1, deferred, "the remote save is reported as deferred")
	assert.Equal(t, []string{"saveList:l1"}, local.callLog())
	assert.Empty(t, remote.callLog())
	assert.Equal(t, 1, q.Pending())

	available = true
	deferred, err = q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, deferred)
	assert.Equal(t, []string{"saveList:l1"}, remote.callLog())
	assert.Equal(t, 0, q.Pending())
}

func TestOpenBreakerKeepsRemoteOpsQueued(t *testing.T) {
	local := newRecordingAdapter()
	remote := newRecordingAdapter()
	clock := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	brk := breaker.New(breaker.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
		Clock:            func() time.Time { return clock },
	}, nil)
	brk.RecordFailure()
	require.False(t, brk.CanExecute())

	q := New(local, remote, Config{FlushDelay: time.Hour, Breaker: brk}, nil, observability.NopSink{})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, SaveList(TargetRemote, listWithID("l1"))))
	deferred, err := q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deferred)
	assert.Empty(t, remote.callLog())
	assert.Equal(t, 1, q.Pending())

	brk.Reset()
	deferred, err = q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, deferred)
	assert.Equal(t, []string{"saveList:l1"}, remote.callLog())
}

func TestDuplicateSaveRetriesAsUpdate(t *testing.T) {
	local := newRecordingAdapter()
	remote := newRecordingAdapter()
	q := New(local, remote, Config{FlushDelay: time.Hour}, nil, observability.NopSink{})
	ctx := context.Background()

	existing := listWithID("l1")
	require.NoError(t, remote.SaveList(ctx, existing))

	edited := listWithID("l1")
	edited.Name = "edited elsewhere"
	require.NoError(t, q.Enqueue(ctx, SaveList(TargetRemote, edited)))

	_, err := q.Flush(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDuplicateID)
	assert.Equal(t, 1, q.Pending())

	_, err = q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"saveList:l1", "saveList:l1", "updateList:l1"}, remote.callLog())

	got, err := remote.GetListByID(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "edited elsewhere", got.Name)
}

func TestDuplicateSaveDoesNotTripBreaker(t *testing.T) {
	local := newRecordingAdapter()
	remote := newRecordingAdapter()
	brk := breaker.New(breaker.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	}, nil)
	q := New(local, remote, Config{FlushDelay: time.Hour, Breaker: brk}, nil, observability.NopSink{})
	ctx := context.Background()

	require.NoError(t, remote.SaveList(ctx, listWithID("l1")))
	require.NoError(t, q.Enqueue(ctx, SaveList(TargetRemote, listWithID("l1"))))

	_, err := q.Flush(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDuplicateID)
	assert.True(t, brk.CanExecute(), "a duplicate id is a bookkeeping error, not a remote outage")

	_, err = q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, q.Pending())
}

func TestCloseDrainsAndRejectsFurtherWrites(t *testing.T) {
	local := newRecordingAdapter()
	remote := newRecordingAdapter()
	q := New(local, remote, Config{FlushDelay: time.Hour}, nil, observability.NopSink{})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, SaveList(TargetLocal, listWithID("l1"))))
	require.NoError(t, q.Close(ctx))
	assert.Equal(t, []string{"saveList:l1"}, local.callLog())

	err := q.Enqueue(ctx, SaveList(TargetLocal, listWithID("l2")))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseDropsUnflushableOperations(t *testing.T) {
	local := newRecordingAdapter()
	remote := newRecordingAdapter()
	q := New(local, remote, Config{FlushDelay: time.Hour}, nil, observability.NopSink{})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, SaveList(TargetLocal, listWithID("l1"))))
	local.failNext(10)

	err := q.Close(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, q.Pending(), "unflushable operations are dropped on close")
}
