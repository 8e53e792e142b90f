package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/N3z3d/prioris-sync/internal/config"
	"github.com/N3z3d/prioris-sync/internal/domain"
	"github.com/N3z3d/prioris-sync/internal/observability"
	"github.com/N3z3d/prioris-sync/internal/store"
	"github.com/N3z3d/prioris-sync/internal/syncerr"
)

// SyncList pushes a single local list and its items to the remote store,
// resolving against the remote version with exactly the same strategy code
// the full migration uses. It returns the version now standing on the remote
// side.
func (e *Engine) SyncList(ctx context.Context, listID string, cfg config.Config) (*domain.List, error) {
	if e.isDisposed() {
		return nil, ErrDisposed
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	local, err := e.local.GetListByID(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("read local list %s: %w", listID, err)
	}
	items, err := e.readItems(ctx, e.local, e.localCache, listID)
	if err != nil {
		return nil, fmt.Errorf("read local items of %s: %w", listID, err)
	}
	local = local.Clone()
	local.Items = items

	remote, err := e.remote.GetListByID(ctx, listID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("read remote list %s: %w", listID, err)
	}

	chosen := local
	if remote == nil || errors.Is(err, store.ErrNotFound) {
		if err := e.enqueueNewList(ctx, local); err != nil {
			return nil, err
		}
	} else {
		remoteItems, err := e.readItems(ctx, e.remote, e.remoteCache, listID)
		if err != nil {
			return nil, fmt.Errorf("read remote items of %s: %w", listID, err)
		}
		remote = remote.Clone()
		remote.Items = remoteItems

		res, _, err := e.enqueueResolved(ctx, local, remote, cfg.ConflictStrategy)
		if err != nil {
			return nil, err
		}
		e.sink.Add(observability.MetricSyncConflicts, 1)
		if res.Duplicate != nil {
			chosen = res.Duplicate
		} else {
			chosen = res.Chosen
		}
	}

	deferred, err := e.flushConverging(ctx)
	if err != nil {
		return nil, err
	}
	if deferred > 0 {
		return nil, syncerr.Unavailable("REMOTE_UNAVAILABLE", "remote writes deferred until the session recovers").
			WithOperation("sync.list")
	}
	e.localCache.Invalidate(listID)
	e.remoteCache.Invalidate(listID)

	e.logger.Debug("list synchronized", zap.String("list", listID))
	return chosen, nil
}
