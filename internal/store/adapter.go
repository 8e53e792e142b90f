// Package store defines the capability contract the sync engine consumes for
// both the local and the remote record store. The engine never implements a
// concrete backend; it is handed two Adapter values by the caller and treats
// them as stateless capability providers.
package store

import (
	"context"

	"github.com/N3z3d/prioris-sync/internal/domain"
)

// Adapter is the narrow CRUD contract implemented once for the local store
// and once for the remote store.
//
// Save operations must fail with ErrDuplicateID when the id already exists;
// silently overwriting an existing record is a contract violation. Update
// operations must fail with ErrNotFound for unknown ids.
type Adapter interface {
	GetAllLists(ctx context.Context) ([]*domain.List, error)
	GetListByID(ctx context.Context, id string) (*domain.List, error)
	SaveList(ctx context.Context, list *domain.List) error
	UpdateList(ctx context.Context, list *domain.List) error
	DeleteList(ctx context.Context, id string) error

	GetItemsByListID(ctx context.Context, listID string) ([]*domain.Item, error)
	SaveItem(ctx context.Context, item *domain.Item) error
	UpdateItem(ctx context.Context, item *domain.Item) error
	DeleteItem(ctx context.Context, id string) error
}

// SessionProbe reports whether the remote session is currently usable.
// When it returns false, remote-bound batch flushes are skipped rather than
// attempted and failed.
type SessionProbe func() bool

// AlwaysAvailable is the probe used when the caller supplies none.
func AlwaysAvailable() bool { return true }
