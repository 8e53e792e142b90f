// Package memory provides a mutex-guarded in-memory implementation of the
// store Adapter contract. It backs the local store in tests and small
// deployments and doubles as the reference adapter implementation.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/N3z3d/prioris-sync/internal/domain"
	"github.com/N3z3d/prioris-sync/internal/store"
)

// Store is an in-memory Adapter. The zero value is not usable; construct
// with NewStore.
type Store struct {
	mu    sync.RWMutex
	lists map[string]*domain.List
	items map[string]*domain.Item // keyed by item id

	// itemOrder preserves insertion order per list so GetItemsByListID is
	// deterministic.
	itemOrder map[string][]string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		lists:     make(map[string]*domain.List),
		items:     make(map[string]*domain.Item),
		itemOrder: make(map[string][]string),
	}
}

var _ store.Adapter = (*Store)(nil)

// GetAllLists returns every stored list, ordered by id for determinism.
// Items are not attached; callers fetch them via GetItemsByListID.
func (s *Store) GetAllLists(ctx context.Context) ([]*domain.List, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.List, 0, len(s.lists))
	for _, l := range s.lists {
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetListByID returns the list or ErrNotFound.
func (s *Store) GetListByID(ctx context.Context, id string) (*domain.List, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lists[id]
	if !ok {
		return nil, store.NotFound("list", id)
	}
	return l.Clone(), nil
}

// SaveList stores a new list, rejecting duplicate ids.
func (s *Store) SaveList(ctx context.Context, list *domain.List) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := list.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lists[list.ID]; exists {
		return store.DuplicateID("list", list.ID)
	}
	s.lists[list.ID] = list.Clone()
	return nil
}

// UpdateList replaces an existing list.
func (s *Store) UpdateList(ctx context.Context, list *domain.List) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := list.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lists[list.ID]; !exists {
		return store.NotFound("list", list.ID)
	}
	s.lists[list.ID] = list.Clone()
	return nil
}

// DeleteList removes a list and all of its items.
func (s *Store) DeleteList(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lists[id]; !exists {
		return store.NotFound("list", id)
	}
	delete(s.lists, id)
	for _, itemID := range s.itemOrder[id] {
		delete(s.items, itemID)
	}
	delete(s.itemOrder, id)
	return nil
}

// GetItemsByListID returns the list's items in insertion order.
func (s *Store) GetItemsByListID(ctx context.Context, listID string) ([]*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.itemOrder[listID]
	out := make([]*domain.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out = append(out, item.Clone())
		}
	}
	return out, nil
}

// SaveItem stores a new item, rejecting duplicate ids. The owning list must
// already exist.
func (s *Store) SaveItem(ctx context.Context, item *domain.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := item.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return store.DuplicateID("item", item.ID)
	}
	if _, exists := s.lists[item.ListID]; !exists {
		return store.NotFound("list", item.ListID)
	}
	s.items[item.ID] = item.Clone()
	s.itemOrder[item.ListID] = append(s.itemOrder[item.ListID], item.ID)
	return nil
}

// UpdateItem replaces an existing item.
func (s *Store) UpdateItem(ctx context.Context, item *domain.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := item.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.items[item.ID]
	if !exists {
		return store.NotFound("item", item.ID)
	}
	if prev.ListID != item.ListID {
		// Re-parenting moves the item to the end of the new list.
		s.itemOrder[prev.ListID] = removeID(s.itemOrder[prev.ListID], item.ID)
		s.itemOrder[item.ListID] = append(s.itemOrder[item.ListID], item.ID)
	}
	s.items[item.ID] = item.Clone()
	return nil
}

// DeleteItem removes an item by id.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[id]
	if !exists {
		return store.NotFound("item", id)
	}
	delete(s.items, id)
	s.itemOrder[item.ListID] = removeID(s.itemOrder[item.ListID], id)
	return nil
}

// Len reports the stored list and item counts. Test helper.
func (s *Store) Len() (lists, items int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lists), len(s.items)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
