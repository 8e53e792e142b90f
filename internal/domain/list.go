// Package domain defines the record model shared by every part of the sync
// engine: a List is a named, ordered collection of Items. Records are plain
// value types; the engine treats them as immutable and produces modified
// copies instead of mutating shared state.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ListType categorizes a list. Free-form values are accepted as long as they
// are non-empty; the named constants cover the built-in categories.
type ListType string

const (
	ListTypeCustom   ListType = "custom"
	ListTypeWork     ListType = "work"
	ListTypePersonal ListType = "personal"
	ListTypeShopping ListType = "shopping"
	ListTypeProject  ListType = "project"
)

// List is the parent record of the two-level hierarchy.
//
// Invariants: ID is immutable once created and UpdatedAt >= CreatedAt.
type List struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        ListType `json:"type"`
	Description string   `json:"description,omitempty"`

	// Items are ordered by insertion. The slice is owned by the List;
	// callers needing an independent copy use Clone.
	Items []*Item `json:"items,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewList creates a list with a generated id and both timestamps set to now.
func NewList(name string, listType ListType) *List {
	now := time.Now().UTC()
	return &List{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      listType,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the structural invariants of the list.
func (l *List) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("list id must not be empty")
	}
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("list %s: name must not be empty", l.ID)
	}
	if l.Type == "" {
		return fmt.Errorf("list %s: type must not be empty", l.ID)
	}
	if l.UpdatedAt.Before(l.CreatedAt) {
		return fmt.Errorf("list %s: updatedAt %v precedes createdAt %v", l.ID, l.UpdatedAt, l.CreatedAt)
	}
	for _, item := range l.Items {
		if err := item.Validate(); err != nil {
			return err
		}
		if item.ListID != l.ID {
			return fmt.Errorf("item %s: owning list id %q does not match list %q", item.ID, item.ListID, l.ID)
		}
	}
	return nil
}

// RelevantTime is the timestamp conflict resolution compares for lists.
func (l *List) RelevantTime() time.Time {
	return l.UpdatedAt
}

// Touch returns a copy with UpdatedAt advanced to now.
func (l *List) Touch(now time.Time) *List {
	c := l.Clone()
	c.UpdatedAt = now.UTC()
	return c
}

// Clone deep-copies the list and its items.
func (l *List) Clone() *List {
	c := *l
	if l.Items != nil {
		c.Items = make([]*Item, len(l.Items))
		for i, item := range l.Items {
			c.Items[i] = item.Clone()
		}
	}
	return &c
}

// WithID returns a deep copy re-keyed under newID. Item ownership references
// follow the new id. Used by the duplicate conflict strategy so both sides of
// a conflict survive as distinct records.
func (l *List) WithID(newID string) *List {
	c := l.Clone()
	c.ID = newID
	for _, item := range c.Items {
		item.ListID = newID
	}
	return c
}

// ItemCount returns the number of items in the list.
func (l *List) ItemCount() int {
	return len(l.Items)
}
