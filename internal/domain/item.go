package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Item is a single ordered entry belonging to a List.
//
// ListID must reference an existing List at the time of a successful write.
// The engine keeps this best-effort; referential integrity is not enforced
// transactionally across the two stores.
type Item struct {
	ID          string `json:"id"`
	ListID      string `json:"listId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Notes       string `json:"notes,omitempty"`

	// Priority is a numeric score; higher is more important. Merges take
	// the maximum of the two sides.
	Priority float64 `json:"priority"`

	// Completion never regresses across a merge: once completed, a merged
	// record stays completed.
	IsCompleted bool       `json:"isCompleted"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`

	CreatedAt         time.Time  `json:"createdAt"`
	LastInteractionAt *time.Time `json:"lastInteractionAt,omitempty"`
}

// NewItem creates an item with a generated id owned by listID.
func NewItem(listID, title string) *Item {
	return &Item{
		ID:        uuid.NewString(),
		ListID:    listID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the structural invariants of the item.
func (i *Item) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("item id must not be empty")
	}
	if strings.TrimSpace(i.ListID) == "" {
		return fmt.Errorf("item %s: owning list id must not be empty", i.ID)
	}
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("item %s: title must not be empty", i.ID)
	}
	if i.IsCompleted && i.CompletedAt == nil {
		return fmt.Errorf("item %s: completed without completion timestamp", i.ID)
	}
	return nil
}

// RelevantTime is the timestamp conflict resolution compares for items:
// completion time, else last interaction, else creation.
func (i *Item) RelevantTime() time.Time {
	if i.CompletedAt != nil {
		return *i.CompletedAt
	}
	if i.LastInteractionAt != nil {
		return *i.LastInteractionAt
	}
	return i.CreatedAt
}

// Complete returns a copy marked completed at the given time.
func (i *Item) Complete(at time.Time) *Item {
	c := i.Clone()
	at = at.UTC()
	c.IsCompleted = true
	c.CompletedAt = &at
	return c
}

// Clone copies the item, including its optional timestamps.
func (i *Item) Clone() *Item {
	c := *i
	c.CompletedAt = cloneTime(i.CompletedAt)
	c.DueAt = cloneTime(i.DueAt)
	c.LastInteractionAt = cloneTime(i.LastInteractionAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
