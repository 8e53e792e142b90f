package conflict

import (
	"fmt"
	"time"

	"github.com/N3z3d/prioris-sync/internal/domain"
)

// ListResolution is the outcome of resolving two versions of a list.
type ListResolution struct {
	// Chosen is the version to write to the destination.
	Chosen *domain.List

	// Duplicate, when non-nil, is an additional record to save alongside
	// the remote original (duplicate strategy only).
	Duplicate *domain.List

	// Reason describes the decision for logging.
	Reason string
}

// ItemResolution is the outcome of resolving two versions of an item.
type ItemResolution struct {
	Chosen *domain.Item
	Reason string
}

// ResolveLists resolves a local/remote pair of the same list id.
// Both arguments must be non-nil.
func ResolveLists(local, remote *domain.List, strategy Strategy) ListResolution {
	switch strategy.Normalize() {
	case StrategyKeepLocal:
		return ListResolution{Chosen: local.Clone(), Reason: "keepLocal"}
	case StrategyKeepCloud:
		return ListResolution{Chosen: remote.Clone(), Reason: "keepCloud"}
	case StrategyDuplicate:
		dup := local.WithID(duplicateID(local))
		return ListResolution{Chosen: remote.Clone(), Duplicate: dup, Reason: "duplicate"}
	default:
		return smartMergeLists(local, remote)
	}
}

// ResolveItems resolves a local/remote pair of the same item id.
// Both arguments must be non-nil.
func ResolveItems(local, remote *domain.Item, strategy Strategy) ItemResolution {
	switch strategy.Normalize() {
	case StrategyKeepLocal:
		return ItemResolution{Chosen: local.Clone(), Reason: "keepLocal"}
	case StrategyKeepCloud:
		return ItemResolution{Chosen: remote.Clone(), Reason: "keepCloud"}
	case StrategyDuplicate:
		// Duplication is decided at the list level; item pairs inside a
		// duplicated list never reach the resolver. A stray item pair
		// falls back to keeping the local side.
		return ItemResolution{Chosen: local.Clone(), Reason: "duplicate/keepLocal"}
	default:
		return smartMergeItems(local, remote)
	}
}

// duplicateID derives the clone's id from the local record's most relevant
// timestamp, keeping the resolver deterministic.
func duplicateID(l *domain.List) string {
	return fmt.Sprintf("%s-copy-%d", l.ID, l.RelevantTime().Unix())
}

func smartMergeLists(local, remote *domain.List) ListResolution {
	lt, rt := local.RelevantTime(), remote.RelevantTime()
	if lt.After(rt) {
		return ListResolution{Chosen: local.Clone(), Reason: "smartMerge/localNewer"}
	}
	if rt.After(lt) {
		return ListResolution{Chosen: remote.Clone(), Reason: "smartMerge/remoteNewer"}
	}

	// Exact tie: merge field-by-field, preferring whichever side holds a
	// non-empty value (local wins when both do).
	merged := local.Clone()
	merged.Name = firstNonEmpty(local.Name, remote.Name)
	merged.Description = firstNonEmpty(local.Description, remote.Description)
	if merged.Type == "" {
		merged.Type = remote.Type
	}
	if remote.CreatedAt.Before(merged.CreatedAt) {
		merged.CreatedAt = remote.CreatedAt
	}
	merged.Items = mergeItemSets(local.Items, remote.Items)
	return ListResolution{Chosen: merged, Reason: "smartMerge/tie"}
}

func smartMergeItems(local, remote *domain.Item) ItemResolution {
	lt, rt := local.RelevantTime(), remote.RelevantTime()

	var winner, loser *domain.Item
	reason := "smartMerge/tie"
	switch {
	case lt.After(rt):
		winner, loser, reason = local, remote, "smartMerge/localNewer"
	case rt.After(lt):
		winner, loser, reason = remote, local, "smartMerge/remoteNewer"
	default:
		return ItemResolution{Chosen: mergeItemFields(local, remote), Reason: reason}
	}

	chosen := winner.Clone()
	// Completion never regresses: a newer-but-incomplete version does not
	// un-complete a record the other side finished.
	if loser.IsCompleted && !chosen.IsCompleted {
		chosen.IsCompleted = true
		chosen.CompletedAt = copyTime(loser.CompletedAt)
	}
	return ItemResolution{Chosen: chosen, Reason: reason}
}

// mergeItemFields merges two equally recent items field-by-field: non-empty
// values win (local preferred), priority takes the maximum, completion ORs.
func mergeItemFields(local, remote *domain.Item) *domain.Item {
	merged := local.Clone()
	merged.Title = firstNonEmpty(local.Title, remote.Title)
	merged.Description = firstNonEmpty(local.Description, remote.Description)
	merged.Category = firstNonEmpty(local.Category, remote.Category)
	merged.Notes = firstNonEmpty(local.Notes, remote.Notes)
	if remote.Priority > merged.Priority {
		merged.Priority = remote.Priority
	}
	merged.IsCompleted = local.IsCompleted || remote.IsCompleted
	if merged.IsCompleted && merged.CompletedAt == nil {
		merged.CompletedAt = copyTime(remote.CompletedAt)
	}
	if merged.DueAt == nil {
		merged.DueAt = copyTime(remote.DueAt)
	}
	if merged.LastInteractionAt == nil {
		merged.LastInteractionAt = copyTime(remote.LastInteractionAt)
	}
	if remote.CreatedAt.Before(merged.CreatedAt) {
		merged.CreatedAt = remote.CreatedAt
	}
	return merged
}

// mergeItemSets unions two item slices by id, resolving overlapping ids with
// a smart merge. Local ordering is preserved; remote-only items append in
// their own order.
func mergeItemSets(local, remote []*domain.Item) []*domain.Item {
	seen := make(map[string]*domain.Item, len(remote))
	for _, item := range remote {
		seen[item.ID] = item
	}

	out := make([]*domain.Item, 0, len(local)+len(remote))
	for _, item := range local {
		if counterpart, ok := seen[item.ID]; ok {
			out = append(out, smartMergeItems(item, counterpart).Chosen)
			delete(seen, item.ID)
			continue
		}
		out = append(out, item.Clone())
	}
	for _, item := range remote {
		if _, pending := seen[item.ID]; pending {
			out = append(out, item.Clone())
		}
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
