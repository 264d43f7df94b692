package domain

import (
	"strings"
	"time"
)

// ListEntryStatus tracks whether an appearance is still in the working
// list or has been acted upon.
type ListEntryStatus string

const (
	ListEntryActive   ListEntryStatus = "active"
	ListEntryActioned ListEntryStatus = "actioned"
)

// ListEntry records one appearance of a task in the flat list. A task
// has at most one active entry but keeps every actioned entry as its
// appearance history. TaskID is a weak reference: projection drops
// entries whose task no longer resolves.
type ListEntry struct {
	ID         string
	TaskID     string
	Position   int
	Status     ListEntryStatus
	CreatedAt  time.Time
	ActionedAt *time.Time
}

// NewListEntry returns an active appearance at the given list position.
func NewListEntry(id, taskID string, position int, now time.Time) (ListEntry, error) {
	id = strings.TrimSpace(id)
	taskID = strings.TrimSpace(taskID)
	if id == "" || taskID == "" {
		return ListEntry{}, ErrInvalidID
	}
	return ListEntry{
		ID:        id,
		TaskID:    taskID,
		Position:  position,
		Status:    ListEntryActive,
		CreatedAt: now.UTC(),
	}, nil
}

// MarkActioned retires the appearance. Idempotent.
func (e *ListEntry) MarkActioned(now time.Time) bool {
	if e.Status == ListEntryActioned {
		return false
	}
	ts := now.UTC()
	e.Status = ListEntryActioned
	e.ActionedAt = &ts
	return true
}
