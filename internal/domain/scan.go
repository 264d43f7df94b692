package domain

import (
	"slices"
	"time"
)

// ScanDirection selects which end of the list a pass starts from.
type ScanDirection string

const (
	ScanForward  ScanDirection = "forward"
	ScanBackward ScanDirection = "backward"
)

// RecentRingCapacity bounds the undo-lite ring of recently scanned
// tasks.
const RecentRingCapacity = 8

// ScanSession is one ephemeral pass over a snapshot of the active list.
// Order is frozen at begin time: tasks created mid-scan are never
// visited, and ids that stop resolving are skipped during advance.
// Sessions live in memory only and do not survive a restart.
type ScanSession struct {
	Order     []string
	Index     int
	Direction ScanDirection
	StartedAt time.Time
	Recent    []string
}

// NewScanSession snapshots the given task ids, reversing them for a
// backward pass.
func NewScanSession(order []string, direction ScanDirection, now time.Time) (*ScanSession, error) {
	if direction != ScanForward && direction != ScanBackward {
		return nil, ErrInvalidDirection
	}
	if len(order) == 0 {
		return nil, ErrEmptyScan
	}
	snapshot := slices.Clone(order)
	if direction == ScanBackward {
		slices.Reverse(snapshot)
	}
	return &ScanSession{
		Order:     snapshot,
		Direction: direction,
		StartedAt: now.UTC(),
	}, nil
}

// Current returns the task id under the cursor, or false when the pass
// is finished.
func (s *ScanSession) Current() (string, bool) {
	if s.Done() {
		return "", false
	}
	return s.Order[s.Index], true
}

// Skip advances the cursor without recording anything. Used when the
// snapshot references a task that is gone or no longer active.
func (s *ScanSession) Skip() {
	if !s.Done() {
		s.Index++
	}
}

// PushRecent appends an id to the bounded recent ring, dropping the
// oldest entry beyond capacity.
func (s *ScanSession) PushRecent(id string) {
	s.Recent = append(s.Recent, id)
	if len(s.Recent) > RecentRingCapacity {
		s.Recent = s.Recent[len(s.Recent)-RecentRingCapacity:]
	}
}

// InRecent reports whether the id is still inside the correction ring.
func (s *ScanSession) InRecent(id string) bool {
	return slices.Contains(s.Recent, id)
}

// Done reports whether the cursor has passed the end of the snapshot.
func (s *ScanSession) Done() bool {
	return s.Index >= len(s.Order)
}

// Progress returns the 1-based position and snapshot length for
// display.
func (s *ScanSession) Progress() (int, int) {
	position := s.Index + 1
	if position > len(s.Order) {
		position = len(s.Order)
	}
	return position, len(s.Order)
}

// IsValidScanDirection reports whether the direction is canonical.
func IsValidScanDirection(direction ScanDirection) bool {
	return direction == ScanForward || direction == ScanBackward
}
