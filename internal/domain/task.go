package domain

import (
	"slices"
	"strings"
	"time"
)

// Status represents a task's lifecycle state. Completed, archived, and
// replaced are terminal; re-entry creates a new list entry, never a new
// lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
	StatusReplaced  Status = "replaced"
)

var validStatuses = []Status{StatusActive, StatusCompleted, StatusArchived, StatusReplaced}

// Level tags a task's granularity in the method's vocabulary.
type Level string

const (
	LevelUnspecified Level = "unspecified"
	LevelProject     Level = "project"
	LevelStep        Level = "step"
	LevelMeta        Level = "meta"
)

var validLevels = []Level{LevelUnspecified, LevelProject, LevelStep, LevelMeta}

// TouchContext classifies where a touch originated.
type TouchContext string

const (
	TouchContextScan        TouchContext = "scan"
	TouchContextAction      TouchContext = "action"
	TouchContextMaintenance TouchContext = "maintenance"
)

// Touch actions recorded in the audit trail.
const (
	TouchActionMark = "mark"
	TouchActionSkip = "skip"
)

// MaxResistance bounds the user-assigned resistance estimate.
const MaxResistance = 10

// TouchLog is one append-only audit record of a task examination.
type TouchLog struct {
	Timestamp   time.Time    `json:"timestamp"`
	Context     TouchContext `json:"context"`
	Action      string       `json:"action,omitempty"`
	TouchNumber int          `json:"touch_number"`
}

// TimeLog is one tracked work interval. EndedAt is nil while the timer
// runs; Duration is set when it stops.
type TimeLog struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Duration  time.Duration `json:"duration"`
	Notes     string        `json:"notes,omitempty"`
}

// Task is the unit of work. At most one TimeLog per task may be open.
type Task struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	Resistance   *int       `json:"resistance,omitempty"`
	Level        Level      `json:"level"`
	Notes        string     `json:"notes,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Status       Status     `json:"status"`
	Marked       bool       `json:"marked"`
	LastMarkedOn string     `json:"last_marked_on,omitempty"`
	Touches      int        `json:"touches"`
	ScanCount    int        `json:"scan_count"`
	MarkedCount  int        `json:"marked_count"`
	Reentries    int        `json:"reentries"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
	TimeLogs     []TimeLog  `json:"time_logs,omitempty"`
	TouchLogs    []TouchLog `json:"touch_logs,omitempty"`
	ParentID     string     `json:"parent_id,omitempty"`
	ChildIDs     []string   `json:"child_ids,omitempty"`
	IsCollapsed  bool       `json:"is_collapsed,omitempty"`
}

// TaskInput carries caller-supplied fields for NewTask.
type TaskInput struct {
	ID         string
	Text       string
	Resistance *int
	Level      Level
	Notes      string
	Tags       []string
	ParentID   string
}

// NewTask validates input and returns an active task with zeroed counters.
func NewTask(in TaskInput, now time.Time) (Task, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Text = strings.TrimSpace(in.Text)
	in.Notes = strings.TrimSpace(in.Notes)
	in.ParentID = strings.TrimSpace(in.ParentID)

	if in.ID == "" {
		return Task{}, ErrInvalidID
	}
	if in.Text == "" {
		return Task{}, ErrEmptyText
	}
	if in.Level == "" {
		in.Level = LevelUnspecified
	}
	if !slices.Contains(validLevels, in.Level) {
		return Task{}, ErrInvalidLevel
	}
	resistance, err := normalizeResistance(in.Resistance)
	if err != nil {
		return Task{}, err
	}

	ts := now.UTC()
	return Task{
		ID:         in.ID,
		Text:       in.Text,
		Resistance: resistance,
		Level:      in.Level,
		Notes:      in.Notes,
		Tags:       normalizeTags(in.Tags),
		Status:     StatusActive,
		CreatedAt:  ts,
		UpdatedAt:  ts,
		ParentID:   in.ParentID,
	}, nil
}

// Touch records one examination: bumps touches (and scanCount for scan
// touches), appends to the audit trail, and melts one point of
// resistance. Touching a task never fails.
func (t *Task) Touch(context TouchContext, action string, now time.Time) {
	ts := now.UTC()
	t.Touches++
	t.UpdatedAt = ts
	t.TouchLogs = append(t.TouchLogs, TouchLog{
		Timestamp:   ts,
		Context:     context,
		Action:      action,
		TouchNumber: t.Touches,
	})
	if context == TouchContextScan {
		t.ScanCount++
	}
	if t.Resistance != nil && *t.Resistance > 0 {
		r := *t.Resistance - 1
		t.Resistance = &r
	}
}

// Mark dots the task for the given day. Idempotent: marking a marked
// task reports false and changes nothing.
func (t *Task) Mark(day string, now time.Time) bool {
	if t.Marked {
		return false
	}
	t.Marked = true
	t.LastMarkedOn = day
	t.MarkedCount++
	t.UpdatedAt = now.UTC()
	return true
}

// Unmark clears the dot and reports the day it was marked on so the
// caller can reconcile same-day statistics. Idempotent.
func (t *Task) Unmark(now time.Time) (markedOn string, changed bool) {
	if !t.Marked {
		return "", false
	}
	markedOn = t.LastMarkedOn
	t.Marked = false
	t.LastMarkedOn = ""
	t.UpdatedAt = now.UTC()
	return markedOn, true
}

// Reenter counts one explicit return to the end of the list.
func (t *Task) Reenter(now time.Time) {
	t.Reentries++
	t.UpdatedAt = now.UTC()
}

// Complete transitions active -> completed. Reports false from any
// other state.
func (t *Task) Complete(now time.Time) bool {
	if t.Status != StatusActive {
		return false
	}
	ts := now.UTC()
	t.Status = StatusCompleted
	t.CompletedAt = &ts
	t.UpdatedAt = ts
	return true
}

// Archive transitions active -> archived. Reports false from any other
// state.
func (t *Task) Archive(now time.Time) bool {
	if t.Status != StatusActive {
		return false
	}
	ts := now.UTC()
	t.Status = StatusArchived
	t.ArchivedAt = &ts
	t.UpdatedAt = ts
	return true
}

// Replace transitions active -> replaced as part of a replace-mode
// split. The archive timestamp doubles as the retirement time.
func (t *Task) Replace(now time.Time) bool {
	if t.Status != StatusActive {
		return false
	}
	ts := now.UTC()
	t.Status = StatusReplaced
	t.ArchivedAt = &ts
	t.UpdatedAt = ts
	return true
}

// UpdateDetails edits the user-facing content fields.
func (t *Task) UpdateDetails(text, notes string, resistance *int, level Level, tags []string, now time.Time) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	if level == "" {
		level = t.Level
	}
	if !slices.Contains(validLevels, level) {
		return ErrInvalidLevel
	}
	normalized, err := normalizeResistance(resistance)
	if err != nil {
		return err
	}
	t.Text = text
	t.Notes = strings.TrimSpace(notes)
	t.Resistance = normalized
	t.Level = level
	t.Tags = normalizeTags(tags)
	t.UpdatedAt = now.UTC()
	return nil
}

// OpenTimer returns the index of the running time log, or -1.
func (t *Task) OpenTimer() int {
	for i := range t.TimeLogs {
		if t.TimeLogs[i].EndedAt == nil {
			return i
		}
	}
	return -1
}

// StartTimer opens a new time log. Reports false when one is already
// running; a task carries at most one open interval.
func (t *Task) StartTimer(id string, now time.Time) bool {
	if t.OpenTimer() >= 0 {
		return false
	}
	t.TimeLogs = append(t.TimeLogs, TimeLog{
		ID:        strings.TrimSpace(id),
		StartedAt: now.UTC(),
	})
	t.UpdatedAt = now.UTC()
	return true
}

// StopTimer closes the running time log and returns it. Reports false
// when no timer is running.
func (t *Task) StopTimer(now time.Time) (TimeLog, bool) {
	idx := t.OpenTimer()
	if idx < 0 {
		return TimeLog{}, false
	}
	ts := now.UTC()
	t.TimeLogs[idx].EndedAt = &ts
	t.TimeLogs[idx].Duration = ts.Sub(t.TimeLogs[idx].StartedAt)
	t.UpdatedAt = ts
	return t.TimeLogs[idx], true
}

// LoggedMinutes sums the closed time logs.
func (t *Task) LoggedMinutes() float64 {
	var total float64
	for _, log := range t.TimeLogs {
		if log.EndedAt == nil {
			continue
		}
		total += log.Duration.Minutes()
	}
	return total
}

// IsValidStatus reports whether the status is canonical.
func IsValidStatus(status Status) bool {
	return slices.Contains(validStatuses, status)
}

// IsValidLevel reports whether the level is canonical.
func IsValidLevel(level Level) bool {
	return slices.Contains(validLevels, level)
}

// normalizeResistance bounds resistance to [0, MaxResistance].
func normalizeResistance(resistance *int) (*int, error) {
	if resistance == nil {
		return nil, nil
	}
	if *resistance < 0 || *resistance > MaxResistance {
		return nil, ErrInvalidResistance
	}
	r := *resistance
	return &r, nil
}

// normalizeTags trims and de-duplicates tags, preserving insertion order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
