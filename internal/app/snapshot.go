package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/evanschultz/rz/internal/domain"
)

// SnapshotVersion identifies the export format.
const SnapshotVersion = "rz.snapshot.v1"

// Snapshot is the serialized state tree.
type Snapshot struct {
	Version     string                 `json:"version"`
	ExportedAt  time.Time              `json:"exported_at"`
	Tasks       []SnapshotTask         `json:"tasks"`
	ListEntries []SnapshotListEntry    `json:"list_entries"`
	Daily       map[string]SnapshotDay `json:"daily"`
	Settings    SnapshotSettings       `json:"settings"`
	Guide       SnapshotGuide          `json:"guide"`
	Metrics     SnapshotMetrics        `json:"metrics"`
}

// SnapshotTask is one persisted task row.
type SnapshotTask struct {
	ID           string             `json:"id"`
	Text         string             `json:"text"`
	Resistance   *int               `json:"resistance,omitempty"`
	Level        domain.Level       `json:"level"`
	Notes        string             `json:"notes,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
	Status       domain.Status      `json:"status"`
	Marked       bool               `json:"marked"`
	LastMarkedOn string             `json:"last_marked_on,omitempty"`
	Touches      int                `json:"touches"`
	ScanCount    int                `json:"scan_count"`
	MarkedCount  int                `json:"marked_count"`
	Reentries    int                `json:"reentries"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	ArchivedAt   *time.Time         `json:"archived_at,omitempty"`
	TimeLogs     []SnapshotTimeLog  `json:"time_logs,omitempty"`
	TouchLogs    []SnapshotTouchLog `json:"touch_logs,omitempty"`
	ParentID     string             `json:"parent_id,omitempty"`
	ChildIDs     []string           `json:"child_ids,omitempty"`
	IsCollapsed  bool               `json:"is_collapsed,omitempty"`
}

// SnapshotTimeLog is one tracked work interval.
type SnapshotTimeLog struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	DurationMillis int64      `json:"duration_ms"`
	Notes          string     `json:"notes,omitempty"`
}

// SnapshotTouchLog is one audit-trail record.
type SnapshotTouchLog struct {
	Timestamp   time.Time           `json:"timestamp"`
	Context     domain.TouchContext `json:"context"`
	Action      string              `json:"action,omitempty"`
	TouchNumber int                 `json:"touch_number"`
}

// SnapshotListEntry is one persisted appearance row.
type SnapshotListEntry struct {
	ID         string                 `json:"id"`
	TaskID     string                 `json:"task_id"`
	Position   int                    `json:"position"`
	Status     domain.ListEntryStatus `json:"status"`
	CreatedAt  time.Time              `json:"created_at"`
	ActionedAt *time.Time             `json:"actioned_at,omitempty"`
}

// SnapshotDay is one daily aggregate.
type SnapshotDay struct {
	Scans   int     `json:"scans"`
	Marks   int     `json:"marks"`
	Minutes float64 `json:"minutes"`
}

// SnapshotSettings mirrors the persisted preferences.
type SnapshotSettings struct {
	ScanDirection       domain.ScanDirection `json:"scan_direction"`
	Theme               string               `json:"theme"`
	SplitMode           domain.SplitMode     `json:"split_mode"`
	InheritNotesOnSplit bool                 `json:"inherit_notes_on_split"`
}

// SnapshotGuide mirrors the guided-cycle position.
type SnapshotGuide struct {
	Started     bool `json:"started"`
	ActiveIndex int  `json:"active_index"`
}

// SnapshotMetrics mirrors the lifetime counters.
type SnapshotMetrics struct {
	TotalScans int `json:"total_scans"`
}

// ExportSnapshot serializes the whole state tree.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	entries, err := s.repo.ListEntries(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	ledger, err := s.Ledger(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	guide, err := s.GuideProgress(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	metrics, err := s.Metrics(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:     SnapshotVersion,
		ExportedAt:  s.clock().UTC(),
		Tasks:       make([]SnapshotTask, 0, len(tasks)),
		ListEntries: make([]SnapshotListEntry, 0, len(entries)),
		Daily:       make(map[string]SnapshotDay, len(ledger)),
		Settings: SnapshotSettings{
			ScanDirection:       settings.ScanDirection,
			Theme:               settings.Theme,
			SplitMode:           settings.SplitMode,
			InheritNotesOnSplit: settings.InheritNotesOnSplit,
		},
		Guide:   SnapshotGuide{Started: guide.Started, ActiveIndex: guide.ActiveIndex},
		Metrics: SnapshotMetrics{TotalScans: metrics.TotalScans},
	}
	for _, task := range tasks {
		snap.Tasks = append(snap.Tasks, taskToSnapshot(task))
	}
	for _, entry := range entries {
		snap.ListEntries = append(snap.ListEntries, SnapshotListEntry{
			ID:         entry.ID,
			TaskID:     entry.TaskID,
			Position:   entry.Position,
			Status:     entry.Status,
			CreatedAt:  entry.CreatedAt,
			ActionedAt: entry.ActionedAt,
		})
	}
	for day, stats := range ledger {
		snap.Daily[day] = SnapshotDay{Scans: stats.Scans, Marks: stats.Marks, Minutes: stats.Minutes}
	}
	return snap, nil
}

// ImportSnapshot validates the payload fully, then replaces the entire
// state tree. A rejected import leaves the existing state untouched.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	if err := s.repo.Reset(ctx); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	for _, row := range snap.Tasks {
		if err := s.repo.CreateTask(ctx, snapshotToTask(row)); err != nil {
			return fmt.Errorf("import task %q: %w", row.ID, err)
		}
	}
	for _, row := range snap.ListEntries {
		entry := domain.ListEntry{
			ID:         row.ID,
			TaskID:     row.TaskID,
			Position:   row.Position,
			Status:     row.Status,
			CreatedAt:  row.CreatedAt.UTC(),
			ActionedAt: row.ActionedAt,
		}
		if err := s.repo.CreateListEntry(ctx, entry); err != nil {
			return fmt.Errorf("import list entry %q: %w", row.ID, err)
		}
	}
	for day, stats := range snap.Daily {
		if err := s.repo.UpsertDay(ctx, day, domain.DayStats{Scans: stats.Scans, Marks: stats.Marks, Minutes: stats.Minutes}); err != nil {
			return fmt.Errorf("import day %q: %w", day, err)
		}
	}
	settings := domain.NormalizeSettings(domain.Settings{
		ScanDirection:       snap.Settings.ScanDirection,
		Theme:               snap.Settings.Theme,
		SplitMode:           snap.Settings.SplitMode,
		InheritNotesOnSplit: snap.Settings.InheritNotesOnSplit,
	})
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("import settings: %w", err)
	}
	if err := s.repo.SaveGuideProgress(ctx, domain.GuideProgress{Started: snap.Guide.Started, ActiveIndex: snap.Guide.ActiveIndex}); err != nil {
		return fmt.Errorf("import guide progress: %w", err)
	}
	if err := s.repo.SaveMetrics(ctx, domain.Metrics{TotalScans: snap.Metrics.TotalScans}); err != nil {
		return fmt.Errorf("import metrics: %w", err)
	}
	s.scan = nil
	return nil
}

// validateSnapshot runs every structural check before anything is
// written.
func validateSnapshot(snap Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrImportInvalid, snap.Version)
	}
	if snap.Tasks == nil {
		return fmt.Errorf("%w: missing tasks", ErrImportInvalid)
	}

	taskIDs := make(map[string]struct{}, len(snap.Tasks))
	activeByTask := map[string]int{}
	for i, row := range snap.Tasks {
		if strings.TrimSpace(row.ID) == "" {
			return fmt.Errorf("%w: task %d has no id", ErrImportInvalid, i)
		}
		if _, dup := taskIDs[row.ID]; dup {
			return fmt.Errorf("%w: duplicate task id %q", ErrImportInvalid, row.ID)
		}
		taskIDs[row.ID] = struct{}{}
		if strings.TrimSpace(row.Text) == "" {
			return fmt.Errorf("%w: task %q has empty text", ErrImportInvalid, row.ID)
		}
		if !domain.IsValidStatus(row.Status) {
			return fmt.Errorf("%w: task %q has status %q", ErrImportInvalid, row.ID, row.Status)
		}
		if row.Level != "" && !domain.IsValidLevel(row.Level) {
			return fmt.Errorf("%w: task %q has level %q", ErrImportInvalid, row.ID, row.Level)
		}
		if row.Marked && strings.TrimSpace(row.LastMarkedOn) == "" {
			return fmt.Errorf("%w: task %q is marked without a mark date", ErrImportInvalid, row.ID)
		}
	}

	entryIDs := make(map[string]struct{}, len(snap.ListEntries))
	for i, row := range snap.ListEntries {
		if strings.TrimSpace(row.ID) == "" || strings.TrimSpace(row.TaskID) == "" {
			return fmt.Errorf("%w: list entry %d has missing ids", ErrImportInvalid, i)
		}
		if _, dup := entryIDs[row.ID]; dup {
			return fmt.Errorf("%w: duplicate list entry id %q", ErrImportInvalid, row.ID)
		}
		entryIDs[row.ID] = struct{}{}
		switch row.Status {
		case domain.ListEntryActive:
			activeByTask[row.TaskID]++
			if activeByTask[row.TaskID] > 1 {
				return fmt.Errorf("%w: task %q has multiple active list entries", ErrImportInvalid, row.TaskID)
			}
		case domain.ListEntryActioned:
		default:
			return fmt.Errorf("%w: list entry %q has status %q", ErrImportInvalid, row.ID, row.Status)
		}
	}

	for day, stats := range snap.Daily {
		if stats.Scans < 0 || stats.Marks < 0 || stats.Minutes < 0 {
			return fmt.Errorf("%w: negative counters for day %q", ErrImportInvalid, day)
		}
	}
	return nil
}

// taskToSnapshot maps the entity to its persisted row.
func taskToSnapshot(task domain.Task) SnapshotTask {
	row := SnapshotTask{
		ID:           task.ID,
		Text:         task.Text,
		Resistance:   task.Resistance,
		Level:        task.Level,
		Notes:        task.Notes,
		Tags:         task.Tags,
		Status:       task.Status,
		Marked:       task.Marked,
		LastMarkedOn: task.LastMarkedOn,
		Touches:      task.Touches,
		ScanCount:    task.ScanCount,
		MarkedCount:  task.MarkedCount,
		Reentries:    task.Reentries,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
		CompletedAt:  task.CompletedAt,
		ArchivedAt:   task.ArchivedAt,
		ParentID:     task.ParentID,
		ChildIDs:     task.ChildIDs,
		IsCollapsed:  task.IsCollapsed,
	}
	for _, log := range task.TimeLogs {
		row.TimeLogs = append(row.TimeLogs, SnapshotTimeLog{
			ID:             log.ID,
			StartedAt:      log.StartedAt,
			EndedAt:        log.EndedAt,
			DurationMillis: log.Duration.Milliseconds(),
			Notes:          log.Notes,
		})
	}
	for _, log := range task.TouchLogs {
		row.TouchLogs = append(row.TouchLogs, SnapshotTouchLog{
			Timestamp:   log.Timestamp,
			Context:     log.Context,
			Action:      log.Action,
			TouchNumber: log.TouchNumber,
		})
	}
	return row
}

// snapshotToTask maps a persisted row back to the entity.
func snapshotToTask(row SnapshotTask) domain.Task {
	level := row.Level
	if level == "" {
		level = domain.LevelUnspecified
	}
	task := domain.Task{
		ID:           row.ID,
		Text:         row.Text,
		Resistance:   row.Resistance,
		Level:        level,
		Notes:        row.Notes,
		Tags:         row.Tags,
		Status:       row.Status,
		Marked:       row.Marked,
		LastMarkedOn: row.LastMarkedOn,
		Touches:      row.Touches,
		ScanCount:    row.ScanCount,
		MarkedCount:  row.MarkedCount,
		Reentries:    row.Reentries,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		CompletedAt:  row.CompletedAt,
		ArchivedAt:   row.ArchivedAt,
		ParentID:     row.ParentID,
		ChildIDs:     row.ChildIDs,
		IsCollapsed:  row.IsCollapsed,
	}
	for _, log := range row.TimeLogs {
		task.TimeLogs = append(task.TimeLogs, domain.TimeLog{
			ID:        log.ID,
			StartedAt: log.StartedAt.UTC(),
			EndedAt:   log.EndedAt,
			Duration:  time.Duration(log.DurationMillis) * time.Millisecond,
			Notes:     log.Notes,
		})
	}
	for _, log := range row.TouchLogs {
		task.TouchLogs = append(task.TouchLogs, domain.TouchLog{
			Timestamp:   log.Timestamp.UTC(),
			Context:     log.Context,
			Action:      log.Action,
			TouchNumber: log.TouchNumber,
		})
	}
	return task
}
