package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/evanschultz/rz/internal/domain"
)

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	Defaults domain.Settings
}

// Service is the task store: the single owner of every mutation over
// tasks, list entries, the daily ledger, and the in-memory scan
// session. Operations referencing an id that no longer resolves are
// silent no-ops returning a zero task — the presentation layer may
// race against its own snapshots and must never crash on a stale id.
type Service struct {
	repo     Repository
	idGen    IDGenerator
	clock    Clock
	defaults domain.Settings
	scan     *domain.ScanSession
}

// NewService constructs the task store.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:     repo,
		idGen:    idGen,
		clock:    clock,
		defaults: domain.NormalizeSettings(cfg.Defaults),
	}
}

// CreateTaskInput holds caller-supplied fields for create task.
type CreateTaskInput struct {
	Text       string
	Resistance *int
	Level      domain.Level
	Notes      string
	Tags       []string
	ParentID   string
}

// CreateTask appends an active task and its first list entry at the
// end of the working list.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (domain.Task, error) {
	now := s.clock()
	task, err := domain.NewTask(domain.TaskInput{
		ID:         s.idGen(),
		Text:       in.Text,
		Resistance: in.Resistance,
		Level:      in.Level,
		Notes:      in.Notes,
		Tags:       in.Tags,
		ParentID:   strings.TrimSpace(in.ParentID),
	}, now)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	if err := s.appendListEntry(ctx, task.ID, now); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// GetTask returns one task or ErrNotFound.
func (s *Service) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	return s.repo.GetTask(ctx, taskID)
}

// ListTasks returns every task in creation order.
func (s *Service) ListTasks(ctx context.Context) ([]domain.Task, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(tasks, func(a, b domain.Task) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return tasks, nil
}

// VisibleTasks returns the working-list projection: active entries
// resolved in order, dangling references dropped, collapsed subtrees
// hidden.
func (s *Service) VisibleTasks(ctx context.Context) ([]domain.Task, error) {
	entries, err := s.repo.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	taskMap, err := s.taskMap(ctx)
	if err != nil {
		return nil, err
	}
	return domain.ProjectList(entries, taskMap), nil
}

// Touch records one examination of a task in the given context. An
// unknown id is tolerated silently: scan snapshots go stale.
func (s *Service) Touch(ctx context.Context, taskID string, touchContext domain.TouchContext, action string) (domain.Task, error) {
	task, ok, err := s.lookup(ctx, taskID)
	if err != nil || !ok {
		return domain.Task{}, err
	}
	task.Touch(touchContext, action, s.clock())
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("touch task: %w", err)
	}
	return task, nil
}

// Mark dots a task and bumps today's mark count. Idempotent.
func (s *Service) Mark(ctx context.Context, taskID string) (domain.Task, error) {
	task, ok, err := s.lookup(ctx, taskID)
	if err != nil || !ok {
		return domain.Task{}, err
	}
	now := s.clock()
	if task.Mark(domain.DayKey(now), now) {
		if err := s.bumpDay(ctx, domain.DayKey(now), domain.StatMarks, true); err != nil {
			return domain.Task{}, err
		}
	}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("mark task: %w", err)
	}
	return task, nil
}

// Unmark clears a dot. A mark placed today is taken back from today's
// count; marks from prior days are never retroactively decremented.
func (s *Service) Unmark(ctx context.Context, taskID string) (domain.Task, error) {
	task, ok, err := s.lookup(ctx, taskID)
	if err != nil || !ok {
		return domain.Task{}, err
	}
	if err := s.unmarkWithLedger(ctx, &task); err != nil {
		return domain.Task{}, err
	}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("unmark task: %w", err)
	}
	return task, nil
}

// Reenter returns a partially-worked task to the end of the list: the
// dot clears, the reentry counter bumps, the current appearance is
// actioned, and a fresh entry is appended.
func (s *Service) Reenter(ctx context.Context, taskID string) (domain.Task, error) {
	task, ok, err := s.lookup(ctx, taskID)
	if err != nil || !ok {
		return domain.Task{}, err
	}
	if task.Status != domain.StatusActive {
		return task, nil
	}
	now := s.clock()
	if err := s.unmarkWithLedger(ctx, &task); err != nil {
		return domain.Task{}, err
	}
	task.Reenter(now)
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("reenter task: %w", err)
	}
	if err := s.actionActiveEntry(ctx, task.ID, now); err != nil {
		return domain.Task{}, err
	}
	if err := s.appendListEntry(ctx, task.ID, now); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// Complete finishes a task: any running timer stops and logs its
// minutes, the dot clears, and the active appearance is actioned.
func (s *Service) Complete(ctx context.Context, taskID string) (domain.Task, error) {
	return s.finish(ctx, taskID, func(task *domain.Task, now time.Time) bool {
		return task.Complete(now)
	})
}

// Archive retires a task the same way Complete does, with the archived
// status instead.
func (s *Service) Archive(ctx context.Context, taskID string) (domain.Task, error) {
	return s.finish(ctx, taskID, func(task *domain.Task, now time.Time) bool {
		return task.Archive(now)
	})
}

// finish runs the shared terminal-transition flow.
func (s *Service) finish(ctx context.Context, taskID string, transition func(*domain.Task, time.Time) bool) (domain.Task, error) {
	task, ok, err := s.lookup(ctx, taskID)
	if err != nil || !ok {
		return domain.Task{}, err
	}
	now := s.clock()
	if err := s.stopTimerWithLedger(ctx, &task, now); err != nil {
		return domain.Task{}, err
	}
	if err := s.unmarkWithLedger(ctx, &task); err != nil {
		return domain.Task{}, err
	}
	if !transition(&task, now) {
		return task, nil
	}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("finish task: %w", err)
	}
	if err := s.actionActiveEntry(ctx, task.ID, now); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// ToggleCollapse flips whether a parent's children appear in the
// visible projection.
func (s *Service) ToggleCollapse(ctx context.Context, taskID string) (domain.Task, error) {
	task, ok, err := s.lookup(ctx, taskID)
	if err != nil || !ok {
		return domain.Task{}, err
	}
	task.IsCollapsed = !task.IsCollapsed
	task.UpdatedAt = s.clock().UTC()
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("toggle collapse: %w", err)
	}
	return task, nil
}

// UpdateTaskInput holds editable content fields.
type UpdateTaskInput struct {
	TaskID     string
	Text       string
	Notes      string
	Resistance *int
	Level      domain.Level
	Tags       []string
}

// UpdateTask edits a task's content fields.
func (s *Service) UpdateTask(ctx context.Context, in UpdateTaskInput) (domain.Task, error) {
	task, err := s.repo.GetTask(ctx, in.TaskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := task.UpdateDetails(in.Text, in.Notes, in.Resistance, in.Level, in.Tags, s.clock()); err != nil {
		return domain.Task{}, err
	}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

// StartTimer opens a work interval on the task. A second start while
// one runs is a no-op.
func (s *Service) StartTimer(ctx context.Context, taskID string) (domain.Task, error) {
	task, ok, err := s.lookup(ctx, taskID)
	if err != nil || !ok {
		return domain.Task{}, err
	}
	if !task.StartTimer(s.idGen(), s.clock()) {
		return task, nil
	}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("start timer: %w", err)
	}
	return task, nil
}

// StopTimer closes the running interval and credits its minutes to
// today's ledger. A stop with no open interval is a no-op.
func (s *Service) StopTimer(ctx context.Context, taskID string) (domain.Task, error) {
	task, ok, err := s.lookup(ctx, taskID)
	if err != nil || !ok {
		return domain.Task{}, err
	}
	changed, err := s.stopTimerLedger(ctx, &task, s.clock())
	if err != nil {
		return domain.Task{}, err
	}
	if !changed {
		return task, nil
	}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("stop timer: %w", err)
	}
	return task, nil
}

// SplitInput holds the arguments of a split operation.
type SplitInput struct {
	TaskID       string
	Lines        []string
	Mode         domain.SplitMode
	InheritNotes bool
}

// SplitResult reports the updated parent and the created children.
type SplitResult struct {
	Parent   domain.Task   `json:"parent"`
	Children []domain.Task `json:"children"`
}

// Split breaks a task into new tasks, one per non-blank line. Children
// inherit resistance and tags (and notes when requested); a project
// parent yields step children. The mode decides the parent's fate:
// replace retires it as replaced, keep turns it into a containing
// project, archive retires it as archived. All-blank input changes
// nothing and reports ErrEmptySplit so the caller can treat it as a
// cancelled dialog.
func (s *Service) Split(ctx context.Context, in SplitInput) (SplitResult, error) {
	mode := in.Mode
	if mode == "" {
		settings, err := s.Settings(ctx)
		if err != nil {
			return SplitResult{}, err
		}
		mode = settings.SplitMode
	}
	if !domain.IsValidSplitMode(mode) {
		return SplitResult{}, domain.ErrInvalidSplitMode
	}

	parent, ok, err := s.lookup(ctx, in.TaskID)
	if err != nil || !ok {
		return SplitResult{}, err
	}
	if parent.Status != domain.StatusActive {
		return SplitResult{Parent: parent}, nil
	}

	lines := make([]string, 0, len(in.Lines))
	for _, raw := range in.Lines {
		if line := strings.TrimSpace(raw); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return SplitResult{Parent: parent}, domain.ErrEmptySplit
	}

	now := s.clock()
	childLevel := parent.Level
	if childLevel == domain.LevelProject {
		childLevel = domain.LevelStep
	}
	childParentID := ""
	if mode == domain.SplitKeep {
		childParentID = parent.ID
	}
	notes := ""
	if in.InheritNotes {
		notes = parent.Notes
	}

	children := make([]domain.Task, 0, len(lines))
	for _, line := range lines {
		child, err := domain.NewTask(domain.TaskInput{
			ID:         s.idGen(),
			Text:       line,
			Resistance: parent.Resistance,
			Level:      childLevel,
			Notes:      notes,
			Tags:       parent.Tags,
			ParentID:   childParentID,
		}, now)
		if err != nil {
			return SplitResult{}, err
		}
		children = append(children, child)
	}

	switch mode {
	case domain.SplitReplace:
		parent.Replace(now)
	case domain.SplitArchive:
		parent.Archive(now)
	case domain.SplitKeep:
		if err := s.unmarkWithLedger(ctx, &parent); err != nil {
			return SplitResult{}, err
		}
		parent.Level = domain.LevelProject
		parent.ChildIDs = make([]string, 0, len(children))
		for _, child := range children {
			parent.ChildIDs = append(parent.ChildIDs, child.ID)
		}
		parent.UpdatedAt = now.UTC()
	}

	if err := s.repo.UpdateTask(ctx, parent); err != nil {
		return SplitResult{}, fmt.Errorf("split parent: %w", err)
	}
	if mode != domain.SplitKeep {
		if err := s.actionActiveEntry(ctx, parent.ID, now); err != nil {
			return SplitResult{}, err
		}
	}
	for _, child := range children {
		if err := s.repo.CreateTask(ctx, child); err != nil {
			return SplitResult{}, fmt.Errorf("split child: %w", err)
		}
		if err := s.appendListEntry(ctx, child.ID, now); err != nil {
			return SplitResult{}, err
		}
	}
	return SplitResult{Parent: parent, Children: children}, nil
}

// UnlinkChildren detaches every child from a keep-mode parent and
// demotes the parent back to an unspecified level.
func (s *Service) UnlinkChildren(ctx context.Context, parentID string) (domain.Task, error) {
	parent, ok, err := s.lookup(ctx, parentID)
	if err != nil || !ok {
		return domain.Task{}, err
	}
	now := s.clock()
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	for _, task := range tasks {
		if task.ParentID != parent.ID {
			continue
		}
		task.ParentID = ""
		task.UpdatedAt = now.UTC()
		if err := s.repo.UpdateTask(ctx, task); err != nil {
			return domain.Task{}, fmt.Errorf("unlink child: %w", err)
		}
	}
	parent.ChildIDs = nil
	if parent.Level == domain.LevelProject {
		parent.Level = domain.LevelUnspecified
	}
	parent.UpdatedAt = now.UTC()
	if err := s.repo.UpdateTask(ctx, parent); err != nil {
		return domain.Task{}, fmt.Errorf("unlink parent: %w", err)
	}
	return parent, nil
}

// ProjectRollup aggregates a parent's children for the rollup view.
func (s *Service) ProjectRollup(ctx context.Context, parentID string) (domain.Rollup, error) {
	parent, err := s.repo.GetTask(ctx, parentID)
	if err != nil {
		return domain.Rollup{}, err
	}
	taskMap, err := s.taskMap(ctx)
	if err != nil {
		return domain.Rollup{}, err
	}
	return domain.BuildRollup(parent, taskMap), nil
}

// Settings returns the persisted settings, falling back to the
// configured defaults on a fresh store.
func (s *Service) Settings(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if errors.Is(err, ErrNotFound) {
		return s.defaults, nil
	}
	if err != nil {
		return domain.Settings{}, err
	}
	return domain.NormalizeSettings(settings), nil
}

// UpdateSettings persists normalized settings.
func (s *Service) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	settings = domain.NormalizeSettings(settings)
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return settings, nil
}

// GuideProgress returns where the user is in the guided cycle.
func (s *Service) GuideProgress(ctx context.Context) (domain.GuideProgress, error) {
	progress, err := s.repo.GetGuideProgress(ctx)
	if errors.Is(err, ErrNotFound) {
		return domain.GuideProgress{}, nil
	}
	return progress, err
}

// AdvanceGuide moves the guided cycle forward one step, wrapping back
// to the first step after the last.
func (s *Service) AdvanceGuide(ctx context.Context) (domain.GuideProgress, error) {
	progress, err := s.GuideProgress(ctx)
	if err != nil {
		return domain.GuideProgress{}, err
	}
	if !progress.Started {
		progress.Started = true
		progress.ActiveIndex = 0
	} else {
		progress.ActiveIndex = (progress.ActiveIndex + 1) % domain.GuideStepCount
	}
	if err := s.repo.SaveGuideProgress(ctx, progress); err != nil {
		return domain.GuideProgress{}, fmt.Errorf("advance guide: %w", err)
	}
	return progress, nil
}

// ResetGuide returns the guided cycle to its unstarted state.
func (s *Service) ResetGuide(ctx context.Context) error {
	if err := s.repo.SaveGuideProgress(ctx, domain.GuideProgress{}); err != nil {
		return fmt.Errorf("reset guide: %w", err)
	}
	return nil
}

// SaveGuideProgress persists the guided-cycle position.
func (s *Service) SaveGuideProgress(ctx context.Context, progress domain.GuideProgress) error {
	if progress.ActiveIndex < 0 {
		progress.ActiveIndex = 0
	}
	if err := s.repo.SaveGuideProgress(ctx, progress); err != nil {
		return fmt.Errorf("save guide progress: %w", err)
	}
	return nil
}

// Metrics returns the lifetime counters.
func (s *Service) Metrics(ctx context.Context) (domain.Metrics, error) {
	metrics, err := s.repo.GetMetrics(ctx)
	if errors.Is(err, ErrNotFound) {
		return domain.Metrics{}, nil
	}
	return metrics, err
}

// DayStats returns one day's aggregate, zeroed for unknown days.
func (s *Service) DayStats(ctx context.Context, day string) (domain.DayStats, error) {
	return s.repo.GetDay(ctx, day)
}

// TodayStats returns the aggregate for the clock's current UTC day.
func (s *Service) TodayStats(ctx context.Context) (domain.DayStats, error) {
	return s.repo.GetDay(ctx, domain.DayKey(s.clock()))
}

// Ledger returns the full daily ledger.
func (s *Service) Ledger(ctx context.Context) (domain.DailyLedger, error) {
	return s.repo.ListDays(ctx)
}

// lookup resolves a task id, reporting ok=false for the tolerated
// stale-id case and propagating only real storage failures.
func (s *Service) lookup(ctx context.Context, taskID string) (domain.Task, bool, error) {
	task, err := s.repo.GetTask(ctx, strings.TrimSpace(taskID))
	if errors.Is(err, ErrNotFound) {
		return domain.Task{}, false, nil
	}
	if err != nil {
		return domain.Task{}, false, err
	}
	return task, true, nil
}

// taskMap loads every task into an arena-style flat map.
func (s *Service) taskMap(ctx context.Context) (map[string]domain.Task, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Task, len(tasks))
	for _, task := range tasks {
		out[task.ID] = task
	}
	return out, nil
}

// unmarkWithLedger clears a dot and reconciles today's mark count when
// the dot was placed today.
func (s *Service) unmarkWithLedger(ctx context.Context, task *domain.Task) error {
	now := s.clock()
	markedOn, changed := task.Unmark(now)
	if !changed {
		return nil
	}
	if markedOn == domain.DayKey(now) {
		return s.bumpDay(ctx, markedOn, domain.StatMarks, false)
	}
	return nil
}

// stopTimerWithLedger stops an open timer as a side effect of a
// terminal transition.
func (s *Service) stopTimerWithLedger(ctx context.Context, task *domain.Task, now time.Time) error {
	_, err := s.stopTimerLedger(ctx, task, now)
	return err
}

// stopTimerLedger closes the open interval and credits its minutes.
func (s *Service) stopTimerLedger(ctx context.Context, task *domain.Task, now time.Time) (bool, error) {
	log, ok := task.StopTimer(now)
	if !ok {
		return false, nil
	}
	if err := s.addMinutes(ctx, domain.DayKey(now), log.Duration.Minutes()); err != nil {
		return false, err
	}
	return true, nil
}

// bumpDay adjusts one daily counter through the ledger rules.
func (s *Service) bumpDay(ctx context.Context, day string, key domain.StatKey, up bool) error {
	stats, err := s.repo.GetDay(ctx, day)
	if err != nil {
		return err
	}
	ledger := domain.DailyLedger{day: stats}
	if up {
		ledger.Increment(day, key)
	} else {
		ledger.Decrement(day, key)
	}
	if err := s.repo.UpsertDay(ctx, day, ledger.Day(day)); err != nil {
		return fmt.Errorf("upsert day stats: %w", err)
	}
	return nil
}

// addMinutes credits logged minutes to a day.
func (s *Service) addMinutes(ctx context.Context, day string, minutes float64) error {
	stats, err := s.repo.GetDay(ctx, day)
	if err != nil {
		return err
	}
	ledger := domain.DailyLedger{day: stats}
	ledger.AddMinutes(day, minutes)
	if err := s.repo.UpsertDay(ctx, day, ledger.Day(day)); err != nil {
		return fmt.Errorf("upsert day minutes: %w", err)
	}
	return nil
}

// actionActiveEntry retires the task's current appearance, if any.
func (s *Service) actionActiveEntry(ctx context.Context, taskID string, now time.Time) error {
	entries, err := s.repo.ListEntries(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.TaskID != taskID || entry.Status != domain.ListEntryActive {
			continue
		}
		entry.MarkActioned(now)
		if err := s.repo.UpdateListEntry(ctx, entry); err != nil {
			return fmt.Errorf("action list entry: %w", err)
		}
	}
	return nil
}

// appendListEntry adds a fresh appearance at the end of the list.
func (s *Service) appendListEntry(ctx context.Context, taskID string, now time.Time) error {
	entries, err := s.repo.ListEntries(ctx)
	if err != nil {
		return err
	}
	position := 0
	for _, entry := range entries {
		if entry.Position >= position {
			position = entry.Position + 1
		}
	}
	entry, err := domain.NewListEntry(s.idGen(), taskID, position, now)
	if err != nil {
		return err
	}
	if err := s.repo.CreateListEntry(ctx, entry); err != nil {
		return fmt.Errorf("create list entry: %w", err)
	}
	return nil
}
