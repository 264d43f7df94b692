package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/evanschultz/rz/internal/domain"
)

type fakeRepo struct {
	tasks   map[string]domain.Task
	entries []domain.ListEntry
	days    map[string]domain.DayStats

	settings *domain.Settings
	guide    *domain.GuideProgress
	metrics  *domain.Metrics
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tasks: map[string]domain.Task{},
		days:  map[string]domain.DayStats{},
	}
}

func (f *fakeRepo) CreateTask(_ context.Context, t domain.Task) error {
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeRepo) UpdateTask(_ context.Context, t domain.Task) error {
	if _, ok := f.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeRepo) GetTask(_ context.Context, id string) (domain.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeRepo) ListTasks(_ context.Context) ([]domain.Task, error) {
	out := make([]domain.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeRepo) CreateListEntry(_ context.Context, e domain.ListEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeRepo) UpdateListEntry(_ context.Context, e domain.ListEntry) error {
	for i := range f.entries {
		if f.entries[i].ID == e.ID {
			f.entries[i] = e
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) ListEntries(_ context.Context) ([]domain.ListEntry, error) {
	out := make([]domain.ListEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeRepo) GetDay(_ context.Context, day string) (domain.DayStats, error) {
	return f.days[day], nil
}

func (f *fakeRepo) UpsertDay(_ context.Context, day string, stats domain.DayStats) error {
	f.days[day] = stats
	return nil
}

func (f *fakeRepo) ListDays(_ context.Context) (domain.DailyLedger, error) {
	out := domain.DailyLedger{}
	for day, stats := range f.days {
		out[day] = stats
	}
	return out, nil
}

func (f *fakeRepo) GetSettings(_ context.Context) (domain.Settings, error) {
	if f.settings == nil {
		return domain.Settings{}, ErrNotFound
	}
	return *f.settings, nil
}

func (f *fakeRepo) SaveSettings(_ context.Context, s domain.Settings) error {
	f.settings = &s
	return nil
}

func (f *fakeRepo) GetGuideProgress(_ context.Context) (domain.GuideProgress, error) {
	if f.guide == nil {
		return domain.GuideProgress{}, ErrNotFound
	}
	return *f.guide, nil
}

func (f *fakeRepo) SaveGuideProgress(_ context.Context, g domain.GuideProgress) error {
	f.guide = &g
	return nil
}

func (f *fakeRepo) GetMetrics(_ context.Context) (domain.Metrics, error) {
	if f.metrics == nil {
		return domain.Metrics{}, ErrNotFound
	}
	return *f.metrics, nil
}

func (f *fakeRepo) SaveMetrics(_ context.Context, m domain.Metrics) error {
	f.metrics = &m
	return nil
}

func (f *fakeRepo) Reset(_ context.Context) error {
	f.tasks = map[string]domain.Task{}
	f.entries = nil
	f.days = map[string]domain.DayStats{}
	f.settings = nil
	f.guide = nil
	f.metrics = nil
	return nil
}

// newTestService wires a service against a fake repo with sequential
// ids and a mutable clock.
func newTestService(repo *fakeRepo, at *time.Time) *Service {
	counter := 0
	return NewService(repo, func() string {
		counter++
		return fmt.Sprintf("id-%d", counter)
	}, func() time.Time {
		return *at
	}, ServiceConfig{Defaults: domain.DefaultSettings()})
}

func TestCreateTaskAppendsListEntry(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	first, err := svc.CreateTask(context.Background(), CreateTaskInput{Text: "write report"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	second, err := svc.CreateTask(context.Background(), CreateTaskInput{Text: "call dentist"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if len(repo.entries) != 2 {
		t.Fatalf("expected 2 list entries, got %d", len(repo.entries))
	}
	if repo.entries[0].TaskID != first.ID || repo.entries[1].TaskID != second.ID {
		t.Fatalf("unexpected entry order %#v", repo.entries)
	}
	if repo.entries[1].Position <= repo.entries[0].Position {
		t.Fatalf("positions not increasing: %d then %d", repo.entries[0].Position, repo.entries[1].Position)
	}

	if _, err := svc.CreateTask(context.Background(), CreateTaskInput{Text: "   "}); !errors.Is(err, domain.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestMarkUnmarkLedger(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	task, err := svc.CreateTask(context.Background(), CreateTaskInput{Text: "draft email"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	today := domain.DayKey(now)

	marked, err := svc.Mark(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if !marked.Marked || marked.LastMarkedOn != today {
		t.Fatalf("unexpected marked task %#v", marked)
	}
	if repo.days[today].Marks != 1 {
		t.Fatalf("expected 1 mark today, got %d", repo.days[today].Marks)
	}

	// Idempotent: a second mark moves nothing.
	if _, err := svc.Mark(context.Background(), task.ID); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if repo.days[today].Marks != 1 {
		t.Fatalf("expected marks to stay at 1, got %d", repo.days[today].Marks)
	}

	unmarked, err := svc.Unmark(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Unmark() error = %v", err)
	}
	if unmarked.Marked {
		t.Fatal("expected dot cleared")
	}
	if repo.days[today].Marks != 0 {
		t.Fatalf("expected mark taken back, got %d", repo.days[today].Marks)
	}
}

func TestUnmarkAcrossMidnightKeepsOldDay(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 23, 50, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	task, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "late task"})
	if _, err := svc.Mark(context.Background(), task.ID); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	yesterday := domain.DayKey(now)

	now = now.Add(time.Hour)
	if _, err := svc.Unmark(context.Background(), task.ID); err != nil {
		t.Fatalf("Unmark() error = %v", err)
	}
	if repo.days[yesterday].Marks != 1 {
		t.Fatalf("prior-day mark count changed: %d", repo.days[yesterday].Marks)
	}
	if repo.days[domain.DayKey(now)].Marks != 0 {
		t.Fatalf("today's count moved: %d", repo.days[domain.DayKey(now)].Marks)
	}
}

func TestReenterMovesTaskToEnd(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	first, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "tidy desk"})
	svc.CreateTask(context.Background(), CreateTaskInput{Text: "file taxes"})
	if _, err := svc.Mark(context.Background(), first.ID); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}

	reentered, err := svc.Reenter(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Reenter() error = %v", err)
	}
	if reentered.Marked {
		t.Fatal("expected dot cleared on reentry")
	}
	if reentered.Reentries != 1 {
		t.Fatalf("expected 1 reentry, got %d", reentered.Reentries)
	}

	visible, err := svc.VisibleTasks(context.Background())
	if err != nil {
		t.Fatalf("VisibleTasks() error = %v", err)
	}
	if len(visible) != 2 || visible[1].ID != first.ID {
		t.Fatalf("expected reentered task at the end, got %#v", visible)
	}

	actioned := 0
	for _, entry := range repo.entries {
		if entry.TaskID == first.ID && entry.Status == domain.ListEntryActioned {
			actioned++
		}
	}
	if actioned != 1 {
		t.Fatalf("expected the old appearance actioned once, got %d", actioned)
	}
}

func TestCompleteStopsTimerAndClearsDot(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	task, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "review patch"})
	if _, err := svc.Mark(context.Background(), task.ID); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if _, err := svc.StartTimer(context.Background(), task.ID); err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}
	today := domain.DayKey(now)

	now = now.Add(30 * time.Minute)
	done, err := svc.Complete(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if done.Status != domain.StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("unexpected completed task %#v", done)
	}
	if done.Marked {
		t.Fatal("expected dot cleared on completion")
	}
	if done.OpenTimer() != -1 {
		t.Fatal("expected timer stopped on completion")
	}
	if got := repo.days[today].Minutes; got != 30 {
		t.Fatalf("expected 30 minutes credited, got %v", got)
	}

	// Terminal: a second completion is a no-op.
	again, err := svc.Complete(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !again.CompletedAt.Equal(*done.CompletedAt) {
		t.Fatal("expected completion timestamp unchanged")
	}

	visible, _ := svc.VisibleTasks(context.Background())
	if len(visible) != 0 {
		t.Fatalf("expected empty visible list, got %d tasks", len(visible))
	}
}

func TestStaleIDIsSilentNoop(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	for name, op := range map[string]func() (domain.Task, error){
		"Mark":       func() (domain.Task, error) { return svc.Mark(context.Background(), "gone") },
		"Unmark":     func() (domain.Task, error) { return svc.Unmark(context.Background(), "gone") },
		"Reenter":    func() (domain.Task, error) { return svc.Reenter(context.Background(), "gone") },
		"Complete":   func() (domain.Task, error) { return svc.Complete(context.Background(), "gone") },
		"Archive":    func() (domain.Task, error) { return svc.Archive(context.Background(), "gone") },
		"StartTimer": func() (domain.Task, error) { return svc.StartTimer(context.Background(), "gone") },
		"StopTimer":  func() (domain.Task, error) { return svc.StopTimer(context.Background(), "gone") },
	} {
		task, err := op()
		if err != nil {
			t.Fatalf("%s on stale id: error = %v", name, err)
		}
		if task.ID != "" {
			t.Fatalf("%s on stale id: expected zero task, got %#v", name, task)
		}
	}
}

func TestSplitReplace(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	resistance := 7
	parent, _ := svc.CreateTask(context.Background(), CreateTaskInput{
		Text:       "plan offsite",
		Resistance: &resistance,
		Tags:       []string{"work"},
		Notes:      "budget is tight",
	})

	result, err := svc.Split(context.Background(), SplitInput{
		TaskID:       parent.ID,
		Lines:        []string{"book venue", "  ", "send invites"},
		Mode:         domain.SplitReplace,
		InheritNotes: true,
	})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if result.Parent.Status != domain.StatusReplaced {
		t.Fatalf("expected parent replaced, got %s", result.Parent.Status)
	}
	if len(result.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(result.Children))
	}
	for _, child := range result.Children {
		if child.Resistance == nil || *child.Resistance != 7 {
			t.Fatalf("child did not inherit resistance: %#v", child.Resistance)
		}
		if len(child.Tags) != 1 || child.Tags[0] != "work" {
			t.Fatalf("child did not inherit tags: %#v", child.Tags)
		}
		if child.Notes != "budget is tight" {
			t.Fatalf("child did not inherit notes: %q", child.Notes)
		}
		if child.ParentID != "" {
			t.Fatalf("replace-mode child has parent link %q", child.ParentID)
		}
	}

	visible, _ := svc.VisibleTasks(context.Background())
	if len(visible) != 2 {
		t.Fatalf("expected only the children visible, got %d", len(visible))
	}
}

func TestSplitKeepBuildsProject(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	parent, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "ship release"})
	if _, err := svc.Mark(context.Background(), parent.ID); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}

	result, err := svc.Split(context.Background(), SplitInput{
		TaskID: parent.ID,
		Lines:  []string{"cut branch", "write changelog"},
		Mode:   domain.SplitKeep,
	})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if result.Parent.Level != domain.LevelProject {
		t.Fatalf("expected parent promoted to project, got %s", result.Parent.Level)
	}
	if result.Parent.Marked {
		t.Fatal("expected parent dot cleared by keep split")
	}
	if len(result.Parent.ChildIDs) != 2 {
		t.Fatalf("expected 2 child links, got %d", len(result.Parent.ChildIDs))
	}
	for _, child := range result.Children {
		if child.ParentID != parent.ID {
			t.Fatalf("keep-mode child missing parent link: %#v", child)
		}
		if child.Level != domain.LevelStep {
			t.Fatalf("expected step child, got %s", child.Level)
		}
	}

	visible, _ := svc.VisibleTasks(context.Background())
	if len(visible) != 3 {
		t.Fatalf("expected parent plus children visible, got %d", len(visible))
	}

	rollup, err := svc.ProjectRollup(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("ProjectRollup() error = %v", err)
	}
	if rollup.TotalChildren != 2 || rollup.Completed != 0 {
		t.Fatalf("unexpected rollup %#v", rollup)
	}
}

func TestSplitEmptyInputChangesNothing(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	parent, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "untouchable"})

	_, err := svc.Split(context.Background(), SplitInput{
		TaskID: parent.ID,
		Lines:  []string{"", "   ", "\t"},
		Mode:   domain.SplitReplace,
	})
	if !errors.Is(err, domain.ErrEmptySplit) {
		t.Fatalf("expected ErrEmptySplit, got %v", err)
	}

	got, _ := svc.GetTask(context.Background(), parent.ID)
	if got.Status != domain.StatusActive {
		t.Fatalf("parent changed by empty split: %#v", got)
	}
	if len(repo.tasks) != 1 || len(repo.entries) != 1 {
		t.Fatalf("store changed by empty split: %d tasks, %d entries", len(repo.tasks), len(repo.entries))
	}
}

func TestSplitModeDefaultsFromSettings(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	settings := domain.DefaultSettings()
	settings.SplitMode = domain.SplitArchive
	if _, err := svc.UpdateSettings(context.Background(), settings); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	parent, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "big thing"})
	result, err := svc.Split(context.Background(), SplitInput{TaskID: parent.ID, Lines: []string{"small thing"}})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if result.Parent.Status != domain.StatusArchived {
		t.Fatalf("expected archive default, got %s", result.Parent.Status)
	}

	if _, err := svc.Split(context.Background(), SplitInput{TaskID: "x", Lines: []string{"y"}, Mode: "explode"}); !errors.Is(err, domain.ErrInvalidSplitMode) {
		t.Fatalf("expected ErrInvalidSplitMode, got %v", err)
	}
}

func TestUnlinkChildren(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	parent, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "renovate kitchen"})
	result, err := svc.Split(context.Background(), SplitInput{
		TaskID: parent.ID,
		Lines:  []string{"pick tiles", "hire plumber"},
		Mode:   domain.SplitKeep,
	})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	unlinked, err := svc.UnlinkChildren(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("UnlinkChildren() error = %v", err)
	}
	if len(unlinked.ChildIDs) != 0 {
		t.Fatalf("expected child links removed, got %#v", unlinked.ChildIDs)
	}
	if unlinked.Level != domain.LevelUnspecified {
		t.Fatalf("expected parent demoted, got %s", unlinked.Level)
	}
	for _, child := range result.Children {
		got, _ := svc.GetTask(context.Background(), child.ID)
		if got.ParentID != "" {
			t.Fatalf("child %s still linked to %q", got.ID, got.ParentID)
		}
	}
}

func TestTimerCreditsMinutes(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	task, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "deep work"})
	if _, err := svc.StartTimer(context.Background(), task.ID); err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}
	// Second start while running: no-op, no extra interval.
	running, err := svc.StartTimer(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}
	if len(running.TimeLogs) != 1 {
		t.Fatalf("expected a single interval, got %d", len(running.TimeLogs))
	}

	now = now.Add(125 * time.Second)
	stopped, err := svc.StopTimer(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("StopTimer() error = %v", err)
	}
	if stopped.OpenTimer() != -1 {
		t.Fatal("expected no open interval")
	}
	today := domain.DayKey(now)
	got := repo.days[today].Minutes
	if got < 2.08 || got > 2.09 {
		t.Fatalf("expected about 2.083 minutes, got %v", got)
	}

	// Stop with nothing running: no-op.
	if _, err := svc.StopTimer(context.Background(), task.ID); err != nil {
		t.Fatalf("StopTimer() error = %v", err)
	}
	if repo.days[today].Minutes != got {
		t.Fatalf("minutes moved on idle stop: %v", repo.days[today].Minutes)
	}
}

func TestSettingsFallBackToDefaults(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	settings, err := svc.Settings(context.Background())
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if settings != domain.DefaultSettings() {
		t.Fatalf("expected defaults on fresh store, got %#v", settings)
	}

	settings.ScanDirection = domain.ScanBackward
	saved, err := svc.UpdateSettings(context.Background(), settings)
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if saved.ScanDirection != domain.ScanBackward {
		t.Fatalf("unexpected saved settings %#v", saved)
	}
	reloaded, _ := svc.Settings(context.Background())
	if reloaded.ScanDirection != domain.ScanBackward {
		t.Fatalf("settings did not persist: %#v", reloaded)
	}
}

func TestGuideProgressAndMetricsDefaults(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	guide, err := svc.GuideProgress(context.Background())
	if err != nil {
		t.Fatalf("GuideProgress() error = %v", err)
	}
	if guide.Started || guide.ActiveIndex != 0 {
		t.Fatalf("expected zero guide progress, got %#v", guide)
	}
	if err := svc.SaveGuideProgress(context.Background(), domain.GuideProgress{Started: true, ActiveIndex: 2}); err != nil {
		t.Fatalf("SaveGuideProgress() error = %v", err)
	}
	guide, _ = svc.GuideProgress(context.Background())
	if !guide.Started || guide.ActiveIndex != 2 {
		t.Fatalf("guide progress did not persist: %#v", guide)
	}

	metrics, err := svc.Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if metrics.TotalScans != 0 {
		t.Fatalf("expected zero metrics, got %#v", metrics)
	}
}

func TestAdvanceGuideWrapsAndResets(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	progress, err := svc.AdvanceGuide(context.Background())
	if err != nil {
		t.Fatalf("AdvanceGuide() error = %v", err)
	}
	if !progress.Started || progress.ActiveIndex != 0 {
		t.Fatalf("first advance should start at step 0, got %#v", progress)
	}

	for i := 0; i < domain.GuideStepCount; i++ {
		progress, err = svc.AdvanceGuide(context.Background())
		if err != nil {
			t.Fatalf("AdvanceGuide() error = %v", err)
		}
	}
	if progress.ActiveIndex != 0 {
		t.Fatalf("expected wrap back to step 0, got %#v", progress)
	}

	if err := svc.ResetGuide(context.Background()); err != nil {
		t.Fatalf("ResetGuide() error = %v", err)
	}
	progress, _ = svc.GuideProgress(context.Background())
	if progress.Started || progress.ActiveIndex != 0 {
		t.Fatalf("expected unstarted guide after reset, got %#v", progress)
	}
}

func TestUpdateTaskValidation(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	task, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "original"})

	bad := 99
	if _, err := svc.UpdateTask(context.Background(), UpdateTaskInput{
		TaskID:     task.ID,
		Text:       "renamed",
		Resistance: &bad,
	}); !errors.Is(err, domain.ErrInvalidResistance) {
		t.Fatalf("expected ErrInvalidResistance, got %v", err)
	}

	good := 3
	updated, err := svc.UpdateTask(context.Background(), UpdateTaskInput{
		TaskID:     task.ID,
		Text:       "renamed",
		Notes:      "some notes",
		Resistance: &good,
		Level:      domain.LevelStep,
		Tags:       []string{"Home", "home"},
	})
	if err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	if updated.Text != "renamed" || updated.Level != domain.LevelStep {
		t.Fatalf("unexpected updated task %#v", updated)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "home" {
		t.Fatalf("tags not normalized: %#v", updated.Tags)
	}

	if _, err := svc.UpdateTask(context.Background(), UpdateTaskInput{TaskID: "gone", Text: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestToggleCollapseHidesChildren(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	parent, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "garden project"})
	if _, err := svc.Split(context.Background(), SplitInput{
		TaskID: parent.ID,
		Lines:  []string{"weed beds", "plant bulbs"},
		Mode:   domain.SplitKeep,
	}); err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	collapsed, err := svc.ToggleCollapse(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("ToggleCollapse() error = %v", err)
	}
	if !collapsed.IsCollapsed {
		t.Fatal("expected parent collapsed")
	}
	visible, _ := svc.VisibleTasks(context.Background())
	if len(visible) != 1 || visible[0].ID != parent.ID {
		t.Fatalf("expected only the parent visible, got %#v", visible)
	}

	expanded, _ := svc.ToggleCollapse(context.Background(), parent.ID)
	if expanded.IsCollapsed {
		t.Fatal("expected parent expanded again")
	}
	visible, _ = svc.VisibleTasks(context.Background())
	if len(visible) != 3 {
		t.Fatalf("expected children visible again, got %d", len(visible))
	}
}
