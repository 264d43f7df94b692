package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/evanschultz/rz/internal/domain"
)

func TestBeginScanSnapshotsListOrder(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	a, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "alpha"})
	b, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "beta"})
	c, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "gamma"})

	session, err := svc.BeginScan(context.Background(), domain.ScanForward)
	if err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}
	want := []string{a.ID, b.ID, c.ID}
	if len(session.Order) != 3 {
		t.Fatalf("unexpected order length %d", len(session.Order))
	}
	for i, id := range want {
		if session.Order[i] != id {
			t.Fatalf("order[%d] = %s, want %s", i, session.Order[i], id)
		}
	}

	backward, err := svc.BeginScan(context.Background(), domain.ScanBackward)
	if err != nil {
		t.Fatalf("BeginScan(backward) error = %v", err)
	}
	if backward.Order[0] != c.ID || backward.Order[2] != a.ID {
		t.Fatalf("backward order not reversed: %#v", backward.Order)
	}
}

func TestBeginScanEmptyList(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	if _, err := svc.BeginScan(context.Background(), domain.ScanForward); !errors.Is(err, domain.ErrEmptyScan) {
		t.Fatalf("expected ErrEmptyScan, got %v", err)
	}
	if svc.Scan() != nil {
		t.Fatal("expected no session after a failed begin")
	}
}

func TestBeginScanUsesSettingsDirection(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	settings := domain.DefaultSettings()
	settings.ScanDirection = domain.ScanBackward
	if _, err := svc.UpdateSettings(context.Background(), settings); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	a, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "first"})
	svc.CreateTask(context.Background(), CreateTaskInput{Text: "second"})

	session, err := svc.BeginScan(context.Background(), "")
	if err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}
	if session.Direction != domain.ScanBackward {
		t.Fatalf("expected persisted direction, got %s", session.Direction)
	}
	if session.Order[1] != a.ID {
		t.Fatalf("expected reversed order, got %#v", session.Order)
	}
}

func TestAdvanceScanTouchesMarksAndCompletes(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	a, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "alpha"})
	b, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "beta"})
	today := domain.DayKey(now)

	if _, err := svc.BeginScan(context.Background(), domain.ScanForward); err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}

	step, err := svc.AdvanceScan(context.Background(), true)
	if err != nil {
		t.Fatalf("AdvanceScan() error = %v", err)
	}
	if step.Completed {
		t.Fatal("pass finished early")
	}
	if step.Task.ID != a.ID || !step.Task.Marked {
		t.Fatalf("unexpected step task %#v", step.Task)
	}
	if step.Task.Touches != 1 || step.Task.ScanCount != 1 {
		t.Fatalf("touch counters wrong: %#v", step.Task)
	}
	if repo.days[today].Marks != 1 {
		t.Fatalf("expected 1 mark today, got %d", repo.days[today].Marks)
	}

	step, err = svc.AdvanceScan(context.Background(), false)
	if err != nil {
		t.Fatalf("AdvanceScan() error = %v", err)
	}
	if !step.Completed {
		t.Fatal("expected pass complete")
	}
	if step.Task.ID != b.ID || step.Task.Marked {
		t.Fatalf("unexpected final step %#v", step.Task)
	}

	if repo.days[today].Scans != 1 {
		t.Fatalf("expected 1 completed scan today, got %d", repo.days[today].Scans)
	}
	metrics, _ := svc.Metrics(context.Background())
	if metrics.TotalScans != 1 {
		t.Fatalf("expected lifetime scan total 1, got %d", metrics.TotalScans)
	}
	if svc.Scan() != nil {
		t.Fatal("expected session cleared after completion")
	}
	if _, err := svc.AdvanceScan(context.Background(), false); !errors.Is(err, ErrNoActiveScan) {
		t.Fatalf("expected ErrNoActiveScan, got %v", err)
	}
}

func TestAdvanceScanSkipsStaleIds(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	a, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "alpha"})
	b, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "beta"})
	c, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "gamma"})

	if _, err := svc.BeginScan(context.Background(), domain.ScanForward); err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}
	// The snapshot goes stale mid-pass: one task completed, one gone.
	if _, err := svc.Complete(context.Background(), a.ID); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	delete(repo.tasks, b.ID)

	step, err := svc.AdvanceScan(context.Background(), false)
	if err != nil {
		t.Fatalf("AdvanceScan() error = %v", err)
	}
	if !step.Completed {
		t.Fatal("expected stale ids drained to completion")
	}
	if step.Task.ID != c.ID {
		t.Fatalf("expected cursor to land on the survivor, got %#v", step.Task)
	}
	gotA, _ := svc.GetTask(context.Background(), a.ID)
	if gotA.ScanCount != 0 {
		t.Fatalf("completed task touched by scan: %#v", gotA)
	}
}

func TestToggleRecentFlipsWithinRing(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	if _, err := svc.ToggleRecent(context.Background(), "any"); !errors.Is(err, ErrNoActiveScan) {
		t.Fatalf("expected ErrNoActiveScan, got %v", err)
	}

	ids := make([]string, 0, domain.RecentRingCapacity+2)
	for i := 0; i < domain.RecentRingCapacity+2; i++ {
		task, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: fmt.Sprintf("task %d", i)})
		ids = append(ids, task.ID)
	}
	if _, err := svc.BeginScan(context.Background(), domain.ScanForward); err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}
	// Mark everything but leave the last slot so the pass stays open.
	for i := 0; i < len(ids)-1; i++ {
		if _, err := svc.AdvanceScan(context.Background(), true); err != nil {
			t.Fatalf("AdvanceScan() error = %v", err)
		}
	}
	today := domain.DayKey(now)
	marksBefore := repo.days[today].Marks

	// The first task fell out of the bounded ring: toggling is a no-op.
	toggled, err := svc.ToggleRecent(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("ToggleRecent() error = %v", err)
	}
	if toggled.ID != "" {
		t.Fatalf("expected no-op outside the ring, got %#v", toggled)
	}
	first, _ := svc.GetTask(context.Background(), ids[0])
	if !first.Marked {
		t.Fatal("out-of-ring task lost its mark")
	}

	// A task still in the ring flips off, then back on.
	recent := ids[len(ids)-2]
	toggled, err = svc.ToggleRecent(context.Background(), recent)
	if err != nil {
		t.Fatalf("ToggleRecent() error = %v", err)
	}
	if toggled.Marked {
		t.Fatal("expected mark removed")
	}
	if repo.days[today].Marks != marksBefore-1 {
		t.Fatalf("expected mark count down by one, got %d", repo.days[today].Marks)
	}
	toggled, err = svc.ToggleRecent(context.Background(), recent)
	if err != nil {
		t.Fatalf("ToggleRecent() error = %v", err)
	}
	if !toggled.Marked {
		t.Fatal("expected mark restored")
	}
	if repo.days[today].Marks != marksBefore {
		t.Fatalf("expected mark count restored, got %d", repo.days[today].Marks)
	}
}

func TestCancelScanKeepsAppliedWork(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	a, _ := svc.CreateTask(context.Background(), CreateTaskInput{Text: "alpha"})
	svc.CreateTask(context.Background(), CreateTaskInput{Text: "beta"})
	today := domain.DayKey(now)

	if _, err := svc.BeginScan(context.Background(), domain.ScanForward); err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}
	if _, err := svc.AdvanceScan(context.Background(), true); err != nil {
		t.Fatalf("AdvanceScan() error = %v", err)
	}
	svc.CancelScan()

	if svc.Scan() != nil {
		t.Fatal("expected session cleared")
	}
	got, _ := svc.GetTask(context.Background(), a.ID)
	if !got.Marked || got.Touches != 1 {
		t.Fatalf("applied work rolled back: %#v", got)
	}
	if repo.days[today].Marks != 1 {
		t.Fatalf("mark credit rolled back: %d", repo.days[today].Marks)
	}
	if repo.days[today].Scans != 0 {
		t.Fatalf("cancelled pass counted as a scan: %d", repo.days[today].Scans)
	}
	metrics, _ := svc.Metrics(context.Background())
	if metrics.TotalScans != 0 {
		t.Fatalf("cancelled pass hit lifetime total: %d", metrics.TotalScans)
	}
}

func TestScanReturnsDetachedCopy(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	svc.CreateTask(context.Background(), CreateTaskInput{Text: "alpha"})
	svc.CreateTask(context.Background(), CreateTaskInput{Text: "beta"})
	if _, err := svc.BeginScan(context.Background(), domain.ScanForward); err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}

	snapshot := svc.Scan()
	snapshot.Order[0] = "mutated"
	snapshot.Index = 99

	fresh := svc.Scan()
	if fresh.Order[0] == "mutated" || fresh.Index == 99 {
		t.Fatalf("session shared state with caller: %#v", fresh)
	}
}
