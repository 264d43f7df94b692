package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/evanschultz/rz/internal/domain"
)

// ScanStep reports the outcome of one advance: the task just touched
// (zero when the advance only drained stale ids) and whether the pass
// finished.
type ScanStep struct {
	Task      domain.Task
	Completed bool
}

// BeginScan snapshots the active list entries' task ids and starts a
// pass. An empty direction falls back to the persisted preference.
// Collapse state is ignored: a scan visits every active appearance,
// hidden or not.
func (s *Service) BeginScan(ctx context.Context, direction domain.ScanDirection) (*domain.ScanSession, error) {
	if direction == "" {
		settings, err := s.Settings(ctx)
		if err != nil {
			return nil, err
		}
		direction = settings.ScanDirection
	}

	order, err := s.scanOrder(ctx)
	if err != nil {
		return nil, err
	}
	session, err := domain.NewScanSession(order, direction, s.clock())
	if err != nil {
		return nil, err
	}
	s.scan = session
	return s.Scan(), nil
}

// AdvanceScan touches the task under the cursor, optionally marking
// it, and moves on. Ids that stopped resolving or went inactive since
// the snapshot are skipped without counting as touches. Completing the
// pass credits today's scan count and the lifetime total, then clears
// the session.
func (s *Service) AdvanceScan(ctx context.Context, mark bool) (ScanStep, error) {
	if s.scan == nil {
		return ScanStep{}, ErrNoActiveScan
	}

	var touched domain.Task
	for {
		id, ok := s.scan.Current()
		if !ok {
			break
		}
		task, found, err := s.lookup(ctx, id)
		if err != nil {
			return ScanStep{}, err
		}
		if !found || task.Status != domain.StatusActive {
			s.scan.Skip()
			continue
		}

		now := s.clock()
		action := domain.TouchActionSkip
		if mark {
			action = domain.TouchActionMark
		}
		task.Touch(domain.TouchContextScan, action, now)
		if mark && task.Mark(domain.DayKey(now), now) {
			if err := s.bumpDay(ctx, domain.DayKey(now), domain.StatMarks, true); err != nil {
				return ScanStep{}, err
			}
		}
		if err := s.repo.UpdateTask(ctx, task); err != nil {
			return ScanStep{}, fmt.Errorf("advance scan: %w", err)
		}
		s.scan.PushRecent(task.ID)
		s.scan.Index++
		touched = task
		break
	}

	if !s.scan.Done() {
		return ScanStep{Task: touched}, nil
	}
	if err := s.completeScan(ctx); err != nil {
		return ScanStep{}, err
	}
	return ScanStep{Task: touched, Completed: true}, nil
}

// CancelScan aborts the pass. Touches and marks already applied stay;
// the completed-scan statistics do not move.
func (s *Service) CancelScan() {
	s.scan = nil
}

// ToggleRecent flips the mark of a task still inside the correction
// ring without moving the cursor. Outside the ring it is a no-op.
func (s *Service) ToggleRecent(ctx context.Context, taskID string) (domain.Task, error) {
	if s.scan == nil {
		return domain.Task{}, ErrNoActiveScan
	}
	if !s.scan.InRecent(taskID) {
		return domain.Task{}, nil
	}
	task, ok, err := s.lookup(ctx, taskID)
	if err != nil || !ok {
		return domain.Task{}, err
	}
	if task.Marked {
		return s.Unmark(ctx, taskID)
	}
	return s.Mark(ctx, taskID)
}

// Scan returns a copy of the running session for rendering, or nil.
func (s *Service) Scan() *domain.ScanSession {
	if s.scan == nil {
		return nil
	}
	session := *s.scan
	session.Order = slices.Clone(s.scan.Order)
	session.Recent = slices.Clone(s.scan.Recent)
	return &session
}

// completeScan finalizes a finished pass.
func (s *Service) completeScan(ctx context.Context) error {
	now := s.clock()
	if err := s.bumpDay(ctx, domain.DayKey(now), domain.StatScans, true); err != nil {
		return err
	}
	metrics, err := s.Metrics(ctx)
	if err != nil {
		return err
	}
	metrics.TotalScans++
	if err := s.repo.SaveMetrics(ctx, metrics); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	s.scan = nil
	return nil
}

// scanOrder lists the active entries' task ids in list order, dropping
// references that no longer resolve to an active task.
func (s *Service) scanOrder(ctx context.Context) ([]string, error) {
	entries, err := s.repo.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	taskMap, err := s.taskMap(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]domain.ListEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Status != domain.ListEntryActive {
			continue
		}
		task, ok := taskMap[entry.TaskID]
		if !ok || task.Status != domain.StatusActive {
			continue
		}
		active = append(active, entry)
	}
	slices.SortStableFunc(active, func(a, b domain.ListEntry) int {
		return a.Position - b.Position
	})

	order := make([]string, 0, len(active))
	for _, entry := range active {
		order = append(order, entry.TaskID)
	}
	return order, nil
}
