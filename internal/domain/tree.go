package domain

import "sort"

// Rollup aggregates a keep-mode parent's children.
type Rollup struct {
	ParentID      string
	TotalChildren int
	Completed     int
	Minutes       float64
}

// BuildRollup walks a parent's ChildIDs over the flat task map.
// Dangling ids are dropped and every id is visited at most once, so a
// corrupted hierarchy cannot loop.
func BuildRollup(parent Task, tasks map[string]Task) Rollup {
	rollup := Rollup{ParentID: parent.ID}
	seen := map[string]struct{}{parent.ID: {}}
	for _, childID := range parent.ChildIDs {
		if _, ok := seen[childID]; ok {
			continue
		}
		seen[childID] = struct{}{}
		child, ok := tasks[childID]
		if !ok {
			continue
		}
		rollup.TotalChildren++
		if child.Status == StatusCompleted {
			rollup.Completed++
		}
		rollup.Minutes += child.LoggedMinutes()
	}
	return rollup
}

// ProjectList resolves active list entries against the task map into
// the visible working list: entry order preserved, dangling references
// dropped, children hidden while their parent is collapsed.
func ProjectList(entries []ListEntry, tasks map[string]Task) []Task {
	ordered := make([]ListEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Status == ListEntryActive {
			ordered = append(ordered, entry)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	out := make([]Task, 0, len(ordered))
	for _, entry := range ordered {
		task, ok := tasks[entry.TaskID]
		if !ok || task.Status != StatusActive {
			continue
		}
		if task.ParentID != "" {
			if parent, ok := tasks[task.ParentID]; ok && parent.IsCollapsed {
				continue
			}
		}
		out = append(out, task)
	}
	return out
}
