package metrics

import (
	"context"

	"github.com/veritas-kanban/core/internal/model"
)

// TaskMetrics is taskMetrics' result shape (spec.md §4.7).
type TaskMetrics struct {
	ByStatus          map[string]int
	BlockedByCategory map[string]int
	Completed         int
}

// TaskMetrics counts tasks by status and, for blocked tasks, by
// blockedReason.category (union with "unspecified"). completed = done +
// archived.
func (a *Aggregator) TaskMetrics(ctx context.Context, project string) (*TaskMetrics, error) {
	active, err := a.tasks.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	archived, err := a.tasks.ListArchivedTasks(ctx)
	if err != nil {
		return nil, err
	}

	out := &TaskMetrics{
		ByStatus:          make(map[string]int),
		BlockedByCategory: make(map[string]int),
	}

	count := func(t *model.Task, forceArchived bool) {
		if project != "" && t.Project != project {
			return
		}
		status := string(t.Status)
		if forceArchived {
			status = string(model.TaskStatusArchived)
		}
		out.ByStatus[status]++
		if t.Status == model.TaskStatusBlocked {
			category := "unspecified"
			if t.BlockedReason != nil && t.BlockedReason.Category != "" {
				category = t.BlockedReason.Category
			}
			out.BlockedByCategory[category]++
		}
	}

	for _, t := range active {
		count(t, false)
	}
	for _, t := range archived {
		count(t, true)
	}

	out.Completed = out.ByStatus[string(model.TaskStatusDone)] + out.ByStatus[string(model.TaskStatusArchived)]
	return out, nil
}
