package metrics

import (
	"sort"
	"time"

	"github.com/veritas-kanban/core/internal/model"
)

// FailedRun is one row of failedRuns' result.
type FailedRun struct {
	Timestamp    string
	TaskID       string
	Project      string
	Agent        string
	ErrorMessage string
	DurationMs   *int64
}

// FailedRuns streams run.completed where success=false, union run.error,
// sorted newest-first and truncated to limit (spec.md §4.7).
func (a *Aggregator) FailedRuns(period Period, project string, limit int) ([]FailedRun, error) {
	if limit <= 0 {
		limit = 50
	}
	since, until := window(period, time.Now().UTC())

	var out []FailedRun
	err := a.telemetry.ForEachInRange(since, until, func(ev *model.TelemetryEvent) {
		if project != "" && ev.Project != project {
			return
		}
		if !ev.IsFailure() {
			return
		}
		agent := ev.Agent
		if agent == "" {
			agent = defaultAgentName
		}
		out = append(out, FailedRun{
			Timestamp:    ev.Timestamp,
			TaskID:       ev.TaskID,
			Project:      ev.Project,
			Agent:        agent,
			ErrorMessage: ev.Error,
			DurationMs:   ev.DurationMs,
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
