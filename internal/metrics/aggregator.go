// Package metrics implements C7: read-only derived counters from the
// telemetry store (C3) and the task store — error rate, percentiles,
// per-agent breakdown, trend/budget, and velocity.
package metrics

import (
	"context"
	"time"

	"github.com/veritas-kanban/core/internal/taskstore"
	"github.com/veritas-kanban/core/internal/telemetry"
)

// Period is one of the three windows every C7 operation accepts.
type Period string

const (
	Period24h Period = "24h"
	Period7d  Period = "7d"
	Period30d Period = "30d"
)

func (p Period) duration() time.Duration {
	switch p {
	case Period24h:
		return 24 * time.Hour
	case Period7d:
		return 7 * 24 * time.Hour
	case Period30d:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Aggregator is C7, built over an explicit telemetry store and task store
// dependency (same "no package-level singleton" pattern as the
// supervisor, per spec.md §9).
type Aggregator struct {
	telemetry *telemetry.Store
	tasks     taskstore.Store
}

// New constructs an Aggregator.
func New(tel *telemetry.Store, tasks taskstore.Store) *Aggregator {
	return &Aggregator{telemetry: tel, tasks: tasks}
}

// window returns the [since, until] ISO-8601 bounds for a period ending
// now.
func window(period Period, now time.Time) (since, until string) {
	start := now.Add(-period.duration())
	return start.UTC().Format(time.RFC3339Nano), now.UTC().Format(time.RFC3339Nano)
}

// previousWindow returns the equal-length window immediately preceding
// the current one, for trend comparisons.
func previousWindow(period Period, now time.Time) (since, until string) {
	d := period.duration()
	start := now.Add(-2 * d)
	end := now.Add(-d)
	return start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano)
}

func ptrInt64(v int64) *int64 { return &v }
