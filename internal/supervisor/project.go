package supervisor

import (
	"time"

	"github.com/veritas-kanban/core/internal/model"
)

// Event is the small sum type the task-state projector (C9) consumes.
// Kept separate from the process-spawning code so the state machine can
// be driven and tested without ever spawning a child process.
type Event struct {
	Kind       EventKind
	Attempt    model.Attempt
	ExitCode   int
	DurationMs int64
}

// EventKind discriminates the transitions the projector understands.
type EventKind int

const (
	EventStarted EventKind = iota
	EventExited
	EventErrored
	EventStopRequested
)

// Apply is the pure projector function: (event) -> patch-to-task. It has
// no I/O and never touches the registry, the event bus, or telemetry —
// C6 calls it at each of the points spec.md §4.6 marks and applies the
// resulting patch through the task store.
func Apply(ev Event) model.TaskPatch {
	switch ev.Kind {
	case EventStarted:
		status := model.TaskStatusInProgress
		attempt := ev.Attempt
		return model.TaskPatch{Status: &status, Attempt: &attempt}

	case EventExited:
		status := model.TaskStatusReview
		attempt := ev.Attempt
		now := time.Now().UTC()
		attempt.Ended = &now
		if ev.ExitCode == 0 {
			attempt.Status = model.AttemptStatusComplete
		} else {
			attempt.Status = model.AttemptStatusFailed
		}
		code := ev.ExitCode
		attempt.ExitCode = &code
		return model.TaskPatch{Status: &status, Attempt: &attempt}

	case EventErrored:
		attempt := ev.Attempt
		now := time.Now().UTC()
		attempt.Ended = &now
		attempt.Status = model.AttemptStatusError
		return model.TaskPatch{Attempt: &attempt}

	case EventStopRequested:
		// stopAgent updates only the attempt record; the task's own
		// status is left for the exit handler to set once the child
		// actually terminates (spec.md §4.6).
		attempt := ev.Attempt
		now := time.Now().UTC()
		attempt.Ended = &now
		attempt.Status = model.AttemptStatusFailed
		return model.TaskPatch{Attempt: &attempt}

	default:
		return model.TaskPatch{}
	}
}
