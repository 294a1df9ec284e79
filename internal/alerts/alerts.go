// Package alerts implements C8, the failure alert pipe: on every
// run.error or run.completed{success:false} telemetry emit, publish at
// most one alert per task per deduplication window.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veritas-kanban/core/internal/model"
	"github.com/veritas-kanban/core/internal/notify"
	"github.com/veritas-kanban/core/internal/taskstore"
	"github.com/veritas-kanban/core/internal/telemetrylog"
)

// dedupWindow is the default per-task alert suppression window (spec.md
// §4.8).
const dedupWindow = 5 * time.Minute

// sweepThreshold triggers a stale-entry sweep of the dedup map once it
// grows past this size, so a long-running process doesn't accumulate one
// entry per task forever.
const sweepThreshold = 100

// maxErrorLen is the truncation length for the alert's error message,
// with an ellipsis appended when truncated.
const maxErrorLen = 200

// Pipe is C8. Enabled is read fresh on every Notify call so a live
// feature-flag toggle (notifications.onAgentFailure) takes effect
// without restarting the process.
type Pipe struct {
	sink    notify.Sink
	tasks   taskstore.Store
	enabled func() bool
	window  time.Duration

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// New builds a Pipe. enabled is called on every Notify to check the
// current value of the onAgentFailure feature flag.
func New(sink notify.Sink, tasks taskstore.Store, enabled func() bool) *Pipe {
	return &Pipe{
		sink:      sink,
		tasks:     tasks,
		enabled:   enabled,
		window:    dedupWindow,
		lastAlert: make(map[string]time.Time),
	}
}

// Notify is called synchronously from the telemetry emit path (spec.md
// §4.8) whenever a run.error event or a run.completed event with
// success=false is emitted. It is a no-op unless the event represents a
// failure and the feature flag is on.
func (p *Pipe) Notify(ctx context.Context, ev model.TelemetryEvent) {
	if !ev.IsFailure() {
		return
	}
	if p.enabled == nil || !p.enabled() {
		return
	}

	now := time.Now().UTC()

	p.mu.Lock()
	last, seen := p.lastAlert[ev.TaskID]
	if seen && now.Sub(last) < p.window {
		p.mu.Unlock()
		return
	}
	p.lastAlert[ev.TaskID] = now
	if len(p.lastAlert) > sweepThreshold {
		p.sweepLocked(now)
	}
	p.mu.Unlock()

	n := p.buildNotification(ctx, ev)
	if err := p.sink.CreateNotification(ctx, n); err != nil {
		telemetrylog.Warnf("alerts: create notification for task %s: %s", ev.TaskID, err)
	}
}

// sweepLocked removes dedup entries older than the window. Called with
// p.mu held.
func (p *Pipe) sweepLocked(now time.Time) {
	for taskID, last := range p.lastAlert {
		if now.Sub(last) >= p.window {
			delete(p.lastAlert, taskID)
		}
	}
}

func (p *Pipe) buildNotification(ctx context.Context, ev model.TelemetryEvent) notify.Notification {
	title := ev.TaskID
	if p.tasks != nil {
		if t, err := p.tasks.GetTask(ctx, ev.TaskID); err == nil && t != nil && t.Title != "" {
			title = t.Title
		}
	}

	errMsg := ev.Error
	if len(errMsg) > maxErrorLen {
		errMsg = errMsg[:maxErrorLen] + "…"
	}

	agent := ev.Agent
	if agent == "" {
		agent = "veritas"
	}

	return notify.Notification{
		Type:      "agent-failure",
		Title:     fmt.Sprintf("%s — %s", agent, title),
		Message:   errMsg,
		TaskID:    ev.TaskID,
		TaskTitle: title,
		Project:   ev.Project,
	}
}
