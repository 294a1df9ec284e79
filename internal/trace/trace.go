// Package trace implements C4: the in-memory trace tree per attempt,
// persisted to traces/<attemptId>.json on completion.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/veritas-kanban/core/internal/model"
	"github.com/veritas-kanban/core/internal/telemetrylog"
)

// Recorder is the in-memory trace map plus on-disk persistence.
type Recorder struct {
	root    string
	enabled bool

	mu     sync.Mutex
	traces map[string]*model.Trace
}

// New creates a Recorder rooted at the given ".veritas-kanban" directory.
// When enabled is false, all mutation operations are no-ops (spec.md
// §4.4's "sentinel" behavior) but reads still return persisted traces.
func New(root string, enabled bool) *Recorder {
	return &Recorder{root: root, enabled: enabled, traces: make(map[string]*model.Trace)}
}

func (r *Recorder) path(attemptID string) string {
	return filepath.Join(r.root, "traces", attemptID+".json")
}

// StartTrace creates a running trace for an attempt. No-op if tracing is
// disabled.
func (r *Recorder) StartTrace(attemptID, taskID, agent, project string) *model.Trace {
	if !r.enabled {
		return nil
	}
	t := &model.Trace{
		TraceID:   attemptID,
		TaskID:    taskID,
		Agent:     agent,
		Project:   project,
		StartedAt: time.Now().UTC(),
		Status:    model.TraceRunning,
	}
	r.mu.Lock()
	r.traces[attemptID] = t
	r.mu.Unlock()
	return t
}

// StartStep appends a new open step to the trace. No-op if tracing is
// disabled or the trace doesn't exist.
func (r *Recorder) StartStep(attemptID string, stepType model.StepType, metadata map[string]interface{}) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.traces[attemptID]
	if !ok {
		return
	}
	t.Steps = append(t.Steps, &model.TraceStep{
		Type:      stepType,
		StartedAt: time.Now().UTC(),
		Metadata:  metadata,
	})
}

// EndStep closes the most recently started open step of the given type.
// Per spec.md §9, this reverse-scans the step list and stops at the first
// match whose EndedAt is unset; if none is found, it is a silent no-op by
// design.
func (r *Recorder) EndStep(attemptID string, stepType model.StepType) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.traces[attemptID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	for i := len(t.Steps) - 1; i >= 0; i-- {
		s := t.Steps[i]
		if s.Type == stepType && s.EndedAt == nil {
			s.EndedAt = &now
			d := now.Sub(s.StartedAt).Milliseconds()
			s.DurationMs = &d
			return
		}
	}
}

// CompleteTrace closes any still-open steps (inheriting EndedAt = the
// trace's EndedAt, per spec.md §3's invariant), sets TotalDurationMs,
// persists the trace as JSON, and removes it from memory.
func (r *Recorder) CompleteTrace(attemptID string, status model.TraceStatus) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	t, ok := r.traces[attemptID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.traces, attemptID)
	r.mu.Unlock()

	now := time.Now().UTC()
	t.EndedAt = &now
	d := now.Sub(t.StartedAt).Milliseconds()
	t.TotalDurationMs = &d
	t.Status = status

	for _, s := range t.Steps {
		if s.EndedAt == nil {
			s.EndedAt = &now
			sd := now.Sub(s.StartedAt).Milliseconds()
			s.DurationMs = &sd
		}
	}

	if err := r.persist(t); err != nil {
		telemetrylog.Errorf("trace persist %s: %s", attemptID, err)
	}
}

func (r *Recorder) persist(t *model.Trace) error {
	path := r.path(t.TraceID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating traces directory: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing trace file: %w", err)
	}
	return nil
}

// GetTrace looks up a trace in memory first, falling back to the
// persisted file. Reads work even when tracing is disabled.
func (r *Recorder) GetTrace(attemptID string) (*model.Trace, error) {
	r.mu.Lock()
	if t, ok := r.traces[attemptID]; ok {
		r.mu.Unlock()
		return t, nil
	}
	r.mu.Unlock()

	data, err := os.ReadFile(r.path(attemptID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading trace file: %w", err)
	}
	var t model.Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing trace file: %w", err)
	}
	return &t, nil
}

// ListTraces returns every trace for a task — in-memory plus on-disk,
// skipping any on-disk trace that's still in memory — sorted by
// StartedAt descending.
func (r *Recorder) ListTraces(taskID string) ([]*model.Trace, error) {
	r.mu.Lock()
	inMemory := make(map[string]*model.Trace)
	var out []*model.Trace
	for id, t := range r.traces {
		if t.TaskID == taskID {
			inMemory[id] = t
			out = append(out, t)
		}
	}
	r.mu.Unlock()

	dir := filepath.Join(r.root, "traces")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			sortTracesDesc(out)
			return out, nil
		}
		return nil, fmt.Errorf("listing traces directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		attemptID := trimJSONExt(e.Name())
		if _, skip := inMemory[attemptID]; skip {
			continue
		}
		t, err := r.GetTrace(attemptID)
		if err != nil {
			telemetrylog.Warnf("trace listTraces: skipping %s: %s", e.Name(), err)
			continue
		}
		if t != nil && t.TaskID == taskID {
			out = append(out, t)
		}
	}

	sortTracesDesc(out)
	return out, nil
}

func trimJSONExt(name string) string {
	const ext = ".json"
	if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
		return name[:len(name)-len(ext)]
	}
	return name
}

func sortTracesDesc(traces []*model.Trace) {
	for i := 1; i < len(traces); i++ {
		for j := i; j > 0 && traces[j-1].StartedAt.Before(traces[j].StartedAt); j-- {
			traces[j-1], traces[j] = traces[j], traces[j-1]
		}
	}
}
