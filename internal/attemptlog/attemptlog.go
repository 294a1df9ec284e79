// Package attemptlog implements C1: the append-only per-(task,attempt)
// markdown log. Writes are serialized per file so concurrent appends
// never interleave bytes, generalizing the teacher's LogManager
// (internal/engine/engine.go) from one *os.File per concern name to one
// *os.File per (taskId, attemptId).
package attemptlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/veritas-kanban/core/internal/model"
	"github.com/veritas-kanban/core/internal/telemetrylog"
)

// Writer manages per-attempt log files under root/logs.
type Writer struct {
	root string

	mu    sync.Mutex
	files map[string]*fileHandle
}

type fileHandle struct {
	mu sync.Mutex
	f  *os.File
}

// New creates a Writer rooted at the given ".veritas-kanban" directory.
func New(root string) *Writer {
	return &Writer{root: root, files: make(map[string]*fileHandle)}
}

func (w *Writer) logPath(taskID, attemptID string) string {
	return filepath.Join(w.root, "logs", fmt.Sprintf("%s_%s.md", taskID, attemptID))
}

func (w *Writer) handle(taskID, attemptID string) (*fileHandle, error) {
	key := taskID + "_" + attemptID

	w.mu.Lock()
	defer w.mu.Unlock()

	if fh, ok := w.files[key]; ok {
		return fh, nil
	}

	path := w.logPath(taskID, attemptID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating logs directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening attempt log %s: %w", path, err)
	}
	fh := &fileHandle{f: f}
	w.files[key] = fh
	return fh, nil
}

// InitLog writes the fixed markdown header for a new attempt.
func (w *Writer) InitLog(task *model.Task, agent, prompt string) error {
	fh, err := w.handle(task.ID, task.Attempt.ID)
	if err != nil {
		telemetrylog.Errorf("attemptlog init %s/%s: %s", task.ID, task.Attempt.ID, err)
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Task: %s (%s)\n\n", task.Title, task.ID))
	sb.WriteString(fmt.Sprintf("- Agent: %s\n", agent))
	sb.WriteString(fmt.Sprintf("- Started: %s\n", time.Now().UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("- Worktree: %s\n\n", task.WorktreePath))
	sb.WriteString("## Prompt\n\n```\n")
	sb.WriteString(prompt)
	sb.WriteString("\n```\n\n## Output\n")

	fh.mu.Lock()
	defer fh.mu.Unlock()
	if _, err := fh.f.WriteString(sb.String()); err != nil {
		telemetrylog.Errorf("attemptlog init write %s/%s: %s", task.ID, task.Attempt.ID, err)
	}
	return nil
}

// Append writes one chunk of content to the attempt log, formatted
// according to its kind. I/O errors are logged and swallowed per
// spec.md §4.1 — appends are best-effort on the supervisor's main path.
func (w *Writer) Append(taskID, attemptID string, kind model.OutputKind, content string) {
	fh, err := w.handle(taskID, attemptID)
	if err != nil {
		telemetrylog.Errorf("attemptlog append %s/%s: %s", taskID, attemptID, err)
		return
	}

	var out string
	switch kind {
	case model.OutputStdin:
		out = "\n**You:**\n" + content + "\n"
	case model.OutputSystem:
		out = content
	default: // stdout, stderr
		out = content
	}

	fh.mu.Lock()
	defer fh.mu.Unlock()
	if _, err := fh.f.WriteString(out); err != nil {
		telemetrylog.Errorf("attemptlog append write %s/%s: %s", taskID, attemptID, err)
	}
}

// Read returns the full contents of an attempt log.
func (w *Writer) Read(taskID, attemptID string) (string, error) {
	path := w.logPath(taskID, attemptID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading attempt log %s: %w", path, err)
	}
	return string(data), nil
}

// Close closes all open file handles.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	for key, fh := range w.files {
		fh.mu.Lock()
		if err := fh.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing attempt log %s: %w", key, err)
		}
		fh.mu.Unlock()
	}
	w.files = make(map[string]*fileHandle)
	return firstErr
}
