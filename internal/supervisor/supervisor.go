package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/veritas-kanban/core/internal/eventbus"
	"github.com/veritas-kanban/core/internal/idgen"
	"github.com/veritas-kanban/core/internal/model"
	"github.com/veritas-kanban/core/internal/telemetrylog"
)

// StartAgent spawns a child process for taskID per spec.md §4.6: resolves
// preconditions, reserves the at-most-one registry slot, spawns the
// child, wires stdio/trace/telemetry/log, and updates the task.
func (s *Supervisor) StartAgent(ctx context.Context, taskID string, agentType string) (*model.Attempt, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil || task == nil {
		return nil, ErrTaskNotFound
	}
	if task.Type != model.TaskTypeCode {
		return nil, ErrTaskNotCode
	}
	if task.WorktreePath == "" {
		return nil, ErrNoWorktree
	}

	// Precondition: no live agent already registered for this task. This
	// is the same compare-and-insert that enforces the at-most-one
	// invariant under concurrency (spec.md §5).
	entry := &runningEntry{taskID: taskID}
	s.mu.Lock()
	if _, exists := s.running[taskID]; exists {
		s.mu.Unlock()
		return nil, ErrAgentAlreadyRunning
	}
	s.running[taskID] = entry
	s.mu.Unlock()

	cleanupReservation := func() {
		s.mu.Lock()
		delete(s.running, taskID)
		s.mu.Unlock()
	}

	cfg, err := s.agents.GetConfig()
	if err != nil {
		cleanupReservation()
		return nil, fmt.Errorf("loading agent config: %w", err)
	}
	resolvedType := agentType
	if resolvedType == "" {
		resolvedType = cfg.DefaultAgent
	}
	agent, ok := cfg.Find(resolvedType)
	if !ok {
		cleanupReservation()
		return nil, ErrAgentNotConfigured
	}
	if !agent.Enabled {
		cleanupReservation()
		return nil, ErrAgentDisabled
	}

	attemptID := idgen.Attempt()
	startedAt := time.Now().UTC()

	s.traces.StartTrace(attemptID, taskID, agent.Type, task.Project)
	s.traces.StartStep(attemptID, model.StepInit, map[string]interface{}{"worktreePath": task.WorktreePath})

	prompt := buildPrompt(task)

	cmd := exec.Command(agent.Command, agent.Args...)
	cmd.Dir = expandPath(task.WorktreePath)
	cmd.Env = append(append([]string{}, os.Environ()...), "FORCE_COLOR=1", "TERM=xterm-256color")
	cmd.SysProcAttr = processGroupAttr()

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		cleanupReservation()
		return nil, fmt.Errorf("%w: %s", ErrSpawnFailed, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		cleanupReservation()
		return nil, fmt.Errorf("%w: %s", ErrSpawnFailed, err)
	}
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		cleanupReservation()
		return nil, fmt.Errorf("%w: %s", ErrSpawnFailed, err)
	}

	attempt := model.Attempt{ID: attemptID, Agent: agent.Type, Status: model.AttemptStatusRunning, Started: startedAt}

	if startErr := cmd.Start(); startErr != nil {
		wrapped := fmt.Errorf("%w: %s", ErrSpawnFailed, startErr)
		s.failStart(ctx, entry, taskID, attemptID, attempt, wrapped)
		return nil, wrapped
	}

	entry.mu.Lock()
	entry.cmd = cmd
	entry.attemptID = attemptID
	entry.agent = agent.Type
	entry.project = task.Project
	entry.startedAt = startedAt
	if stdinClosingAgents[agent.Type] {
		_, _ = stdinPipe.Write([]byte(prompt))
		stdinPipe.Close()
	} else {
		entry.stdin = stdinPipe
	}
	entry.mu.Unlock()

	task.Attempt = &attempt
	if err := s.logs.InitLog(task, agent.Type, prompt); err != nil {
		telemetrylog.Errorf("supervisor: init log for %s/%s: %s", taskID, attemptID, err)
	}

	s.telemetry.Emit(model.TelemetryEvent{
		Type:   model.EventRunStarted,
		TaskID: taskID,
		Project: task.Project,
		Agent:  agent.Type,
	})

	s.traces.EndStep(attemptID, model.StepInit)
	s.traces.StartStep(attemptID, model.StepExecute, map[string]interface{}{"pid": cmd.Process.Pid})

	var ioWG sync.WaitGroup
	ioWG.Add(2)
	go s.drainOutput(&ioWG, taskID, attemptID, model.OutputStdout, stdoutPipe)
	go s.drainOutput(&ioWG, taskID, attemptID, model.OutputStderr, stderrPipe)

	go s.awaitExit(ctx, &ioWG, cmd, taskID, attemptID, attempt)

	patch := Apply(Event{Kind: EventStarted, Attempt: attempt})
	if err := s.tasks.UpdateTask(ctx, taskID, patch); err != nil {
		telemetrylog.Errorf("supervisor: update task %s after start: %s", taskID, err)
	}

	return &attempt, nil
}

// drainOutput copies one stdio stream into the event bus and the attempt
// log, chunk by chunk, preserving OS delivery order for that stream
// (spec.md §4.6 step 11).
func (s *Supervisor) drainOutput(wg *sync.WaitGroup, taskID, attemptID string, kind model.OutputKind, r io.Reader) {
	defer wg.Done()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			content := string(buf[:n])
			ts := time.Now().UTC()
			s.bus.Publish(taskID, eventbus.Event{
				Kind:       eventbus.KindOutput,
				OutputKind: string(kind),
				Content:    content,
				Timestamp:  ts.Format(time.RFC3339Nano),
			})
			s.logs.Append(taskID, attemptID, kind, content)
		}
		if err != nil {
			return
		}
	}
}

// awaitExit waits for both stdio drains to finish, then cmd.Wait(), then
// runs the exit or error handler.
func (s *Supervisor) awaitExit(ctx context.Context, ioWG *sync.WaitGroup, cmd *exec.Cmd, taskID, attemptID string, attempt model.Attempt) {
	ioWG.Wait()
	err := cmd.Wait()

	if err == nil {
		s.handleExit(ctx, taskID, attemptID, attempt, 0, "")
		return
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		signal := ""
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			signal = ws.Signal().String()
			if code < 0 {
				code = 128 + int(ws.Signal())
			}
		}
		s.handleExit(ctx, taskID, attemptID, attempt, code, signal)
		return
	}

	s.handleError(ctx, taskID, attemptID, attempt, err)
}

// handleExit implements spec.md §4.6's exit handler, in the exact order
// the spec lists (telemetry emitted before the execute step closes — see
// the "Open question" in spec.md §9 preserving that order).
func (s *Supervisor) handleExit(ctx context.Context, taskID, attemptID string, attempt model.Attempt, code int, signal string) {
	status := model.AttemptStatusComplete
	if code != 0 {
		status = model.AttemptStatusFailed
	}
	durationMs := time.Since(attempt.Started).Milliseconds()

	patch := Apply(Event{Kind: EventExited, Attempt: attempt, ExitCode: code, DurationMs: durationMs})
	if err := s.tasks.UpdateTask(ctx, taskID, patch); err != nil {
		telemetrylog.Errorf("supervisor: update task %s after exit: %s", taskID, err)
	}

	success := code == 0
	exitCode := code
	d := durationMs
	s.telemetry.Emit(model.TelemetryEvent{
		Type:       model.EventRunCompleted,
		TaskID:     taskID,
		Project:    s.projectFor(taskID),
		Agent:      attempt.Agent,
		DurationMs: &d,
		ExitCode:   &exitCode,
		Success:    &success,
	})

	s.traces.EndStep(attemptID, model.StepExecute)
	s.traces.StartStep(attemptID, model.StepComplete, map[string]interface{}{"exitCode": code})
	s.traces.EndStep(attemptID, model.StepComplete)
	traceStatus := model.TraceCompleted
	if !success {
		traceStatus = model.TraceFailed
	}
	s.traces.CompleteTrace(attemptID, traceStatus)

	traceLevelStatus := "complete"
	if !success {
		traceLevelStatus = "failed"
	}
	s.bus.Publish(taskID, eventbus.Event{
		Kind:     eventbus.KindComplete,
		ExitCode: code,
		Signal:   signal,
		Status:   traceLevelStatus,
	})

	trailer := fmt.Sprintf("\n---\nAgent exited with code %d", code)
	if signal != "" {
		trailer += fmt.Sprintf(" (signal: %s)", signal)
	}
	trailer += "\n"
	s.logs.Append(taskID, attemptID, model.OutputSystem, trailer)

	s.mu.Lock()
	delete(s.running, taskID)
	s.mu.Unlock()
}

// projectFor looks up the project of a still-registered running entry, so
// exit/error telemetry events carry the same project tag as the
// run.started event that opened the attempt.
func (s *Supervisor) projectFor(taskID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.running[taskID]; ok {
		return entry.project
	}
	return ""
}

// handleError implements spec.md §4.6's error handler.
func (s *Supervisor) handleError(ctx context.Context, taskID, attemptID string, attempt model.Attempt, runErr error) {
	patch := Apply(Event{Kind: EventErrored, Attempt: attempt})
	if err := s.tasks.UpdateTask(ctx, taskID, patch); err != nil {
		telemetrylog.Errorf("supervisor: update task %s after error: %s", taskID, err)
	}

	s.telemetry.Emit(model.TelemetryEvent{
		Type:    model.EventRunError,
		TaskID:  taskID,
		Project: s.projectFor(taskID),
		Agent:   attempt.Agent,
		Error:   runErr.Error(),
	})

	s.traces.StartStep(attemptID, model.StepError, map[string]interface{}{"message": runErr.Error()})
	s.traces.CompleteTrace(attemptID, model.TraceError)

	s.bus.Publish(taskID, eventbus.Event{Kind: eventbus.KindError, Message: runErr.Error()})

	s.logs.Append(taskID, attemptID, model.OutputSystem, fmt.Sprintf("\n---\nAgent error: %s\n", runErr.Error()))

	s.mu.Lock()
	delete(s.running, taskID)
	s.mu.Unlock()
}

// failStart handles a spawn failure (cmd.Start() error). Because the
// registry slot was already reserved as a precondition to prevent a
// concurrent double-spawn, a spawn failure is a "SpawnFailed after
// registration" per spec.md §9 — it's converted to a terminal error
// transition so the registry is cleaned up and any subscriber sees a
// terminal event, in addition to the error being returned to the caller
// (Go's exec.Cmd.Start() fails synchronously, unlike Node's async spawn).
func (s *Supervisor) failStart(ctx context.Context, entry *runningEntry, taskID, attemptID string, attempt model.Attempt, err error) {
	_ = entry
	s.handleError(ctx, taskID, attemptID, attempt, err)
}

// SendMessage writes a message to the running agent's stdin, appends it
// to the attempt log, and republishes it as a synthetic stdin output
// event (spec.md §4.6).
func (s *Supervisor) SendMessage(taskID, message string) error {
	s.mu.Lock()
	entry, ok := s.running[taskID]
	s.mu.Unlock()
	if !ok {
		return ErrNoLiveAgent
	}

	entry.mu.Lock()
	stdin := entry.stdin
	attemptID := entry.attemptID
	entry.mu.Unlock()

	if stdin == nil {
		return ErrStdinNotWritable
	}

	if _, err := stdin.Write([]byte(message + "\n")); err != nil {
		telemetrylog.Errorf("supervisor: writing stdin for %s: %s", taskID, err)
		return ErrStdinNotWritable
	}

	s.logs.Append(taskID, attemptID, model.OutputStdin, message)
	s.bus.Publish(taskID, eventbus.Event{
		Kind:       eventbus.KindOutput,
		OutputKind: string(model.OutputStdin),
		Content:    message,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	return nil
}

// StopAgent sends SIGTERM to the running agent's process group and arms a
// grace-period timer that escalates to SIGKILL if the process is still
// registered when it fires. It returns immediately — the exit handler
// still runs asynchronously and finalizes state (spec.md §4.6).
func (s *Supervisor) StopAgent(ctx context.Context, taskID string) error {
	s.mu.Lock()
	entry, ok := s.running[taskID]
	s.mu.Unlock()
	if !ok {
		return ErrNoLiveAgent
	}

	entry.mu.Lock()
	if entry.stopping {
		entry.mu.Unlock()
		return nil
	}
	if entry.cmd == nil {
		entry.mu.Unlock()
		return ErrNoLiveAgent
	}
	entry.stopping = true
	pid := entry.cmd.Process.Pid
	attemptID := entry.attemptID
	agent := entry.agent
	started := entry.startedAt
	entry.mu.Unlock()

	signalProcessGroup(pid, syscall.SIGTERM)

	attempt := model.Attempt{ID: attemptID, Agent: agent, Status: model.AttemptStatusRunning, Started: started}
	patch := Apply(Event{Kind: EventStopRequested, Attempt: attempt})
	if err := s.tasks.UpdateTask(ctx, taskID, patch); err != nil {
		telemetrylog.Errorf("supervisor: update task %s after stop request: %s", taskID, err)
	}

	s.logs.Append(taskID, attemptID, model.OutputSystem, "\n---\nAgent stopped by user\n")

	time.AfterFunc(StopGracePeriod, func() {
		s.mu.Lock()
		still, stillRunning := s.running[taskID]
		s.mu.Unlock()
		if stillRunning && still == entry {
			signalProcessGroup(pid, syscall.SIGKILL)
		}
	})

	return nil
}

// AgentStatus returns the in-flight attempt for a task, or nil if no
// agent is currently running for it.
func (s *Supervisor) AgentStatus(taskID string) *model.Attempt {
	s.mu.Lock()
	entry, ok := s.running[taskID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return &model.Attempt{
		ID:      entry.attemptID,
		Agent:   entry.agent,
		Status:  model.AttemptStatusRunning,
		Started: entry.startedAt,
	}
}

// AttemptLog returns the full contents of an attempt's log.
func (s *Supervisor) AttemptLog(taskID, attemptID string) (string, error) {
	return s.logs.Read(taskID, attemptID)
}

// ListAttempts returns every attempt id recorded for a task, derived from
// the attempt log filenames under logs/.
func (s *Supervisor) ListAttempts(root, taskID string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "logs", taskID+"_*.md"))
	if err != nil {
		return nil, fmt.Errorf("listing attempts for %s: %w", taskID, err)
	}
	out := make([]string, 0, len(matches))
	prefix := taskID + "_"
	for _, m := range matches {
		name := filepath.Base(m)
		name = name[:len(name)-len(".md")]
		if len(name) > len(prefix) {
			out = append(out, name[len(prefix):])
		}
	}
	return out, nil
}

// Subscribe registers a new event-bus subscriber for a task (spec.md §6
// external subscriber interface); running reports whether an agent is
// currently live for the task at subscription time.
func (s *Supervisor) Subscribe(taskID string) (<-chan eventbus.Event, eventbus.Cancel, bool) {
	ch, cancel := s.bus.Subscribe(taskID)
	running := s.AgentStatus(taskID) != nil
	return ch, cancel, running
}
