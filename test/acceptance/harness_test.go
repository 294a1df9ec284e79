package acceptance_test

import (
	"os"
	"path/filepath"

	"github.com/veritas-kanban/core/internal/agentconfig"
	"github.com/veritas-kanban/core/internal/attemptlog"
	"github.com/veritas-kanban/core/internal/eventbus"
	"github.com/veritas-kanban/core/internal/model"
	"github.com/veritas-kanban/core/internal/supervisor"
	"github.com/veritas-kanban/core/internal/taskstore"
	"github.com/veritas-kanban/core/internal/telemetry"
	"github.com/veritas-kanban/core/internal/trace"
)

// harness wires a full Supervisor over temp-directory stores, the same
// way cli.runServe does, so scenario tests exercise the real
// collaborators rather than mocks.
type harness struct {
	dir  string
	sup  *supervisor.Supervisor
	bus  *eventbus.Bus
	tel  *telemetry.Store
	logs *attemptlog.Writer
	tr   *trace.Recorder
	tx   *taskstore.InMemoryStore
}

func newHarness(agents []agentconfig.Agent, defaultAgent string) *harness {
	dir, err := os.MkdirTemp("", "veritas-acceptance-*")
	if err != nil {
		panic(err)
	}

	tel := telemetry.New(dir, telemetry.Config{Enabled: true, RetentionDays: 30, Traces: true, CompressAfterDays: 7})
	logs := attemptlog.New(filepath.Join(dir, "logs"))
	tr := trace.New(filepath.Join(dir, "traces"), true)
	bus := eventbus.New()
	tx := taskstore.NewInMemoryStore()
	ac := &agentconfig.StaticConfig{Cfg: &agentconfig.Config{DefaultAgent: defaultAgent, Agents: agents}}

	sup := supervisor.New(tx, ac, logs, tel, tr, bus)

	return &harness{dir: dir, sup: sup, bus: bus, tel: tel, logs: logs, tr: tr, tx: tx}
}

func (h *harness) close() {
	h.tel.Close()
	h.logs.Close()
	os.RemoveAll(h.dir)
}

func (h *harness) seedCodeTask(id, worktree string) *model.Task {
	t := &model.Task{
		ID:           id,
		Title:        "do the thing",
		Type:         model.TaskTypeCode,
		Status:       model.TaskStatusTodo,
		WorktreePath: worktree,
	}
	h.tx.Seed(t)
	return t
}

// shellAgent returns an Agent config that invokes /bin/sh -c script, used
// as a deterministic, fast stand-in for a real external agent CLI.
func shellAgent(agentType, script string) agentconfig.Agent {
	return agentconfig.Agent{
		Type:    agentType,
		Command: "/bin/sh",
		Args:    []string{"-c", script},
		Enabled: true,
		Name:    agentType,
	}
}
