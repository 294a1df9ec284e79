package supervisor

import (
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/veritas-kanban/core/internal/agentconfig"
	"github.com/veritas-kanban/core/internal/attemptlog"
	"github.com/veritas-kanban/core/internal/eventbus"
	"github.com/veritas-kanban/core/internal/taskstore"
	"github.com/veritas-kanban/core/internal/telemetry"
	"github.com/veritas-kanban/core/internal/trace"
)

// StopGracePeriod is how long stopAgent waits after SIGTERM before
// escalating to SIGKILL (spec.md §4.6).
var StopGracePeriod = 5 * time.Second

// runningEntry is the canonical at-most-one-per-task registry record
// (spec.md §4.6 step 7 / §5).
type runningEntry struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser // nil once closed or never opened writable
	taskID    string
	attemptID string
	agent     string
	project   string
	startedAt time.Time

	mu       sync.Mutex
	stopping bool
}

// Supervisor implements C6 (Agent Supervisor), wiring together the task
// store, agent configuration, attempt log (C1), telemetry store (C2),
// trace recorder (C4), and event bus (C5) per spec.md §9's design note:
// "carry them as explicit dependencies on a Supervisor value so tests can
// build fresh instances."
type Supervisor struct {
	tasks      taskstore.Store
	agents     agentconfig.Provider
	logs       *attemptlog.Writer
	telemetry  *telemetry.Store
	traces     *trace.Recorder
	bus        *eventbus.Bus

	mu      sync.Mutex
	running map[string]*runningEntry
}

// New constructs a Supervisor from its explicit dependencies.
func New(
	tasks taskstore.Store,
	agents agentconfig.Provider,
	logs *attemptlog.Writer,
	tel *telemetry.Store,
	traces *trace.Recorder,
	bus *eventbus.Bus,
) *Supervisor {
	return &Supervisor{
		tasks:     tasks,
		agents:    agents,
		logs:      logs,
		telemetry: tel,
		traces:    traces,
		bus:       bus,
		running:   make(map[string]*runningEntry),
	}
}
