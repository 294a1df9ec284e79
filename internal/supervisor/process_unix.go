package supervisor

import (
	"syscall"

	"github.com/veritas-kanban/core/internal/telemetrylog"
)

// processGroupAttr puts the spawned child in its own process group so
// that stopAgent's SIGTERM/SIGKILL reach any children it forks (shells,
// wrapper scripts), not just the direct child. Grounded on the teacher's
// own use of syscall for process-liveness checks in
// internal/engine/state.go's IsProcessAlive, generalized from a liveness
// *check* to a *signal send*.
func processGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// signalProcessGroup sends sig to the process group led by pid. Failures
// are logged and swallowed — stopAgent returns immediately regardless
// (spec.md §4.6).
func signalProcessGroup(pid int, sig syscall.Signal) {
	if err := syscall.Kill(-pid, sig); err != nil {
		telemetrylog.Warnf("supervisor: sending %s to process group %d: %s", sig, pid, err)
	}
}
