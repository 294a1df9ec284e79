// Package fileutil holds small path-building helpers shared by the
// telemetry, trace, and attempt-log stores, all of which lay out their
// state under a single ".veritas-kanban" data root.
package fileutil

import "os"

// EnsureDir creates a directory and all parent directories with 0755
// permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
