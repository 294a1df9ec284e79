// Package telemetrylog is the core's only logging surface. No example repo
// in the retrieval pack pulls in a structured-logging library (zerolog,
// zap, logrus, slog) — every one logs via fmt.Fprintf to stderr, including
// the teacher's own internal/engine and internal/cli packages. This
// package keeps that convention but gives every call site a level so
// "logged but swallowed" errors (spec.md §7's propagation policy) are
// visually distinct from fatal ones.
package telemetrylog

import (
	"fmt"
	"os"
)

// Warnf logs a warning: a condition the spec calls out as "logged" but
// never propagated (queue overflow, write failure, malformed line, dropped
// subscriber message).
func Warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "warn: "+format+"\n", args...)
}

// Errorf logs an error that is swallowed by design (best-effort append,
// background handler failure).
func Errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

// Infof logs routine lifecycle information (process start/stop, ticks).
func Infof(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "info: "+format+"\n", args...)
}
