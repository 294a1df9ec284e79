package attemptlog

import "errors"

// ErrNotFound is returned by Read when the requested attempt log does not
// exist on disk.
var ErrNotFound = errors.New("attempt log not found")
