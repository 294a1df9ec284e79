// Package idgen generates the short, prefixed, filename-safe identifiers
// used for telemetry events and supervised attempts.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// hex returns n hex characters carved out of a fresh UUIDv4, with the
// dashes stripped. A UUIDv4's hex digits are already randomly distributed,
// so truncation loses uniqueness guarantees proportionally to length but
// keeps the ids short and filename-safe, matching the teacher's own
// "8-char-random" / "12-char-random" attempt and event id convention.
func hex(n int) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(raw) {
		n = len(raw)
	}
	return raw[:n]
}

// Event returns a new telemetry event id: "evt_" + 12 hex characters.
func Event() string {
	return "evt_" + hex(12)
}

// Attempt returns a new attempt id: "attempt_" + 8 hex characters.
func Attempt() string {
	return "attempt_" + hex(8)
}
