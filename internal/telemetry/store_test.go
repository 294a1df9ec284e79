package telemetry

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-kanban/core/internal/model"
)

func TestEmitFlushWritesEveryEventOnce(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, Config{Enabled: true, RetentionDays: 30, Traces: true, CompressAfterDays: 7})
	defer s.Close()

	const n = 10
	ids := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		ev := s.Emit(model.TelemetryEvent{Type: model.EventRunStarted, TaskID: "t1", Agent: "claude-code"})
		ids[ev.ID] = true
	}
	s.Flush()

	date := time.Now().UTC().Format("2006-01-02")
	data, err := os.ReadFile(s.fileFor(date))
	require.NoError(t, err)

	lines := splitNonEmptyLines(string(data))
	assert.Len(t, lines, n)
	assert.Len(t, ids, n, "every emitted event must have a unique id")
}

func TestQuerySinceReturnsOnlyMatchingDateDescSorted(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, Config{Enabled: true, RetentionDays: 30, Traces: true, CompressAfterDays: 7})
	defer s.Close()

	writeDatedEvents(t, s, "2024-06-01", 10)
	writeDatedEvents(t, s, "2024-06-02", 5)

	got, err := s.Query(Query{Since: "2024-06-02T00:00:00.000000000Z"})
	require.NoError(t, err)
	assert.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Timestamp, got[i].Timestamp)
	}
}

func TestRetentionSweepIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, Config{Enabled: true, RetentionDays: 30, Traces: true, CompressAfterDays: 7})
	defer s.Close()

	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	writeDatedEvents(t, s, "2024-06-30", 1) // D-1
	writeDatedEvents(t, s, "2024-06-23", 1) // D-8
	writeDatedEvents(t, s, "2024-05-22", 1) // D-40

	require.NoError(t, s.sweep(now))
	first, err := s.candidateFiles()
	require.NoError(t, err)

	require.NoError(t, s.sweep(now))
	second, err := s.candidateFiles()
	require.NoError(t, err)

	assert.Equal(t, first, second)

	var sawGz, sawPlain bool
	for _, f := range second {
		if f.date == "2024-06-30" {
			sawPlain = true
			assert.False(t, f.compressed)
		}
		if f.date == "2024-06-23" {
			sawGz = true
			assert.True(t, f.compressed)
		}
		assert.NotEqual(t, "2024-05-22", f.date, "D-40 must be deleted by retention")
	}
	assert.True(t, sawPlain)
	assert.True(t, sawGz)
}

func TestCompressionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, Config{Enabled: true, RetentionDays: 30, Traces: true, CompressAfterDays: 7})
	defer s.Close()

	writeDatedEvents(t, s, "2024-01-01", 20)
	files, err := s.candidateFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)

	before, err := os.ReadFile(files[0].path)
	require.NoError(t, err)

	require.NoError(t, s.compress(files[0]))

	after, err := s.candidateFiles()
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.True(t, after[0].compressed)

	r, err := gunzipReader(mustOpen(t, after[0].path))
	require.NoError(t, err)
	defer r.Close()
	data := mustReadAll(t, r)
	assert.Equal(t, string(before), string(data))
}

func TestPercentile(t *testing.T) {
	cases := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty", nil, 50, 0},
		{"single", []float64{42}, 1, 42},
		{"single", []float64{42}, 100, 42},
		{"p50 of 10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 50, 5},
		{"p95 of 10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 95, 10},
		{"p100", []float64{1, 2, 3}, 100, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Percentile(tc.sorted, tc.p))
		})
	}
}

func writeDatedEvents(t *testing.T, s *Store, date string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ev := &model.TelemetryEvent{
			ID:        date + "-" + itoa(i),
			Timestamp: date + "T00:00:00.000000000Z",
			Type:      model.EventRunStarted,
			TaskID:    "t1",
			Agent:     "claude-code",
		}
		s.writeOne(ev)
	}
}

func itoa(i int) string {
	digits := "0123456789"
	if i == 0 {
		return "0"
	}
	var out []byte
	for i > 0 {
		out = append([]byte{digits[i%10]}, out...)
		i /= 10
	}
	return string(out)
}

func splitNonEmptyLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func mustOpen(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	return f
}

func mustReadAll(t *testing.T, r interface{ Read([]byte) (int, error) }) []byte {
	t.Helper()
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, err := r.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	return buf
}
