package telemetry

import (
	"bufio"
	"encoding/json"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/veritas-kanban/core/internal/model"
	"github.com/veritas-kanban/core/internal/telemetrylog"
)

// Query selects which telemetry events to return.
type Query struct {
	Types   []model.EventType
	Since   string // ISO-8601 UTC, inclusive
	Until   string // ISO-8601 UTC, inclusive
	TaskID  string
	Project string
	Limit   int
}

// matches applies every configured filter to one event, in the order
// spec.md §4.3 lists: type, timestamp range, taskId, project.
func (q *Query) matches(ev *model.TelemetryEvent) bool {
	if len(q.Types) > 0 {
		found := false
		for _, t := range q.Types {
			if ev.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Since != "" && ev.Timestamp < q.Since {
		return false
	}
	if q.Until != "" && ev.Timestamp > q.Until {
		return false
	}
	if q.TaskID != "" && ev.TaskID != q.TaskID {
		return false
	}
	if q.Project != "" && ev.Project != q.Project {
		return false
	}
	return true
}

// candidateFilesInRange resolves which on-disk files could contain events
// in [since, until], by filename date alone — files outside the range are
// never opened (spec.md §9).
func (s *Store) candidateFilesInRange(since, until string) ([]dateFile, error) {
	all, err := s.candidateFiles()
	if err != nil {
		return nil, err
	}
	if since == "" && until == "" {
		return all, nil
	}
	sinceDate, untilDate := "", ""
	if since != "" {
		sinceDate = dateOf(since)
	}
	if until != "" {
		untilDate = dateOf(until)
	}
	var out []dateFile
	for _, f := range all {
		if sinceDate != "" && f.date < sinceDate {
			continue
		}
		if untilDate != "" && f.date > untilDate {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// readFile streams one NDJSON (optionally gzipped) file, calling fn for
// every successfully parsed event. Blank lines and unparseable lines are
// skipped with a warning; the read is never aborted by a bad line.
func readFile(f dateFile, fn func(*model.TelemetryEvent)) error {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	var r io.Reader = file
	if f.compressed {
		gz, err := gunzipReader(file)
		if err != nil {
			telemetrylog.Warnf("telemetry query: skipping unreadable gzip file %s: %s", f.path, err)
			return nil
		}
		defer gz.Close()
		r = gz
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev model.TelemetryEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			telemetrylog.Warnf("telemetry query: skipping malformed line in %s: %s", f.path, err)
			continue
		}
		fn(&ev)
	}
	return sc.Err()
}

// Query streams candidate files, applies filters, sorts the result by
// timestamp descending (exact string compare on ISO-8601), and truncates
// to Limit if set.
func (s *Store) Query(q Query) ([]*model.TelemetryEvent, error) {
	files, err := s.candidateFilesInRange(q.Since, q.Until)
	if err != nil {
		return nil, err
	}

	results, err := streamFilesConcurrently(files, func(ev *model.TelemetryEvent) bool {
		return q.matches(ev)
	})
	if err != nil {
		return nil, err
	}

	sortEventsDesc(results)
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// streamFilesConcurrently fans candidate files out across goroutines via
// golang.org/x/sync/errgroup (grounded on nevindra-oasis and
// steveyegge-vc's shared use of golang.org/x/sync), merging each file's
// matches under one mutex. Order within a file is preserved; the merge
// happens before the caller's final sort.
func streamFilesConcurrently(files []dateFile, keep func(*model.TelemetryEvent) bool) ([]*model.TelemetryEvent, error) {
	var (
		mu  sync.Mutex
		out []*model.TelemetryEvent
	)

	g := new(errgroup.Group)
	for _, f := range files {
		f := f
		g.Go(func() error {
			var local []*model.TelemetryEvent
			err := readFile(f, func(ev *model.TelemetryEvent) {
				if keep(ev) {
					local = append(local, ev)
				}
			})
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func sortEventsDesc(events []*model.TelemetryEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp > events[j].Timestamp
	})
}

// BulkTaskEvents returns every event for each of the given taskIDs,
// keyed by taskID, each value sorted by timestamp descending. Empty input
// short-circuits to an empty map without touching disk.
func (s *Store) BulkTaskEvents(taskIDs []string) (map[string][]*model.TelemetryEvent, error) {
	if len(taskIDs) == 0 {
		return map[string][]*model.TelemetryEvent{}, nil
	}

	wanted := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		wanted[id] = true
	}

	files, err := s.candidateFiles()
	if err != nil {
		return nil, err
	}

	all, err := streamFilesConcurrently(files, func(ev *model.TelemetryEvent) bool {
		return wanted[ev.TaskID]
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string][]*model.TelemetryEvent, len(taskIDs))
	for _, id := range taskIDs {
		out[id] = nil
	}
	for _, ev := range all {
		out[ev.TaskID] = append(out[ev.TaskID], ev)
	}
	for id := range out {
		sortEventsDesc(out[id])
	}
	return out, nil
}

// ForEachInRange streams every candidate file in [since, until] and calls
// fn for every parsed event whose timestamp lies in [since, until] (both
// inclusive), without collecting them into a slice first. This underlies
// C7's allMetrics single-pass construction.
func (s *Store) ForEachInRange(since, until string, fn func(*model.TelemetryEvent)) error {
	files, err := s.candidateFilesInRange(since, until)
	if err != nil {
		return err
	}
	inRange := func(ev *model.TelemetryEvent) {
		if (since != "" && ev.Timestamp < since) || (until != "" && ev.Timestamp > until) {
			return
		}
		fn(ev)
	}
	for _, f := range files {
		if err := readFile(f, inRange); err != nil {
			return err
		}
	}
	return nil
}

// Percentile returns the value at index ceil(p/100*n)-1 of a sorted
// sequence, clamped to [0, n-1]. Percentile of an empty sequence is 0.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}
