package metrics

import (
	"context"
	"regexp"
	"sort"
	"strconv"

	"github.com/veritas-kanban/core/internal/model"
)

// VelocityTrend is accelerating/slowing/steady, per a +/-10% band on the
// rolling 3-sprint average (spec.md §4.7).
type VelocityTrend string

const (
	VelocityAccelerating VelocityTrend = "accelerating"
	VelocitySlowing      VelocityTrend = "slowing"
	VelocitySteady       VelocityTrend = "steady"
)

const velocityBandPct = 10.0

// SprintVelocity is one sprint's slice of VelocityMetrics.
type SprintVelocity struct {
	Sprint          string
	Completed       int
	Total           int
	ByType          map[string]int
	RollingAverage3 float64
}

// VelocityMetrics is velocityMetrics' result shape.
type VelocityMetrics struct {
	Sprints []SprintVelocity
	Trend   VelocityTrend
}

var sprintSuffixRe = regexp.MustCompile(`(\d+)\s*$`)

// sprintSortKey extracts the trailing numeric suffix of a sprint label
// for ordering ("Sprint 9" before "Sprint 10"). Sprints without a
// trailing number sort before all numbered sprints, in label order.
func sprintSortKey(label string) (int, bool) {
	m := sprintSuffixRe.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// VelocityMetrics groups tasks by Sprint, sorts sprints by numeric
// suffix, and reports per-sprint completion counts, a rolling 3-sprint
// average, and an overall accelerating/slowing/steady trend comparing
// the mean of the last 3 sprints against the mean of the previous 3.
func (a *Aggregator) VelocityMetrics(ctx context.Context, project string, limit int) (*VelocityMetrics, error) {
	if limit <= 0 {
		limit = 10
	}

	active, err := a.tasks.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	archived, err := a.tasks.ListArchivedTasks(ctx)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		completed int
		total     int
		byType    map[string]int
	}
	bySprint := map[string]*bucket{}

	absorb := func(t *model.Task, isArchived bool) {
		if project != "" && t.Project != project {
			return
		}
		if t.Sprint == "" {
			return
		}
		b := bySprint[t.Sprint]
		if b == nil {
			b = &bucket{byType: make(map[string]int)}
			bySprint[t.Sprint] = b
		}
		b.total++
		if isArchived || t.Status == model.TaskStatusDone {
			b.completed++
			b.byType[string(t.Type)]++
		}
	}

	for _, t := range active {
		absorb(t, false)
	}
	for _, t := range archived {
		absorb(t, true)
	}

	labels := make([]string, 0, len(bySprint))
	for label := range bySprint {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		ni, oki := sprintSortKey(labels[i])
		nj, okj := sprintSortKey(labels[j])
		if oki && okj {
			return ni < nj
		}
		if oki != okj {
			return okj
		}
		return labels[i] < labels[j]
	})
	if len(labels) > limit {
		labels = labels[len(labels)-limit:]
	}

	sprints := make([]SprintVelocity, 0, len(labels))
	completions := make([]float64, 0, len(labels))
	for i, label := range labels {
		b := bySprint[label]
		rollStart := i - 2
		if rollStart < 0 {
			rollStart = 0
		}
		var sum float64
		for j := rollStart; j <= i; j++ {
			sum += float64(bySprint[labels[j]].completed)
		}
		rolling := sum / float64(i-rollStart+1)

		sprints = append(sprints, SprintVelocity{
			Sprint:          label,
			Completed:       b.completed,
			Total:           b.total,
			ByType:          b.byType,
			RollingAverage3: rolling,
		})
		completions = append(completions, float64(b.completed))
	}

	trend := VelocitySteady
	if len(completions) >= 6 {
		last3 := avg(completions[len(completions)-3:])
		prev3 := avg(completions[len(completions)-6 : len(completions)-3])
		pct := pctChange(last3, prev3)
		switch {
		case pct > velocityBandPct:
			trend = VelocityAccelerating
		case pct < -velocityBandPct:
			trend = VelocitySlowing
		}
	}

	return &VelocityMetrics{Sprints: sprints, Trend: trend}, nil
}
