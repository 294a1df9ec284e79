package metrics

import (
	"sort"
	"time"

	"github.com/veritas-kanban/core/internal/model"
	"github.com/veritas-kanban/core/internal/telemetry"
)

// AgentRunStats is one agent's slice of RunMetrics.
type AgentRunStats struct {
	Runs           int
	Successes      int
	Failures       int
	SuccessRate    float64
	ErrorRate      float64
	AvgDurationMs  float64
	totalDurations []float64
}

// RunMetrics is runMetrics' result shape.
type RunMetrics struct {
	Runs          int
	Successes     int
	Failures      int
	SuccessRate   float64
	ErrorRate     float64
	AvgDurationMs float64
	ByAgent       map[string]*AgentRunStats
}

func newRunAccumulator() *RunMetrics {
	return &RunMetrics{ByAgent: make(map[string]*AgentRunStats)}
}

// defaultAgentName is used whenever an event's agent field is absent, per
// spec.md §4.7.
const defaultAgentName = "veritas"

func (rm *RunMetrics) absorb(ev *model.TelemetryEvent) {
	if ev.Type != model.EventRunCompleted && ev.Type != model.EventRunError {
		return
	}
	agent := ev.Agent
	if agent == "" {
		agent = defaultAgentName
	}
	success := ev.Type == model.EventRunCompleted && ev.Success != nil && *ev.Success

	stats := rm.ByAgent[agent]
	if stats == nil {
		stats = &AgentRunStats{}
		rm.ByAgent[agent] = stats
	}

	rm.Runs++
	stats.Runs++
	if success {
		rm.Successes++
		stats.Successes++
	} else {
		rm.Failures++
		stats.Failures++
	}
	if ev.DurationMs != nil {
		stats.totalDurations = append(stats.totalDurations, float64(*ev.DurationMs))
	}
}

func (rm *RunMetrics) finalize() {
	rm.SuccessRate = rate(rm.Successes, rm.Runs)
	rm.ErrorRate = rate(rm.Failures, rm.Runs)
	var allDurations []float64
	for _, s := range rm.ByAgent {
		s.SuccessRate = rate(s.Successes, s.Runs)
		s.ErrorRate = rate(s.Failures, s.Runs)
		s.AvgDurationMs = avg(s.totalDurations)
		allDurations = append(allDurations, s.totalDurations...)
	}
	rm.AvgDurationMs = avg(allDurations)
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func avg(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// RunMetrics streams run.completed|run.error since the period start and
// accumulates totals and a per-agent breakdown.
func (a *Aggregator) RunMetrics(period Period, project string) (*RunMetrics, error) {
	since, until := window(period, time.Now().UTC())
	rm := newRunAccumulator()
	err := a.telemetry.ForEachInRange(since, until, func(ev *model.TelemetryEvent) {
		if project != "" && ev.Project != project {
			return
		}
		rm.absorb(ev)
	})
	if err != nil {
		return nil, err
	}
	rm.finalize()
	return rm, nil
}

// DurationMetrics is durationMetrics' result shape.
type DurationMetrics struct {
	AvgMs   float64
	P50Ms   float64
	P95Ms   float64
	ByAgent map[string]*AgentDurationStats
}

type AgentDurationStats struct {
	AvgMs float64
	P50Ms float64
	P95Ms float64
}

// DurationMetrics computes avg/p50/p95 over run.completed events with
// durationMs > 0, plus a per-agent breakdown.
func (a *Aggregator) DurationMetrics(period Period, project string) (*DurationMetrics, error) {
	since, until := window(period, time.Now().UTC())

	all := map[string][]float64{}
	byAgent := map[string][]float64{}

	err := a.telemetry.ForEachInRange(since, until, func(ev *model.TelemetryEvent) {
		if ev.Type != model.EventRunCompleted {
			return
		}
		if project != "" && ev.Project != project {
			return
		}
		if ev.DurationMs == nil || *ev.DurationMs <= 0 {
			return
		}
		agent := ev.Agent
		if agent == "" {
			agent = defaultAgentName
		}
		d := float64(*ev.DurationMs)
		all["*"] = append(all["*"], d)
		byAgent[agent] = append(byAgent[agent], d)
	})
	if err != nil {
		return nil, err
	}

	out := &DurationMetrics{ByAgent: make(map[string]*AgentDurationStats)}
	out.AvgMs, out.P50Ms, out.P95Ms = stats(all["*"])
	for agent, ds := range byAgent {
		avgMs, p50, p95 := stats(ds)
		out.ByAgent[agent] = &AgentDurationStats{AvgMs: avgMs, P50Ms: p50, P95Ms: p95}
	}
	return out, nil
}

func stats(xs []float64) (avgV, p50, p95 float64) {
	if len(xs) == 0 {
		return 0, 0, 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return avg(sorted), telemetry.Percentile(sorted, 50), telemetry.Percentile(sorted, 95)
}
