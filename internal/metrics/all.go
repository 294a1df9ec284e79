package metrics

import (
	"time"

	"github.com/veritas-kanban/core/internal/model"
)


// AllMetrics is allMetrics' result shape — everything derivable from a
// single streaming pass over the period window.
type AllMetrics struct {
	Run      *RunMetrics
	Token    *TokenMetrics
	Duration *DurationMetrics
}

// AllMetrics makes a single pass over the telemetry store for the period,
// feeding run/token/duration accumulators from the same stream instead of
// scanning the files three times (spec.md §4.7: "allMetrics combines the
// above in one read pass").
func (a *Aggregator) AllMetrics(period Period, project string) (*AllMetrics, error) {
	since, until := window(period, time.Now().UTC())
	return a.allMetricsRange(since, until, project)
}

// allMetricsRange is AllMetrics over an explicit [since, until] bound,
// shared with Trends' previous-window comparison so both use the same
// single-pass accumulators.
func (a *Aggregator) allMetricsRange(since, until, project string) (*AllMetrics, error) {
	rm := newRunAccumulator()
	tok := &TokenMetrics{}
	var tokenTotals []float64
	durAll := map[string][]float64{}
	durByAgent := map[string][]float64{}

	err := a.telemetry.ForEachInRange(since, until, func(ev *model.TelemetryEvent) {
		if project != "" && ev.Project != project {
			return
		}

		switch ev.Type {
		case model.EventRunCompleted, model.EventRunError:
			rm.absorb(ev)
			if ev.Type == model.EventRunCompleted && ev.DurationMs != nil && *ev.DurationMs > 0 {
				agent := ev.Agent
				if agent == "" {
					agent = defaultAgentName
				}
				d := float64(*ev.DurationMs)
				durAll["*"] = append(durAll["*"], d)
				durByAgent[agent] = append(durByAgent[agent], d)
			}
		case model.EventRunTokens:
			var in, outp, cache int64
			if ev.InputTokens != nil {
				in = *ev.InputTokens
			}
			if ev.OutputTokens != nil {
				outp = *ev.OutputTokens
			}
			if ev.CacheTokens != nil {
				cache = *ev.CacheTokens
			}
			total := in + outp
			if ev.TotalTokens != nil {
				total = *ev.TotalTokens
			}
			tok.InputTokens += in
			tok.OutputTokens += outp
			tok.CacheTokens += cache
			tok.TotalTokens += total
			tokenTotals = append(tokenTotals, float64(total))
		}
	})
	if err != nil {
		return nil, err
	}

	rm.finalize()
	tok.AvgTokens, tok.P50Tokens, tok.P95Tokens = stats(tokenTotals)

	dm := &DurationMetrics{ByAgent: make(map[string]*AgentDurationStats)}
	dm.AvgMs, dm.P50Ms, dm.P95Ms = stats(durAll["*"])
	for agent, ds := range durByAgent {
		avgMs, p50, p95 := stats(ds)
		dm.ByAgent[agent] = &AgentDurationStats{AvgMs: avgMs, P50Ms: p50, P95Ms: p95}
	}

	return &AllMetrics{Run: rm, Token: tok, Duration: dm}, nil
}
