package metrics

import (
	"time"

	"github.com/veritas-kanban/core/internal/model"
)

// TokenMetrics is tokenMetrics' result shape.
type TokenMetrics struct {
	InputTokens  int64
	OutputTokens int64
	CacheTokens  int64
	TotalTokens  int64
	AvgTokens    float64
	P50Tokens    float64
	P95Tokens    float64
}

// TokenMetrics streams run.tokens since the period start, summing
// input/output/cache. A missing totalTokens defaults to input+output
// (spec.md §4.7).
func (a *Aggregator) TokenMetrics(period Period, project string) (*TokenMetrics, error) {
	since, until := window(period, time.Now().UTC())

	var totals []float64
	out := &TokenMetrics{}

	err := a.telemetry.ForEachInRange(since, until, func(ev *model.TelemetryEvent) {
		if ev.Type != model.EventRunTokens {
			return
		}
		if project != "" && ev.Project != project {
			return
		}

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

		out.InputTokens += in
		out.OutputTokens += outp
		out.CacheTokens += cache
		out.TotalTokens += total
		totals = append(totals, float64(total))
	})
	if err != nil {
		return nil, err
	}

	out.AvgTokens, out.P50Tokens, out.P95Tokens = stats(totals)
	return out, nil
}
