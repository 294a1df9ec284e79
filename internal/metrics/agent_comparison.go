package metrics

import (
	"time"

	"github.com/veritas-kanban/core/internal/model"
)

// AgentStats is one agent's row in AgentComparison.
type AgentStats struct {
	Agent         string
	Runs          int
	Successes     int
	Failures      int
	SuccessRate   float64
	AvgDurationMs float64
	TotalTokens   int64
	AvgCost       float64
	TokensPerRun  float64
}

// AgentRecommendations names the best agent on each of four axes. A field
// is empty when no agent qualifies (e.g. no agent clears the 80%
// reliability bar).
type AgentRecommendations struct {
	Reliability string
	Speed       string
	Cost        string
	Efficiency  string
}

// AgentComparison is agentComparison's result shape.
type AgentComparison struct {
	Agents          []AgentStats
	Recommendations AgentRecommendations
}

const reliabilityBarPct = 80.0

// AgentComparison joins per-agent run counts/success/duration with
// per-agent token sums, restricted to agents with at least minRuns runs
// in the window, and emits reliability/speed/cost/efficiency
// recommendations (spec.md §4.7).
func (a *Aggregator) AgentComparison(period Period, project string, minRuns int) (*AgentComparison, error) {
	if minRuns <= 0 {
		minRuns = 3
	}
	since, until := window(period, time.Now().UTC())

	type acc struct {
		runs, successes, failures int
		durations                 []float64
		tokens                    int64
		costs                     []float64
	}
	byAgent := map[string]*acc{}

	get := func(agent string) *acc {
		if agent == "" {
			agent = defaultAgentName
		}
		s := byAgent[agent]
		if s == nil {
			s = &acc{}
			byAgent[agent] = s
		}
		return s
	}

	err := a.telemetry.ForEachInRange(since, until, func(ev *model.TelemetryEvent) {
		if project != "" && ev.Project != project {
			return
		}
		switch ev.Type {
		case model.EventRunCompleted, model.EventRunError:
			s := get(ev.Agent)
			s.runs++
			success := ev.Type == model.EventRunCompleted && ev.Success != nil && *ev.Success
			if success {
				s.successes++
			} else {
				s.failures++
			}
			if ev.DurationMs != nil {
				s.durations = append(s.durations, float64(*ev.DurationMs))
			}
		case model.EventRunTokens:
			s := get(ev.Agent)
			var in, outp int64
			if ev.InputTokens != nil {
				in = *ev.InputTokens
			}
			if ev.OutputTokens != nil {
				outp = *ev.OutputTokens
			}
			total := in + outp
			if ev.TotalTokens != nil {
				total = *ev.TotalTokens
			}
			s.tokens += total
			s.costs = append(s.costs, float64(in)/1000*costPerThousandInput+float64(outp)/1000*costPerThousandOutput)
		}
	})
	if err != nil {
		return nil, err
	}

	var out []AgentStats
	for agent, s := range byAgent {
		if s.runs < minRuns {
			continue
		}
		row := AgentStats{
			Agent:         agent,
			Runs:          s.runs,
			Successes:     s.successes,
			Failures:      s.failures,
			SuccessRate:   rate(s.successes, s.runs),
			AvgDurationMs: avg(s.durations),
			TotalTokens:   s.tokens,
			AvgCost:       avg(s.costs),
		}
		if s.successes > 0 {
			row.TokensPerRun = float64(s.tokens) / float64(s.successes)
		}
		out = append(out, row)
	}

	var rec AgentRecommendations
	var bestSuccess, bestSpeed, bestCost, bestEfficiency float64
	for _, row := range out {
		if row.SuccessRate >= reliabilityBarPct && (rec.Reliability == "" || row.SuccessRate > bestSuccess) {
			rec.Reliability = row.Agent
			bestSuccess = row.SuccessRate
		}
		if rec.Speed == "" || row.AvgDurationMs < bestSpeed {
			rec.Speed = row.Agent
			bestSpeed = row.AvgDurationMs
		}
		if rec.Cost == "" || row.AvgCost < bestCost {
			rec.Cost = row.Agent
			bestCost = row.AvgCost
		}
		if row.TokensPerRun > 0 && (rec.Efficiency == "" || row.TokensPerRun < bestEfficiency) {
			rec.Efficiency = row.Agent
			bestEfficiency = row.TokensPerRun
		}
	}

	return &AgentComparison{Agents: out, Recommendations: rec}, nil
}
