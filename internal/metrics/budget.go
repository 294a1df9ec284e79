package metrics

import (
	"time"

	"github.com/veritas-kanban/core/internal/model"
)

// costPerThousandInput / costPerThousandOutput model the simple linear
// cost model used by budgetMetrics (spec.md §4.7, worked example S6).
const (
	costPerThousandInput  = 0.01
	costPerThousandOutput = 0.03
)

// BudgetStatus is the three-way budget health indicator.
type BudgetStatus string

const (
	BudgetOK      BudgetStatus = "ok"
	BudgetWarning BudgetStatus = "warning"
	BudgetDanger  BudgetStatus = "danger"
)

// BudgetMetrics is budgetMetrics' result shape.
type BudgetMetrics struct {
	TokenBudget      int64
	CostBudget       float64
	TokensUsed       int64
	CostUsed         float64
	UsedPct          float64
	CostUsedPct      float64
	BurnRatePerDay   float64
	CostBurnPerDay   float64
	ProjectedTokens  float64
	ProjectedPct     float64
	ProjectedCost    float64
	CostProjectedPct float64
	DaysElapsed      int
	DaysInMonth      int
	Status           BudgetStatus
}

// BudgetMetrics scopes to the calendar month containing now, sums
// input/output token cost with the linear cost model, and projects
// month-end usage from the burn rate so far, for both the token budget
// and the cost budget. Status is driven by whichever of the four
// used/projected percentages (token or cost) is largest, against 100%
// and warningThreshold (spec.md §4.7 / S6: tokenBudget=1,000,000,
// usage=300,000 at day 10/30, warning=80 -> projected=90% -> warning;
// a costBudget overrun must trip danger the same way even when token
// usage alone is nowhere near tokenBudget).
func (a *Aggregator) BudgetMetrics(tokenBudget int64, costBudget float64, warningThreshold float64, project string) (*BudgetMetrics, error) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := monthStart.AddDate(0, 1, 0).Add(-time.Nanosecond).Day()
	daysElapsed := now.Day()

	since := monthStart.Format(time.RFC3339Nano)
	until := now.Format(time.RFC3339Nano)

	var tokensUsed int64
	var costUsed float64

	err := a.telemetry.ForEachInRange(since, until, func(ev *model.TelemetryEvent) {
		if ev.Type != model.EventRunTokens {
			return
		}
		if project != "" && ev.Project != project {
			return
		}
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
		tokensUsed += total
		costUsed += float64(in)/1000*costPerThousandInput + float64(outp)/1000*costPerThousandOutput
	})
	if err != nil {
		return nil, err
	}

	out := &BudgetMetrics{
		TokenBudget: tokenBudget,
		CostBudget:  costBudget,
		TokensUsed:  tokensUsed,
		CostUsed:    costUsed,
		DaysElapsed: daysElapsed,
		DaysInMonth: daysInMonth,
	}

	if daysElapsed > 0 {
		out.BurnRatePerDay = float64(tokensUsed) / float64(daysElapsed)
		out.CostBurnPerDay = costUsed / float64(daysElapsed)
	}
	out.ProjectedTokens = out.BurnRatePerDay * float64(daysInMonth)
	out.ProjectedCost = out.CostBurnPerDay * float64(daysInMonth)

	if tokenBudget > 0 {
		out.UsedPct = float64(tokensUsed) / float64(tokenBudget) * 100
		out.ProjectedPct = out.ProjectedTokens / float64(tokenBudget) * 100
	}
	if costBudget > 0 {
		out.CostUsedPct = costUsed / costBudget * 100
		out.CostProjectedPct = out.ProjectedCost / costBudget * 100
	}

	worst := out.UsedPct
	if out.ProjectedPct > worst {
		worst = out.ProjectedPct
	}
	if out.CostUsedPct > worst {
		worst = out.CostUsedPct
	}
	if out.CostProjectedPct > worst {
		worst = out.CostProjectedPct
	}

	switch {
	case worst >= 100:
		out.Status = BudgetDanger
	case worst >= warningThreshold:
		out.Status = BudgetWarning
	default:
		out.Status = BudgetOK
	}

	return out, nil
}
