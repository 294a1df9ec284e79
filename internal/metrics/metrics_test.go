package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-kanban/core/internal/model"
	"github.com/veritas-kanban/core/internal/taskstore"
	"github.com/veritas-kanban/core/internal/telemetry"
)

func newTestAggregator(t *testing.T) (*Aggregator, *telemetry.Store, *taskstore.InMemoryStore) {
	t.Helper()
	tel := telemetry.New(t.TempDir(), telemetry.Config{Enabled: true, RetentionDays: 30, Traces: true, CompressAfterDays: 7})
	t.Cleanup(tel.Close)
	tasks := taskstore.NewInMemoryStore()
	return New(tel, tasks), tel, tasks
}

func ptrBool(b bool) *bool    { return &b }
func ptrI64(n int64) *int64   { return &n }

func TestRunMetricsCountsSuccessAndFailurePerAgent(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)

	tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t1", Agent: "claude-code", Success: ptrBool(true), DurationMs: ptrI64(1000)})
	tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t2", Agent: "claude-code", Success: ptrBool(false), DurationMs: ptrI64(2000)})
	tel.Emit(model.TelemetryEvent{Type: model.EventRunError, TaskID: "t3", Agent: "codex"})
	tel.Flush()

	rm, err := agg.RunMetrics(Period24h, "")
	require.NoError(t, err)
	assert.Equal(t, 3, rm.Runs)
	assert.Equal(t, 1, rm.Successes)
	assert.Equal(t, 2, rm.Failures)
	assert.InDelta(t, 33.333, rm.SuccessRate, 0.01)

	claude := rm.ByAgent["claude-code"]
	require.NotNil(t, claude)
	assert.Equal(t, 2, claude.Runs)
	assert.Equal(t, 1, claude.Successes)

	codex := rm.ByAgent["codex"]
	require.NotNil(t, codex)
	assert.Equal(t, 1, codex.Runs)
	assert.Equal(t, 0, codex.Successes)
}

func TestRunMetricsDefaultsMissingAgentName(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)
	tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t1", Success: ptrBool(true)})
	tel.Flush()

	rm, err := agg.RunMetrics(Period24h, "")
	require.NoError(t, err)
	assert.Contains(t, rm.ByAgent, defaultAgentName)
}

func TestRunMetricsFiltersByProject(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)
	tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t1", Project: "alpha", Success: ptrBool(true)})
	tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t2", Project: "beta", Success: ptrBool(true)})
	tel.Flush()

	rm, err := agg.RunMetrics(Period24h, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, rm.Runs)
}

func TestDurationMetricsComputesPercentiles(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)
	for _, d := range []int64{100, 200, 300, 400, 500} {
		success := true
		tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t1", Agent: "claude-code", Success: &success, DurationMs: ptrI64(d)})
	}
	tel.Flush()

	dm, err := agg.DurationMetrics(Period24h, "")
	require.NoError(t, err)
	assert.Equal(t, 300.0, dm.AvgMs)
	assert.Equal(t, 300.0, dm.P50Ms)
	assert.Equal(t, 500.0, dm.P95Ms)
}

func TestDurationMetricsIgnoresZeroAndMissingDuration(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)
	success := true
	tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t1", Success: &success, DurationMs: ptrI64(0)})
	tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t2", Success: &success})
	tel.Flush()

	dm, err := agg.DurationMetrics(Period24h, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, dm.AvgMs)
}

func TestTokenMetricsSumsAndDefaultsTotal(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)
	tel.Emit(model.TelemetryEvent{Type: model.EventRunTokens, TaskID: "t1", InputTokens: ptrI64(100), OutputTokens: ptrI64(50)})
	tel.Emit(model.TelemetryEvent{Type: model.EventRunTokens, TaskID: "t2", InputTokens: ptrI64(10), OutputTokens: ptrI64(10), TotalTokens: ptrI64(25), CacheTokens: ptrI64(5)})
	tel.Flush()

	tm, err := agg.TokenMetrics(Period24h, "")
	require.NoError(t, err)
	assert.Equal(t, int64(110), tm.InputTokens)
	assert.Equal(t, int64(60), tm.OutputTokens)
	assert.Equal(t, int64(5), tm.CacheTokens)
	assert.Equal(t, int64(175), tm.TotalTokens) // 150 (default) + 25 (explicit)
}

func TestTaskMetricsCountsByStatusAndBlockedCategory(t *testing.T) {
	agg, _, tasks := newTestAggregator(t)
	unspecified := &model.BlockedReason{}
	reviewBlocked := &model.BlockedReason{Category: "needs-review"}

	tasks.Seed(&model.Task{ID: "1", Status: model.TaskStatusTodo})
	tasks.Seed(&model.Task{ID: "2", Status: model.TaskStatusInProgress})
	tasks.Seed(&model.Task{ID: "3", Status: model.TaskStatusBlocked, BlockedReason: unspecified})
	tasks.Seed(&model.Task{ID: "4", Status: model.TaskStatusBlocked, BlockedReason: reviewBlocked})
	tasks.Seed(&model.Task{ID: "5", Status: model.TaskStatusDone})

	tm, err := agg.TaskMetrics(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, tm.ByStatus[string(model.TaskStatusTodo)])
	assert.Equal(t, 2, tm.ByStatus[string(model.TaskStatusBlocked)])
	assert.Equal(t, 1, tm.BlockedByCategory["unspecified"])
	assert.Equal(t, 1, tm.BlockedByCategory["needs-review"])
	assert.Equal(t, 1, tm.Completed)
}

func TestBudgetMetricsSumsCostWithLinearModel(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)
	tel.Emit(model.TelemetryEvent{Type: model.EventRunTokens, TaskID: "t1", InputTokens: ptrI64(1000), OutputTokens: ptrI64(500)})
	tel.Flush()

	bm, err := agg.BudgetMetrics(1_000_000_000, 1_000_000, 80, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), bm.TokensUsed)
	assert.InDelta(t, 0.025, bm.CostUsed, 0.0001)
	assert.Equal(t, BudgetOK, bm.Status, "a huge budget against tiny usage must stay ok regardless of day-of-month")
}

func TestBudgetMetricsDangerWhenUsageExceedsBudget(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)
	tel.Emit(model.TelemetryEvent{Type: model.EventRunTokens, TaskID: "t1", InputTokens: ptrI64(1000), OutputTokens: ptrI64(1000)})
	tel.Flush()

	bm, err := agg.BudgetMetrics(100, 1000, 80, "")
	require.NoError(t, err)
	assert.Equal(t, BudgetDanger, bm.Status, "usedPct alone exceeding 100% must be danger regardless of projection")
}

func TestBudgetMetricsDangerWhenCostAloneExceedsCostBudget(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)
	tel.Emit(model.TelemetryEvent{Type: model.EventRunTokens, TaskID: "t1", InputTokens: ptrI64(1000), OutputTokens: ptrI64(1000)})
	tel.Flush()

	bm, err := agg.BudgetMetrics(1_000_000_000, 0.001, 80, "")
	require.NoError(t, err)
	assert.Less(t, bm.UsedPct, 1.0, "token usage must be nowhere near tokenBudget")
	assert.Equal(t, BudgetDanger, bm.Status, "a cost overrun must trip danger even when token usage is tiny")
}

func TestFailedRunsIncludesErrorAndUnsuccessfulCompletedSortedDesc(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)
	tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t1", Success: ptrBool(true)})
	tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t2", Success: ptrBool(false), Error: "bad exit"})
	tel.Emit(model.TelemetryEvent{Type: model.EventRunError, TaskID: "t3", Error: "spawn failed"})
	tel.Flush()

	runs, err := agg.FailedRuns(Period24h, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for i := 1; i < len(runs); i++ {
		assert.GreaterOrEqual(t, runs[i-1].Timestamp, runs[i].Timestamp)
	}
}

func TestFailedRunsRespectsLimit(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)
	for i := 0; i < 5; i++ {
		tel.Emit(model.TelemetryEvent{Type: model.EventRunError, TaskID: "t1", Error: "boom"})
	}
	tel.Flush()

	runs, err := agg.FailedRuns(Period24h, "", 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestAgentComparisonExcludesAgentsBelowMinRuns(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)
	success := true
	tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t1", Agent: "rare-agent", Success: &success})
	for i := 0; i < 5; i++ {
		tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t1", Agent: "common-agent", Success: &success})
	}
	tel.Flush()

	cmp, err := agg.AgentComparison(Period24h, "", 3)
	require.NoError(t, err)
	var names []string
	for _, row := range cmp.Agents {
		names = append(names, row.Agent)
	}
	assert.Contains(t, names, "common-agent")
	assert.NotContains(t, names, "rare-agent")
}

func TestAgentComparisonReliabilityRecommendationRequiresBar(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)
	for i := 0; i < 5; i++ {
		success := i != 4 // 4/5 = 80%
		tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t1", Agent: "solid", Success: &success})
	}
	for i := 0; i < 5; i++ {
		success := i < 2 // 2/5 = 40%, below the bar
		tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t1", Agent: "flaky", Success: &success})
	}
	tel.Flush()

	cmp, err := agg.AgentComparison(Period24h, "", 1)
	require.NoError(t, err)
	assert.Equal(t, "solid", cmp.Recommendations.Reliability)
}

func TestVelocityMetricsGroupsBySprintAndOrdersNumerically(t *testing.T) {
	agg, _, tasks := newTestAggregator(t)
	tasks.Seed(&model.Task{ID: "1", Sprint: "Sprint 9", Status: model.TaskStatusDone, Type: model.TaskTypeCode})
	tasks.Seed(&model.Task{ID: "2", Sprint: "Sprint 10", Status: model.TaskStatusTodo})
	tasks.Seed(&model.Task{ID: "3", Sprint: "Sprint 10", Status: model.TaskStatusDone, Type: model.TaskTypeCode})

	vm, err := agg.VelocityMetrics(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, vm.Sprints, 2)
	assert.Equal(t, "Sprint 9", vm.Sprints[0].Sprint)
	assert.Equal(t, "Sprint 10", vm.Sprints[1].Sprint)
	assert.Equal(t, 1, vm.Sprints[0].Completed)
	assert.Equal(t, 1, vm.Sprints[1].Completed)
	assert.Equal(t, 2, vm.Sprints[1].Total)
}

func TestVelocityMetricsSkipsTasksWithoutSprint(t *testing.T) {
	agg, _, tasks := newTestAggregator(t)
	tasks.Seed(&model.Task{ID: "1", Status: model.TaskStatusDone})

	vm, err := agg.VelocityMetrics(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, vm.Sprints)
}

func TestAllMetricsAggregatesRunTokenAndDuration(t *testing.T) {
	agg, tel, _ := newTestAggregator(t)
	success := true
	tel.Emit(model.TelemetryEvent{Type: model.EventRunCompleted, TaskID: "t1", Agent: "claude-code", Success: &success, DurationMs: ptrI64(500)})
	tel.Emit(model.TelemetryEvent{Type: model.EventRunTokens, TaskID: "t1", InputTokens: ptrI64(100), OutputTokens: ptrI64(50)})
	tel.Flush()

	all, err := agg.AllMetrics(Period24h, "")
	require.NoError(t, err)
	require.NotNil(t, all.Run)
	require.NotNil(t, all.Token)
	require.NotNil(t, all.Duration)
	assert.Equal(t, 1, all.Run.Runs)
	assert.Equal(t, int64(150), all.Token.TotalTokens)
	assert.Equal(t, 500.0, all.Duration.AvgMs)
}
