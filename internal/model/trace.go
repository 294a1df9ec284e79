package model

import "time"

// TraceStatus mirrors the attempt's terminal status inside a trace.
type TraceStatus string

const (
	TraceRunning   TraceStatus = "running"
	TraceCompleted TraceStatus = "completed"
	TraceFailed    TraceStatus = "failed"
	TraceError     TraceStatus = "error"
)

// StepType enumerates the phases a trace step can record.
type StepType string

const (
	StepInit     StepType = "init"
	StepExecute  StepType = "execute"
	StepComplete StepType = "complete"
	StepError    StepType = "error"
)

// TraceStep is one phase of an attempt's execution.
type TraceStep struct {
	Type        StepType               `json:"type"`
	StartedAt   time.Time              `json:"startedAt"`
	EndedAt     *time.Time             `json:"endedAt,omitempty"`
	DurationMs  *int64                 `json:"durationMs,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Trace is the structured record of an attempt's phases.
type Trace struct {
	TraceID         string      `json:"traceId"`
	TaskID          string      `json:"taskId"`
	Agent           string      `json:"agent"`
	Project         string      `json:"project,omitempty"`
	StartedAt       time.Time   `json:"startedAt"`
	EndedAt         *time.Time  `json:"endedAt,omitempty"`
	TotalDurationMs *int64      `json:"totalDurationMs,omitempty"`
	Status          TraceStatus `json:"status"`
	Steps           []*TraceStep `json:"steps"`
}
