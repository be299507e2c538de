package dto

import (
	"time"

	"golang-trend-publisher/internal/entity"
)

// Workflow states, in the order a successful run passes through them.
const (
	StateIdle            = "idle"
	StateScraping        = "scraping"
	StateDetectingTrends = "detecting_trends"
	StateGenerating      = "generating"
	StateFinalizing      = "finalizing"
	StateDone            = "done"
	StateFailed          = "failed"
)

// Step names used as keys of RunReport.Steps.
const (
	StepScrape       = "scrape"
	StepTrends       = "trends"
	StepMarketTrends = "market_trends"
	StepGenerate     = "generate"
)

// Step statuses.
const (
	StepStatusSuccess     = "success"
	StepStatusPartial     = "partial"
	StepStatusFailed      = "failed"
	StepStatusFatal       = "fatal"
	StepStatusSkipped     = "skipped"
	StepStatusNotExecuted = "not_executed"
)

// StepNames lists every step a report carries.
var StepNames = []string{StepScrape, StepTrends, StepMarketTrends, StepGenerate}

// RunRequest asks the workflow to execute once.
type RunRequest struct {
	// RunID continues a run queued by the scheduler. Empty creates a new run.
	RunID   string            `json:"run_id,omitempty"`
	Trigger string            `json:"trigger"`
	Options entity.RunOptions `json:"options"`
}

// StepReport is the outcome of one step.
type StepReport struct {
	Status     string         `json:"status"`
	Counts     map[string]int `json:"counts"`
	Errors     []string       `json:"errors"`
	DurationMs int64          `json:"duration_ms"`
}

// NewStepReport returns a report for a step that has not run.
func NewStepReport() *StepReport {
	return &StepReport{
		Status: StepStatusNotExecuted,
		Counts: map[string]int{},
		Errors: []string{},
	}
}

// RunReport is the outcome of one workflow execution.
type RunReport struct {
	RunID      string                 `json:"run_id"`
	Success    bool                   `json:"success"`
	State      string                 `json:"state"`
	Error      string                 `json:"error,omitempty"`
	FailedStep string                 `json:"failed_step,omitempty"`
	Steps      map[string]*StepReport `json:"steps"`
	Timestamp  time.Time              `json:"timestamp"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

// NewRunReport returns a report with every step marked not executed.
func NewRunReport(runID string, startedAt time.Time) *RunReport {
	steps := make(map[string]*StepReport, len(StepNames))
	for _, name := range StepNames {
		steps[name] = NewStepReport()
	}
	return &RunReport{
		RunID:     runID,
		State:     StateIdle,
		Steps:     steps,
		Timestamp: startedAt,
		StartedAt: startedAt,
	}
}
