package model

import "time"

// RunStatus is the controller state of a fusion run.
type RunStatus string

const (
	RunStatusPlanning   RunStatus = "planning"
	RunStatusCollecting RunStatus = "collecting"
	RunStatusFusing     RunStatus = "fusing"
	RunStatusScoring    RunStatus = "scoring"
	RunStatusFiltering  RunStatus = "filtering"
	RunStatusDone       RunStatus = "done"
	RunStatusFailed     RunStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s RunStatus) Terminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

// Run is the persisted record of one pipeline execution.
type Run struct {
	ID        string     `json:"id"`
	Criteria  Criteria   `json:"criteria"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult is the outcome of a finished run.
type RunResult struct {
	RunID          string         `json:"run_id,omitempty"`
	Records        []ScoredRecord `json:"records"`
	OutputLocation string         `json:"output_location"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	TotalFound     int            `json:"total_found"`
	TotalValid     int            `json:"total_valid"`
	Discarded      int            `json:"discarded"`
	Patched        int            `json:"patched"`
	Synthetic      bool           `json:"synthetic,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
	Phases         []PhaseResult  `json:"phases"`
}

// UnifiedRecords returns the bare records of r.
func (r *RunResult) UnifiedRecords() []UnifiedRecord {
	out := make([]UnifiedRecord, len(r.Records))
	for i, sr := range r.Records {
		out[i] = sr.Record
	}
	return out
}

// RunPhase is one tracked stage of a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus is the state of a tracked stage.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a tracked stage.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
