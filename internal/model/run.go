package model

import "time"

// RunStatus represents the current state of a collection run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial" // aborted, window saved to the partial file
	RunStatusFailed   RunStatus = "failed"
)

// Run is the ledger record for one collection run.
type Run struct {
	ID                string          `json:"id"`
	Status            RunStatus       `json:"status"`
	WindowStart       time.Time       `json:"window_start"`
	WindowEnd         time.Time       `json:"window_end"`
	EntitiesTotal     int             `json:"entities_total"`
	EntitiesCollected int             `json:"entities_collected"`
	Outcomes          []EntityOutcome `json:"outcomes,omitempty"`
	Error             string          `json:"error,omitempty"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        *time.Time      `json:"finished_at,omitempty"`
}

// EntityOutcome records how collection went for a single entity.
type EntityOutcome struct {
	RunID         string    `json:"run_id"`
	Entity        string    `json:"entity"`
	Batches       int       `json:"batches"`
	BatchesFailed int       `json:"batches_failed"`
	Days          int       `json:"days"`
	RecordedAt    time.Time `json:"recorded_at"`
}
