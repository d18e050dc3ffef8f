// Package store persists the run ledger: one record per collection run
// plus per-entity outcomes, kept in SQLite or Postgres.
package store

import (
	"context"

	"github.com/sells-group/trendwatch/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the run-ledger persistence interface.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, collected int, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Per-entity outcomes
	RecordOutcome(ctx context.Context, outcome model.EntityOutcome) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
