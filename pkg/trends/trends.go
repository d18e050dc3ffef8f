// Package trends provides a client for the search-interest query
// service: daily 0-100 scores for up to five search terms over a date
// range.
package trends

import (
	"context"
	"time"
)

// Window is a trailing date range, inclusive on both ends.
type Window struct {
	Start time.Time
	End   time.Time
}

// LastNDays returns the window covering the n days up to and including
// today (in now's location), truncated to whole days.
func LastNDays(n int, now time.Time) Window {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return Window{Start: end.AddDate(0, 0, -n), End: end}
}

// Timeframe renders the window in the service's "start end" form.
func (w Window) Timeframe() string {
	return w.Start.Format("2006-01-02") + " " + w.End.Format("2006-01-02")
}

// Point holds one day's scores keyed by search term. The date field is
// explicit: a response whose timeline cannot be dated is rejected as a
// service error rather than guessed at.
type Point struct {
	Date   time.Time          `json:"date"`
	Values map[string]float64 `json:"values"`
}

// Series is the typed result of one query: daily points for the terms
// that were requested, ordered by date ascending.
type Series struct {
	Terms  []string `json:"terms"`
	Points []Point  `json:"points"`
}

// Empty reports whether the series carries no rows.
func (s Series) Empty() bool {
	return len(s.Points) == 0
}

// QueryService is the external search-interest service. Implementations
// signal throttling with ErrThrottled and missing/forbidden terms with
// ErrNotFound; transport failures surface as wrapped network errors.
type QueryService interface {
	// InterestOverTime fetches daily scores for up to five terms.
	InterestOverTime(ctx context.Context, terms []string, window Window) (Series, error)
}
