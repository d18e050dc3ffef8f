// Package dataset holds the date-keyed columnar table the collector
// produces, with codecs, validation, merging and crash-safe persistence.
package dataset

import (
	"sort"
	"time"
)

// DateLayout is the canonical on-disk date format.
const DateLayout = "2006-01-02"

// Series is one entity's daily values keyed by date. The aggregator
// produces one Series per entity; an empty map means "no data".
type Series map[time.Time]float64

// Row is one day across every column. A column absent from Values is
// the explicit no-data marker and round-trips as an empty cell.
type Row struct {
	Date   time.Time
	Values map[string]float64
}

// Dataset is a date-keyed table: one row per day, one value column per
// entity. Columns excludes the date key, which is always first on disk.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// Empty reports whether the dataset has no rows.
func (d Dataset) Empty() bool {
	return len(d.Rows) == 0
}

// HasColumn reports whether name is a value column.
func (d Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Value returns the cell for (date, column) and whether data exists.
func (d Dataset) Value(date time.Time, column string) (float64, bool) {
	key := day(date)
	for _, r := range d.Rows {
		if r.Date.Equal(key) {
			v, ok := r.Values[column]
			return v, ok
		}
	}
	return 0, false
}

// EnsureColumns adds any missing column names. Cells stay absent (the
// no-data marker): a configured entity that yielded nothing is still
// present in the schema, never silently omitted.
func (d *Dataset) EnsureColumns(names []string) {
	for _, n := range names {
		if !d.HasColumn(n) {
			d.Columns = append(d.Columns, n)
		}
	}
}

// Reindex reorders value columns to the canonical order: configured
// entities in configuration order first, then any unexpected extras in
// their current relative order. Schema drift from upstream never
// reorders or drops configured entities.
func (d *Dataset) Reindex(entities []string) {
	ordered := make([]string, 0, len(d.Columns))
	for _, e := range entities {
		if d.HasColumn(e) {
			ordered = append(ordered, e)
		}
	}
	for _, c := range d.Columns {
		if !contains(ordered, c) {
			ordered = append(ordered, c)
		}
	}
	d.Columns = ordered
}

// Sort orders rows by date ascending.
func (d *Dataset) Sort() {
	sort.Slice(d.Rows, func(i, j int) bool {
		return d.Rows[i].Date.Before(d.Rows[j].Date)
	})
}

// DateRange returns the first and last row dates. Zero times if empty.
func (d Dataset) DateRange() (first, last time.Time) {
	if d.Empty() {
		return
	}
	first, last = d.Rows[0].Date, d.Rows[0].Date
	for _, r := range d.Rows[1:] {
		if r.Date.Before(first) {
			first = r.Date
		}
		if r.Date.After(last) {
			last = r.Date
		}
	}
	return
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// day truncates a timestamp to its UTC calendar day.
func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
