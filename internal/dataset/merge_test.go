package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func table(col string, points map[string]float64) Dataset {
	ds := Dataset{Columns: []string{col}}
	for date, v := range points {
		ds.Rows = append(ds.Rows, Row{Date: d(date), Values: map[string]float64{col: v}})
	}
	ds.Sort()
	return ds
}

func TestMerge_EndToEndScenario(t *testing.T) {
	historical := table("A", map[string]float64{
		"2025-01-01": 1, "2025-01-02": 2, "2025-01-03": 3, "2025-01-04": 4, "2025-01-05": 5,
	})
	window := table("A", map[string]float64{
		"2025-01-04": 40, "2025-01-05": 50, "2025-01-06": 60, "2025-01-07": 70, "2025-01-08": 80,
	})

	merged := Merge(historical, window, []string{"A"})

	want := map[string]float64{
		"2025-01-01": 1, "2025-01-02": 2, "2025-01-03": 3,
		"2025-01-04": 40, "2025-01-05": 50, "2025-01-06": 60,
		"2025-01-07": 70, "2025-01-08": 80,
	}
	require.Len(t, merged.Rows, len(want))
	for date, v := range want {
		got, ok := merged.Value(d(date), "A")
		require.True(t, ok, "missing %s", date)
		assert.Equal(t, v, got, "date %s", date)
	}

	// Rows come out date-ascending.
	for i := 1; i < len(merged.Rows); i++ {
		assert.True(t, merged.Rows[i-1].Date.Before(merged.Rows[i].Date))
	}
}

func TestMerge_Idempotent(t *testing.T) {
	historical := table("A", map[string]float64{"2025-01-01": 1, "2025-01-02": 2})
	window := table("A", map[string]float64{"2025-01-02": 20, "2025-01-03": 30})

	once := Merge(historical, window, []string{"A"})
	twice := Merge(once, window, []string{"A"})

	assert.Equal(t, once, twice)
}

func TestMerge_OverlapPrecedence_WindowWins(t *testing.T) {
	historical := table("A", map[string]float64{"2025-01-01": 99})
	window := table("A", map[string]float64{"2025-01-01": 7})

	merged := Merge(historical, window, []string{"A"})
	v, ok := merged.Value(d("2025-01-01"), "A")
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
}

func TestMerge_DisjointPreserved(t *testing.T) {
	historical := table("A", map[string]float64{"2024-12-01": 11, "2024-12-02": 12})
	window := table("A", map[string]float64{"2025-01-01": 1})

	merged := Merge(historical, window, []string{"A"})
	for date, want := range map[string]float64{"2024-12-01": 11, "2024-12-02": 12} {
		v, ok := merged.Value(d(date), "A")
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
}

func TestMerge_ColumnCompleteness(t *testing.T) {
	// Window only has data for A; B and C are configured but absent.
	historical := Dataset{}
	window := table("A", map[string]float64{"2025-01-01": 1})

	merged := Merge(historical, window, []string{"A", "B", "C"})
	assert.Equal(t, []string{"A", "B", "C"}, merged.Columns)

	// Absent entities carry the no-data marker, not a zero.
	_, ok := merged.Value(d("2025-01-01"), "B")
	assert.False(t, ok)
}

func TestMerge_ExtraColumnsAppendedAfterConfigured(t *testing.T) {
	historical := Dataset{
		Columns: []string{"legacy", "A"},
		Rows: []Row{{
			Date:   d("2025-01-01"),
			Values: map[string]float64{"legacy": 5, "A": 1},
		}},
	}
	window := table("A", map[string]float64{"2025-01-02": 2})

	merged := Merge(historical, window, []string{"A", "B"})
	assert.Equal(t, []string{"A", "B", "legacy"}, merged.Columns)

	v, ok := merged.Value(d("2025-01-01"), "legacy")
	require.True(t, ok)
	assert.Equal(t, 5.0, v)
}

func TestMerge_EmptyHistorical(t *testing.T) {
	window := table("A", map[string]float64{"2025-01-01": 1})
	merged := Merge(Dataset{}, window, []string{"A"})
	require.Len(t, merged.Rows, 1)
}
