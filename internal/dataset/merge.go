package dataset

// Merge combines the historical dataset with a freshly fetched window.
// Rows are concatenated historical-first and deduplicated by date
// keeping the last occurrence, so window values overwrite historical
// ones on overlapping dates while dates outside the window are
// preserved unchanged. The result is sorted by date ascending and
// reindexed to the canonical column order for the configured entities.
func Merge(historical, window Dataset, entities []string) Dataset {
	merged := Dataset{}
	merged.EnsureColumns(historical.Columns)
	merged.EnsureColumns(window.Columns)
	merged.EnsureColumns(entities)

	byDate := make(map[int64]int) // unix day -> index into merged.Rows
	add := func(r Row) {
		d := day(r.Date)
		values := make(map[string]float64, len(r.Values))
		for k, v := range r.Values {
			values[k] = v
		}
		row := Row{Date: d, Values: values}
		if i, ok := byDate[d.Unix()]; ok {
			// Newest wins: the later occurrence replaces the whole
			// earlier row, not a cell-level patch.
			merged.Rows[i] = row
			return
		}
		byDate[d.Unix()] = len(merged.Rows)
		merged.Rows = append(merged.Rows, row)
	}

	for _, r := range historical.Rows {
		add(r)
	}
	for _, r := range window.Rows {
		add(r)
	}

	merged.Sort()
	merged.Reindex(entities)
	return merged
}
