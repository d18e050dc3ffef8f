package dataset

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// LoadCSV reads a dataset from its primary CSV form. The header must
// carry a "date" column; anything else fails closed rather than
// guessing which column holds the key. Empty cells load as no-data.
func LoadCSV(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Dataset{}, eris.Wrapf(err, "dataset: read header of %s", path)
	}

	dateIdx := -1
	for i, name := range header {
		if name == "date" {
			dateIdx = i
			break
		}
	}
	if dateIdx == -1 {
		return Dataset{}, eris.Errorf("dataset: %s has no date column", path)
	}

	ds := Dataset{}
	for i, name := range header {
		if i != dateIdx {
			ds.Columns = append(ds.Columns, name)
		}
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, eris.Wrapf(err, "dataset: read %s", path)
		}
		line++
		if dateIdx >= len(record) {
			return Dataset{}, eris.Errorf("dataset: %s line %d: missing date cell", path, line)
		}
		date, err := time.Parse(DateLayout, record[dateIdx])
		if err != nil {
			return Dataset{}, eris.Wrapf(err, "dataset: %s line %d: bad date %q", path, line, record[dateIdx])
		}

		row := Row{Date: date, Values: make(map[string]float64)}
		col := 0
		for i, cell := range record {
			if i == dateIdx {
				continue
			}
			if col >= len(ds.Columns) {
				break
			}
			name := ds.Columns[col]
			col++
			if cell == "" {
				continue // no-data marker
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return Dataset{}, eris.Wrapf(err, "dataset: %s line %d: bad value %q in %s", path, line, cell, name)
			}
			row.Values[name] = v
		}
		ds.Rows = append(ds.Rows, row)
	}

	ds.Sort()
	return ds, nil
}

// WriteCSV persists the dataset to its primary CSV form: date first,
// then value columns in dataset order; no-data cells written empty.
func WriteCSV(ds Dataset, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "dataset: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"date"}, ds.Columns...)
	if err := w.Write(header); err != nil {
		return eris.Wrapf(err, "dataset: write header to %s", path)
	}

	record := make([]string, len(header))
	for _, row := range ds.Rows {
		record[0] = row.Date.Format(DateLayout)
		for i, col := range ds.Columns {
			if v, ok := row.Values[col]; ok {
				record[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
			} else {
				record[i+1] = ""
			}
		}
		if err := w.Write(record); err != nil {
			return eris.Wrapf(err, "dataset: write row to %s", path)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "dataset: flush %s", path)
	}
	return nil
}
