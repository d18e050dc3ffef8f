package dataset

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

const xlsxSheetName = "daily"

// WriteXLSX persists the dataset to its secondary redundant form, an
// XLSX workbook with the same schema as the CSV. This copy is a
// convenience, not the source of truth; callers treat failures here as
// non-fatal.
func WriteXLSX(ds Dataset, path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(xlsxSheetName)
	if err != nil {
		return eris.Wrap(err, "dataset: add xlsx sheet")
	}

	header := sheet.AddRow()
	header.AddCell().SetString("date")
	for _, col := range ds.Columns {
		header.AddCell().SetString(col)
	}

	for _, row := range ds.Rows {
		r := sheet.AddRow()
		r.AddCell().SetString(row.Date.Format(DateLayout))
		for _, col := range ds.Columns {
			cell := r.AddCell()
			if v, ok := row.Values[col]; ok {
				cell.SetFloat(v)
			} else {
				cell.SetString("")
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "dataset: save xlsx %s", path)
	}
	return nil
}
