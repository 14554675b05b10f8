// Package export writes search results to spreadsheets.
package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/parcel-cli/internal/model"
)

// SheetName is the worksheet results are written to.
const SheetName = "Results"

// Header is the first row of every export.
var Header = []string{"Jurisdiction", "Property ID", "Address", "Key"}

// Build creates a workbook holding results in accumulation order.
func Build(results []model.Result) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add sheet")
	}

	addRow(sheet, Header)
	for _, r := range results {
		addRow(sheet, []string{r.JurisdictionID, r.SourceRecordID, r.DisplayAddress, r.ListKey()})
	}
	return f, nil
}

// WriteXLSX saves results to path.
func WriteXLSX(path string, results []model.Result) error {
	f, err := Build(results)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "xlsx: save %s", path)
}

// Write streams a workbook of results to w.
func Write(w io.Writer, results []model.Result) error {
	f, err := Build(results)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "xlsx: write")
}

// ReadXLSX loads results back from a file produced by WriteXLSX.
func ReadXLSX(path string) ([]model.Result, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, ok := f.Sheet[SheetName]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", SheetName)
	}

	var out []model.Result
	for i, row := range sheet.Rows {
		if i == 0 {
			continue
		}
		cells := rowToStrings(row)
		if len(cells) < 3 {
			return nil, eris.Errorf("xlsx: row %d has %d cells", i+1, len(cells))
		}
		out = append(out, model.Result{JurisdictionID: cells[0], SourceRecordID: cells[1], DisplayAddress: cells[2]})
	}
	return out, nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
