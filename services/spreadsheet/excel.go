// Package sheetsvc reads and writes XLSX workbooks.
package sheetsvc

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

var ErrNoSheet = errors.New("the workbook does not contain any sheets")

// Sheet is a named worksheet; its first row is written as a bold header.
type Sheet struct {
	Name string
	Rows [][]string
}

// Write writes the sheets as a single workbook to w.
func Write(w io.Writer, sheets ...Sheet) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}

	for i, sheet := range sheets {
		name := sheet.Name
		if name == "" {
			name = defaultSheet
		}
		if i == 0 {
			if err = f.SetSheetName(defaultSheet, name); err != nil {
				return errors.Wrap(err, "naming sheet")
			}
		} else if _, err = f.NewSheet(name); err != nil {
			return errors.Wrap(err, "adding sheet "+name)
		}
		if err = writeRows(f, name, sheet.Rows, bold); err != nil {
			return err
		}
	}

	if _, err = f.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]string, headerStyle int) error {
	var width int
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Wrap(err, "locating row")
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err = f.SetSheetRow(sheet, cell, &values); err != nil {
			return errors.Wrapf(err, "writing row %d", i+1)
		}
		if len(row) > width {
			width = len(row)
		}
	}
	if len(rows) == 0 || width == 0 {
		return nil
	}

	last, err := excelize.ColumnNumberToName(width)
	if err != nil {
		return errors.Wrap(err, "locating last column")
	}
	if err = f.SetCellStyle(sheet, "A1", last+"1", headerStyle); err != nil {
		return errors.Wrap(err, "styling header")
	}
	return errors.Wrap(f.SetColWidth(sheet, "A", last, 18), "sizing columns")
}

// Read returns the rows of the first sheet of the workbook read from r.
func Read(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "opening workbook")
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrNoSheet
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrap(err, "reading sheet "+sheet)
	}
	return rows, nil
}
