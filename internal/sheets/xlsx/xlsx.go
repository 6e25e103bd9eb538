// Package xlsx renders sheets as Excel workbooks.
package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"cagnotte/internal/sheets"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultName = "Sheet1"
	// Excel rejects longer sheet names.
	maxSheetName = 31
	// excelize built-in format "0.00".
	numFmtTwoDecimals = 2
)

// Encode writes s as a single-sheet workbook with a bold header row.
// Float cells are shown with two decimals.
func Encode(w io.Writer, s sheets.Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	name := s.Name
	if name == "" {
		name = defaultName
	}
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	if name != defaultName {
		if err := f.SetSheetName(defaultName, name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: numFmtTwoDecimals})
	if err != nil {
		return fmt.Errorf("amount style: %w", err)
	}

	for i, row := range s.Values() {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
		if i == 0 {
			continue
		}
		for j, v := range row {
			if _, ok := v.(float64); !ok {
				continue
			}
			c, _ := excelize.CoordinatesToCellName(j+1, i+1)
			if err := f.SetCellStyle(name, c, c, amountStyle); err != nil {
				return fmt.Errorf("style cell %s: %w", c, err)
			}
		}
	}

	if n := len(s.Headers); n > 0 {
		last, _ := excelize.CoordinatesToCellName(n, 1)
		if err := f.SetCellStyle(name, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
		lastCol, _ := excelize.ColumnNumberToName(n)
		if err := f.SetColWidth(name, "A", lastCol, 20); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
