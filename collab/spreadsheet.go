package collab

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// SpreadsheetReaderAdapter is the reference SpreadsheetReader
// implementation, reusing the teacher's excelize sheet-walk idiom
// (parser/xlsx.go's GetSheetList/GetRows), shared with the compiler
// package's workbook traversal.
type SpreadsheetReaderAdapter struct{}

// ReadSheet returns the raw rows of one sheet.
func (a *SpreadsheetReaderAdapter) ReadSheet(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("collab: opening workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("collab: reading sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// SheetNames lists every sheet in the workbook.
func (a *SpreadsheetReaderAdapter) SheetNames(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("collab: opening workbook: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}
