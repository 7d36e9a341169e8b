package extract

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// extractExcel returns one Table per sheet. Sheets with no non-empty rows are skipped.
func extractExcel(content []byte) ([]Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var tables []Table
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		columns, body := splitHeader(rows)
		if columns == nil {
			continue
		}
		tables = append(tables, Table{Name: sheet, Columns: columns, Rows: body})
	}
	return tables, nil
}
