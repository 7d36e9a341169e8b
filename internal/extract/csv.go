package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// extractCSV returns a single Table. Rows may have differing field counts.
func extractCSV(content []byte, name string) ([]Table, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	columns, body := splitHeader(rows)
	if columns == nil {
		return nil, nil
	}
	return []Table{{Name: name, Columns: columns, Rows: body}}, nil
}
