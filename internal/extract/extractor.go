// Package extract turns document files into per-page text or per-sheet tables.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/shiryo/internal/models"
)

// Kind is the shape of parsed output a file type produces.
type Kind int

const (
	// KindUnsupported marks file types with no parser.
	KindUnsupported Kind = iota
	// KindPages marks paginated documents (one text unit per page or slide).
	KindPages
	// KindTable marks tabular documents (rows with column names).
	KindTable
)

// Page is the text of one page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Table is one sheet of a tabular document.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// SupportedExtensions lists every extension with a parser.
var SupportedExtensions = []string{".pdf", ".pptx", ".docx", ".odt", ".rtf", ".txt", ".md", ".xlsx", ".csv"}

// KindOf returns the parsed shape for path based on its extension.
func KindOf(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".pptx", ".docx", ".odt", ".rtf", ".txt", ".md":
		return KindPages
	case ".xlsx", ".csv":
		return KindTable
	default:
		return KindUnsupported
	}
}

// Extractor parses document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Pages reads the file at path and returns its pages in order.
func (e *Extractor) Pages(path string) ([]Page, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".odt", ".rtf":
		return extractCat(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.PagesBytes(content, strings.ToLower(filepath.Ext(path)))
}

// PagesBytes parses content as a paginated document with the given extension (".pdf" etc).
func (e *Extractor) PagesBytes(content []byte, ext string) ([]Page, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".pptx":
		return extractPPTX(content)
	case ".docx":
		text, err := extractDOCX(content)
		if err != nil {
			return nil, err
		}
		return singlePage(text), nil
	case ".txt", ".md":
		text, err := extractPlain(content)
		if err != nil {
			return nil, err
		}
		return singlePage(text), nil
	}
	return nil, fmt.Errorf("%w: %q has no page parser", models.ErrUnsupportedType, ext)
}

// Tables reads the file at path and returns its sheets in order.
func (e *Extractor) Tables(path string) ([]Table, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.TablesBytes(content, strings.ToLower(filepath.Ext(path)), filepath.Base(path))
}

// TablesBytes parses content as a tabular document. name labels single-table formats.
func (e *Extractor) TablesBytes(content []byte, ext, name string) ([]Table, error) {
	switch ext {
	case ".xlsx":
		return extractExcel(content)
	case ".csv":
		return extractCSV(content, name)
	}
	return nil, fmt.Errorf("%w: %q has no table parser", models.ErrUnsupportedType, ext)
}

// singlePage wraps whole-document text. Empty text yields no pages.
func singlePage(text string) []Page {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []Page{{Number: 1, Text: text}}
}

// splitHeader returns the first non-empty row as column names and the remaining non-empty rows.
// Columns without a header get a positional name.
func splitHeader(rows [][]string) ([]string, [][]string) {
	var header []string
	start := len(rows)
	for i, row := range rows {
		if !isBlankRow(row) {
			header = row
			start = i + 1
			break
		}
	}
	if header == nil {
		return nil, nil
	}
	columns := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		columns[i] = h
	}
	var body [][]string
	for _, row := range rows[start:] {
		if isBlankRow(row) {
			continue
		}
		body = append(body, row)
	}
	return columns, body
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
