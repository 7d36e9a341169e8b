package chunk

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/summarize"
	"github.com/hyperjump/shiryo/pkg/utils"
)

// RowProducer groups table rows into chunks by size. Rows accumulate until the letters and
// digits in their cell values reach the threshold. A row that reaches the threshold alone
// becomes its own chunk. Each sheet ends with a flush, so chunks never span sheets.
// SequenceID is the 1-based chunk index across the whole document.
type RowProducer struct {
	source TableSource
	opts   options
}

// NewRowProducer returns a size-based producer reading from source.
func NewRowProducer(source TableSource, opts ...Option) *RowProducer {
	return &RowProducer{source: source, opts: newOptions(opts)}
}

type rowBatch struct {
	rows   [][]string
	lines  []string
	weight int
}

func (b *rowBatch) add(row []string, line string, weight int) {
	b.rows = append(b.rows, row)
	b.lines = append(b.lines, line)
	b.weight += weight
}

func (b *rowBatch) empty() bool { return len(b.rows) == 0 }

// Produce parses path and returns the row chunks in document order.
func (p *RowProducer) Produce(ctx context.Context, path string) ([]models.Chunk, error) {
	tables, err := p.source.Tables(path)
	if err != nil {
		return nil, fmt.Errorf("parse tables: %w", err)
	}
	var chunks []models.Chunk
	for _, tbl := range tables {
		batch := &rowBatch{}
		for _, row := range tbl.Rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			line, weight := renderRow(tbl.Columns, row)
			if weight >= p.opts.rowThreshold {
				chunks = p.flush(ctx, chunks, batch, tbl)
				batch.add(row, line, weight)
				chunks = p.flush(ctx, chunks, batch, tbl)
				continue
			}
			batch.add(row, line, weight)
			if batch.weight >= p.opts.rowThreshold {
				chunks = p.flush(ctx, chunks, batch, tbl)
			}
		}
		chunks = p.flush(ctx, chunks, batch, tbl)
	}
	return chunks, nil
}

// flush appends the pending batch as a chunk and resets it.
func (p *RowProducer) flush(ctx context.Context, chunks []models.Chunk, b *rowBatch, tbl extract.Table) []models.Chunk {
	if b.empty() {
		return chunks
	}
	content := strings.Join(b.lines, "\n")
	summary := p.columnSummary(tbl.Columns, b.rows)
	if summary == "" {
		summary = p.opts.summary(ctx, content)
	}
	chunks = append(chunks, models.Chunk{
		SequenceID: len(chunks) + 1,
		Content:    content,
		Summary:    summary,
	})
	*b = rowBatch{}
	return chunks
}

// columnSummary joins the non-empty values of the configured summary columns.
// It returns "" when no summary columns are configured or none is present in the table.
func (p *RowProducer) columnSummary(columns []string, rows [][]string) string {
	if len(p.opts.summaryColumns) == 0 {
		return ""
	}
	var idx []int
	for i, c := range columns {
		for _, want := range p.opts.summaryColumns {
			if strings.EqualFold(strings.TrimSpace(want), c) {
				idx = append(idx, i)
				break
			}
		}
	}
	var values []string
	for _, row := range rows {
		for _, i := range idx {
			if i < len(row) {
				if v := strings.TrimSpace(row[i]); v != "" {
					values = append(values, v)
				}
			}
		}
	}
	return summarize.Truncate(strings.Join(values, "; "), p.opts.summaryLength)
}

// renderRow formats a row as "Column: value | Column: value" and returns the number of
// letters and digits in its values.
func renderRow(columns, row []string) (string, int) {
	parts := make([]string, 0, len(row))
	weight := 0
	for i, cell := range row {
		v := strings.TrimSpace(cell)
		if v == "" {
			continue
		}
		name := fmt.Sprintf("column_%d", i+1)
		if i < len(columns) {
			name = columns[i]
		}
		parts = append(parts, name+": "+v)
		weight += utils.MeaningfulLen(v)
	}
	return strings.Join(parts, " | "), weight
}
