// Package cli provides output formatting and an API client for the shiryo command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/progress"
	"github.com/hyperjump/shiryo/pkg/utils"
)

// OutputFormat selects how command results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const previewRunes = 200

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms (mode: %s)\n\n", response.Total, response.QueryTime, response.Mode)
	for _, hit := range response.Results {
		writeHit(w, hit)
	}
	return nil
}

func writeHit(w io.Writer, hit *models.Hit) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f", hit.Rank, hit.Score)
	var paths []string
	if hit.SummaryScore != nil {
		paths = append(paths, fmt.Sprintf("summary %.4f", *hit.SummaryScore))
	}
	if hit.ContentScore != nil {
		paths = append(paths, fmt.Sprintf("content %.4f", *hit.ContentScore))
	}
	if len(paths) > 0 {
		fmt.Fprintf(w, " (%s)", strings.Join(paths, ", "))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s, page %d, owner %s%s\n", hit.Filename, hit.SequenceID, hit.Owner, publicTag(hit.IsPublic))
	if hit.Summary != "" && hit.Summary != hit.Content {
		fmt.Fprintf(w, "Summary: %s\n", utils.Truncate(hit.Summary, previewRunes))
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(utils.CollapseWhitespace(hit.Content), previewRunes))
}

func publicTag(public bool) string {
	if public {
		return " [public]"
	}
	return ""
}

// WritePages writes page lookup results. Text output lists fields in payload order.
func WritePages(w io.Writer, pages []map[string]any, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]any{"pages": pages})
	}
	if len(pages) == 0 {
		fmt.Fprintln(w, "No pages found")
		return nil
	}
	for _, page := range pages {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		for _, key := range pageKeys(page) {
			v := page[key]
			if key == models.FieldContent || key == models.FieldSummary {
				fmt.Fprintf(w, "%s:\n%v\n", key, v)
				continue
			}
			fmt.Fprintf(w, "%s: %v\n", key, v)
		}
	}
	return nil
}

func pageKeys(page map[string]any) []string {
	keys := make([]string, 0, len(page))
	for _, f := range models.PayloadFields {
		if _, ok := page[f]; ok {
			keys = append(keys, f)
		}
	}
	var extra []string
	for k := range page {
		known := false
		for _, f := range models.PayloadFields {
			if k == f {
				known = true
				break
			}
		}
		if !known {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// WriteDocuments writes the document registry as a table or JSON.
func WriteDocuments(w io.Writer, docs []models.DocumentSummary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]any{"documents": docs})
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents")
		return nil
	}
	width := len("FILENAME")
	for _, d := range docs {
		if len(d.Filename) > width {
			width = len(d.Filename)
		}
	}
	fmt.Fprintf(w, "%-*s  %-16s  %-7s  %s\n", width, "FILENAME", "OWNER", "PUBLIC", "CHUNKS")
	for _, d := range docs {
		fmt.Fprintf(w, "%-*s  %-16s  %-7t  %d\n", width, d.Filename, d.Owner, d.IsPublic, d.ChunkCount)
	}
	return nil
}

// WriteProgress writes one progress line. Text output rewrites the current terminal line.
func WriteProgress(w io.Writer, snap progress.Snapshot, format OutputFormat) error {
	if format == OutputJSON {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}
	line := fmt.Sprintf("\r[%5.1f%%] %-10s %d/%d %s", snap.ProgressPercent, snap.Stage, snap.CurrentChunk, snap.TotalChunks, snap.Message)
	if snap.Stage.Terminal() {
		line += "\n"
	}
	_, err := io.WriteString(w, line)
	return err
}

// Status is the engine summary reported by the status command.
type Status struct {
	Documents        int    `json:"documents"`
	Chunks           int    `json:"chunks"`
	ActiveIngestions int    `json:"active_ingestions"`
	DiskUsageBytes   *int64 `json:"disk_usage_bytes,omitempty"`
}

// WriteStatus writes s in the given format.
func WriteStatus(w io.Writer, s *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "documents:          %d   # distinct (filename, owner) pairs\n", s.Documents)
	fmt.Fprintf(w, "chunks:             %d   # stored points\n", s.Chunks)
	fmt.Fprintf(w, "active_ingestions:  %d\n", s.ActiveIngestions)
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # stores and indexes on disk\n", *s.DiskUsageBytes)
	}
	return nil
}
