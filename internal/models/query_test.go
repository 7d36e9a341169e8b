package models

import (
	"errors"
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name      string
		query     *SearchQuery
		wantErr   bool
		wantLimit int
		wantMode  SearchMode
	}{
		{"empty query", &SearchQuery{Query: ""}, true, 0, ""},
		{"blank query", &SearchQuery{Query: "   "}, true, 0, ""},
		{"valid query", &SearchQuery{Query: "hello"}, false, DefaultLimit, ModeDual},
		{"caps limit at max", &SearchQuery{Query: "x", Limit: 500}, false, MaxLimit, ModeDual},
		{"keeps mode", &SearchQuery{Query: "x", Limit: 3, Mode: ModeSummary}, false, 3, ModeSummary},
		{"mode is case insensitive", &SearchQuery{Query: "x", Mode: "CONTENT"}, false, DefaultLimit, ModeContent},
		{"unknown mode", &SearchQuery{Query: "x", Mode: "vector"}, true, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("error %v should wrap ErrInvalidInput", err)
				}
				return
			}
			if tt.query.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", tt.query.Limit, tt.wantLimit)
			}
			if tt.query.Mode != tt.wantMode {
				t.Errorf("Mode = %q, want %q", tt.query.Mode, tt.wantMode)
			}
		})
	}
}

func TestPageQuery_Validate(t *testing.T) {
	if err := (&PageQuery{Filename: ""}).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty filename: got %v", err)
	}
	if err := (&PageQuery{Filename: "a.pdf", Fields: []string{"content", "page_text"}}).Validate(); !errors.Is(err, ErrInvalidField) {
		t.Errorf("unknown field: got %v", err)
	}
	if err := (&PageQuery{Filename: "a.pdf", Fields: []string{"content", "owner"}}).Validate(); err != nil {
		t.Errorf("valid fields: got %v", err)
	}
}

func TestChunk_Project(t *testing.T) {
	c := &Chunk{Filename: "a.pdf", Owner: "alice", SequenceID: 3, Content: "text", Summary: "sum"}
	all := c.Project(nil)
	if len(all) != len(PayloadFields) {
		t.Errorf("Project(nil) returned %d fields, want %d", len(all), len(PayloadFields))
	}
	some := c.Project([]string{FieldSequenceID, FieldContent})
	if len(some) != 2 || some[FieldSequenceID] != 3 || some[FieldContent] != "text" {
		t.Errorf("Project(subset) = %v", some)
	}
}
