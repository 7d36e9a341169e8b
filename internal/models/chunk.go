// Package models defines the chunk, query and result types shared across shiryo.
package models

import (
	"fmt"
	"strings"
)

// Payload field names. Every vector store backend and the keyword index use these keys.
const (
	FieldFilename   = "filename"
	FieldOwner      = "owner"
	FieldSequenceID = "sequence_id"
	FieldIsPublic   = "is_public"
	FieldSummary    = "summary"
	FieldContent    = "content"
)

// PayloadFields lists the fields a caller may request from a page lookup, in output order.
var PayloadFields = []string{FieldFilename, FieldOwner, FieldSequenceID, FieldIsPublic, FieldSummary, FieldContent}

// Chunk is one retrievable unit of a document. It doubles as the payload stored with each point.
type Chunk struct {
	Filename   string `json:"filename"`
	Owner      string `json:"owner"`
	SequenceID int    `json:"sequence_id"`
	IsPublic   bool   `json:"is_public"`
	Summary    string `json:"summary"`
	Content    string `json:"content"`
}

// Field returns the value of the named payload field.
func (c *Chunk) Field(name string) (any, bool) {
	switch name {
	case FieldFilename:
		return c.Filename, true
	case FieldOwner:
		return c.Owner, true
	case FieldSequenceID:
		return c.SequenceID, true
	case FieldIsPublic:
		return c.IsPublic, true
	case FieldSummary:
		return c.Summary, true
	case FieldContent:
		return c.Content, true
	}
	return nil, false
}

// Project returns the requested fields as a map. An empty fields list returns every field.
func (c *Chunk) Project(fields []string) map[string]any {
	if len(fields) == 0 {
		fields = PayloadFields
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := c.Field(f); ok {
			out[f] = v
		}
	}
	return out
}

// ValidateFields rejects any name that is not a payload field.
func ValidateFields(fields []string) error {
	var invalid []string
	for _, f := range fields {
		if !isPayloadField(f) {
			invalid = append(invalid, f)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: %s (allowed: %s)", ErrInvalidField,
			strings.Join(invalid, ", "), strings.Join(PayloadFields, ", "))
	}
	return nil
}

func isPayloadField(name string) bool {
	for _, f := range PayloadFields {
		if f == name {
			return true
		}
	}
	return false
}

// DocumentSummary is one entry of the document registry, derived from point payloads.
type DocumentSummary struct {
	Filename   string `json:"filename"`
	Owner      string `json:"owner"`
	IsPublic   bool   `json:"is_public"`
	ChunkCount int    `json:"chunk_count"`
}

// IngestResult is the outcome of a completed ingestion run.
type IngestResult struct {
	Filename        string `json:"filename"`
	Owner           string `json:"owner"`
	ProcessedChunks int    `json:"processed_chunks"`
	TotalChunks     int    `json:"total_chunks"`
}
