package models

import "errors"

var (
	// ErrInvalidInput marks requests rejected before any store mutation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupportedType is returned for file types no chunk producer handles.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrInvalidField is returned when a page lookup asks for an unknown payload field.
	ErrInvalidField = errors.New("invalid field")
	// ErrDocumentNotFound is returned when a visibility update matched no points.
	ErrDocumentNotFound = errors.New("document not found")
)
