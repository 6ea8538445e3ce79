package ingest

import "errors"

// Sentinel kinds for ingestion errors. Header and emptiness problems reject
// the whole file before any pipeline stage runs.
var (
	ErrEmptyInput    = errors.New("input has no header row")
	ErrMissingColumn = errors.New("missing required column")
)
