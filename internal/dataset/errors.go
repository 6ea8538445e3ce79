package dataset

import "errors"

// Sentinel kinds for dataset errors.
var (
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrInvalidSplit    = errors.New("invalid split parameters")
)
