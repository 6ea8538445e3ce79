package features

import "errors"

// Sentinel kinds for catalog and engine errors.
var (
	ErrEmptyCatalog   = errors.New("catalog has no features")
	ErrUnknownFeature = errors.New("unknown feature")
	ErrInvalidRisk    = errors.New("invalid leakage risk level")
)
