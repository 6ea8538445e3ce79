package training

import "errors"

// Sentinel kinds for training errors.
var (
	ErrInvalidTrainConfig = errors.New("invalid train config")
	ErrModelNotFound      = errors.New("model not found")
	ErrEmptyDataset       = errors.New("dataset has no rows")
)
