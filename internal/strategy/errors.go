package strategy

import "errors"

// Sentinel kinds for comparator errors.
var (
	ErrNoStrategies      = errors.New("no strategies given")
	ErrInvalidComparison = errors.New("invalid comparison config")
	ErrInvalidActivation = errors.New("invalid activation config")
)
