package features

import (
	"time"

	"github.com/playsignal/pltv/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithObservationWindow sets the feature window anchored at install time.
func WithObservationWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithWorkers bounds parallel per-row computation. Results are always
// assembled in input order.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
