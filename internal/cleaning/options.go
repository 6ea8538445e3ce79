package cleaning

import (
	"time"

	"github.com/playsignal/pltv/internal/domain/model"
	"github.com/playsignal/pltv/pkg/logger"
)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithRates sets the currency conversion table (currency code -> rate into
// the base currency). The base currency itself is implied at rate 1.
func WithRates(rates map[string]model.Amount) Option {
	return func(p *Pipeline) {
		if rates != nil {
			p.rates = rates
		}
	}
}

// WithDriftTolerance sets the allowed pre-install clock drift before an
// event is quarantined.
func WithDriftTolerance(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.driftTolerance = d
		}
	}
}

// WithHorizon sets the post-install horizon beyond which events are
// quarantined.
func WithHorizon(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.horizon = d
		}
	}
}

// WithAnomalyThreshold sets the |z-score| above which a day's event volume
// is flagged.
func WithAnomalyThreshold(z float64) Option {
	return func(p *Pipeline) {
		if z > 0 {
			p.anomalyZ = z
		}
	}
}

// WithLogger sets a custom logger for the pipeline.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}
