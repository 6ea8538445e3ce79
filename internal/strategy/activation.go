package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/playsignal/pltv/internal/domain/model"
	"github.com/playsignal/pltv/pkg/logger"
)

// Activation simulation constants. The simulation is a closed-form model of
// a paid-acquisition platform's response to a lookalike seed, not a live
// call: tighter value concentration in the seed is modeled as a cheaper
// cost-per-install, and acquired installs inherit a fraction of the seed's
// quality edge.
const (
	cpiFloorFraction = 0.2 // CPI never drops below this fraction of the base
	seedQualityGain  = 0.3 // share of the seed's lift passed to acquired installs
)

// ActivationConfig parameterizes the simulation.
type ActivationConfig struct {
	Budget         float64 `validate:"gt=0"`
	BaseCPI        float64 `validate:"gt=0"`
	AdsSensitivity float64 `validate:"gte=0,lte=2"`
	SeedSize       int     `validate:"gt=0"`
	HorizonDays    int     `validate:"gte=1,lte=90"`
}

// ActivationOutcome is the simulated spend response for one strategy.
type ActivationOutcome struct {
	Strategy          string
	SeedSize          int // consented users actually selected; clamps to availability
	ConcentrationLift float64
	CPI               float64
	Installs          float64
	RevenueByDay      []float64 // cumulative, RevenueByDay[d-1] is through day d
	TotalRevenue      float64
	ROAS              float64
	Profit            float64
}

// SimulateActivation runs the closed-form activation model for every
// strategy. Only users with tracking consent are eligible for the seed;
// a seed size above the consented population clamps to it. Deterministic
// given identical inputs.
func (c *Comparator) SimulateActivation(ctx context.Context, rows []model.FeatureRow, defs []Def, cfg ActivationConfig) ([]ActivationOutcome, error) {
	if len(defs) == 0 {
		return nil, ErrNoStrategies
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidActivation)
	}
	if cfg.HorizonDays == 0 {
		cfg.HorizonDays = 30
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidActivation, err)
	}

	labels := make(map[string]float64, len(rows))
	consented := make(map[string]bool, len(rows))
	var total float64
	var consentedN int
	for i := range rows {
		v, ok := rows[i].Label(c.target)
		if !ok {
			return nil, fmt.Errorf("%w: unknown target %q", ErrInvalidActivation, c.target)
		}
		labels[rows[i].UserID] = v
		total += v
		if rows[i].Consent {
			consented[rows[i].UserID] = true
			consentedN++
		}
	}
	if consentedN == 0 {
		return nil, fmt.Errorf("%w: no consented users to seed from", ErrInvalidActivation)
	}
	popMean := total / float64(len(rows))

	out := make([]ActivationOutcome, 0, len(defs))
	for _, def := range defs {
		r := rankByScore(rows, def)

		seedSize := cfg.SeedSize
		if seedSize > consentedN {
			seedSize = consentedN
		}
		var seedValue float64
		var picked int
		for _, id := range r.ids {
			if picked == seedSize {
				break
			}
			if !consented[id] {
				continue
			}
			seedValue += labels[id]
			picked++
		}

		// Concentration lift: how much value the seed packs relative to a
		// random selection of the same size.
		randomShare := float64(seedSize) / float64(len(rows))
		var lift float64 = 1
		if total > 0 && randomShare > 0 {
			lift = (seedValue / total) / randomShare
		}

		cpi := cfg.BaseCPI / (1 + cfg.AdsSensitivity*(lift-1))
		if floor := cfg.BaseCPI * cpiFloorFraction; cpi < floor {
			cpi = floor
		}
		installs := cfg.Budget / cpi

		// Acquired installs mature along a log ramp out to the horizon.
		perInstall := popMean * (1 + seedQualityGain*(lift-1))
		curve := make([]float64, cfg.HorizonDays)
		for d := 1; d <= cfg.HorizonDays; d++ {
			frac := math.Log1p(float64(d)) / math.Log1p(float64(cfg.HorizonDays))
			curve[d-1] = installs * perInstall * frac
		}
		totalRevenue := curve[len(curve)-1]

		out = append(out, ActivationOutcome{
			Strategy:          def.Name,
			SeedSize:          seedSize,
			ConcentrationLift: lift,
			CPI:               cpi,
			Installs:          installs,
			RevenueByDay:      curve,
			TotalRevenue:      totalRevenue,
			ROAS:              totalRevenue / cfg.Budget,
			Profit:            totalRevenue - cfg.Budget,
		})
	}

	c.logger.Info(ctx, "activation simulation complete",
		logger.Int("strategies", len(defs)),
		logger.Float64("budget", cfg.Budget),
	)
	return out, nil
}
