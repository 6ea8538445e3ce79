// Package config defines pipeline configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load(ctx) layers defaults, an optional YAML file, and environment variables.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
)

// Config contains process configuration for the pipeline.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// WorkerCount bounds parallel per-row feature computation.
	WorkerCount int `koanf:"worker_count"`

	// ObservationWindowDays is the feature window anchored to install time.
	ObservationWindowDays int `koanf:"observation_window_days"`

	// DriftToleranceMinutes allows events slightly before install time
	// (client clock drift) before they are quarantined.
	DriftToleranceMinutes int `koanf:"drift_tolerance_minutes"`

	// QuarantineHorizonDays drops events later than install+horizon.
	QuarantineHorizonDays int `koanf:"quarantine_horizon_days"`

	// BaseCurrency is the target currency for revenue standardization.
	BaseCurrency string `koanf:"base_currency"`

	// RandomSplitSeed seeds the deterministic random-split ordering.
	RandomSplitSeed uint64 `koanf:"random_split_seed"`

	// ImmatureTailPct is the share of most recent installs dropped by the
	// random split strategy (labels not yet mature).
	ImmatureTailPct float64 `koanf:"immature_tail_pct"`

	// BoostRounds and LearningRate tune the boosted regression estimator.
	BoostRounds  int     `koanf:"boost_rounds"`
	LearningRate float64 `koanf:"learning_rate"`

	// Activation simulation defaults.
	ActivationBudget float64 `koanf:"activation_budget"`
	BaseCPI          float64 `koanf:"base_cpi"`
	AdsSensitivity   float64 `koanf:"ads_sensitivity"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		WorkerCount:           runtime.NumCPU(),
		ObservationWindowDays: 7,
		DriftToleranceMinutes: 60,
		QuarantineHorizonDays: 62,
		BaseCurrency:          "USD",
		RandomSplitSeed:       42,
		ImmatureTailPct:       3.0,
		BoostRounds:           60,
		LearningRate:          0.1,
		ActivationBudget:      50_000,
		BaseCPI:               2.5,
		AdsSensitivity:        0.5,
	}
}
