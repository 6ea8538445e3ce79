package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if PLTV_CONFIG is set
//  3. env (prefix PLTV_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("PLTV_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: PLTV_LOG_LEVEL, PLTV_WORKER_COUNT, ...
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("PLTV_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "pltv_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch {
	case cfg.ObservationWindowDays <= 0:
		return fmt.Errorf("%w: observation_window_days must be positive", ErrInvalidConfig)
	case cfg.QuarantineHorizonDays < cfg.ObservationWindowDays:
		return fmt.Errorf("%w: quarantine_horizon_days must cover the observation window", ErrInvalidConfig)
	case cfg.BaseCurrency == "":
		return fmt.Errorf("%w: base_currency must not be empty", ErrInvalidConfig)
	case cfg.ImmatureTailPct < 0 || cfg.ImmatureTailPct >= 100:
		return fmt.Errorf("%w: immature_tail_pct must be in [0,100)", ErrInvalidConfig)
	case cfg.BoostRounds <= 0:
		return fmt.Errorf("%w: boost_rounds must be positive", ErrInvalidConfig)
	case cfg.LearningRate <= 0 || cfg.LearningRate > 1:
		return fmt.Errorf("%w: learning_rate must be in (0,1]", ErrInvalidConfig)
	}
	return nil
}
