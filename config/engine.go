package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fusionbot/internal/engine/exits"
	"fusionbot/internal/engine/protection"
	"fusionbot/internal/risk"
	"fusionbot/internal/signal/alignment"
	"fusionbot/internal/signal/flipguard"
	"fusionbot/internal/signal/retest"
	"fusionbot/internal/signal/scorer"
)

// FilterConfig tunes the soft entry filters.
type FilterConfig struct {
	FundingMaxAbsRate  float64 `yaml:"funding_max_abs_rate"`
	BTCSymbol          string  `yaml:"btc_symbol"`
	BTCInterval        string  `yaml:"btc_interval"`
	BTCLookback        int     `yaml:"btc_lookback"`
	BTCMaxAdversePct   float64 `yaml:"btc_max_adverse_pct"`
	DisableFunding     bool    `yaml:"disable_funding"`
	DisableCorrelation bool    `yaml:"disable_correlation"`
}

// EngineConfig aggregates the tuning parameters of every decision component.
// All sections have sensible defaults; a YAML file only needs to override
// what it changes.
type EngineConfig struct {
	Scorer     scorer.Config     `yaml:"scorer"`
	Alignment  alignment.Config  `yaml:"alignment"`
	FlipGuard  flipguard.Config  `yaml:"flip_guard"`
	Retest     retest.Config     `yaml:"retest"`
	Risk       risk.Config       `yaml:"risk"`
	Protection protection.Config `yaml:"protection"`
	Exits      exits.Config      `yaml:"exits"`
	Filters    FilterConfig      `yaml:"filters"`
}

// DefaultEngineConfig returns the stock tuning for every component.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Scorer:    scorer.DefaultConfig(),
		Alignment: alignment.DefaultConfig(),
		FlipGuard: flipguard.DefaultConfig(),
		Retest:    retest.DefaultConfig(),
		Risk: risk.Config{
			MaxPositionSize:             5.0,
			MaxLeverage:                 20,
			MaxDrawdown:                 0.15,
			MaxDailyLoss:                0.05,
			MaxOpenPositions:            1,
			PositionSizePercent:         0.05,
			MaxDailyTrades:              10,
			MinConfidenceToEnter:        0.65,
			MinConfidenceForReducedSize: 0.5,
		},
		Protection: protection.DefaultConfig(),
		Exits:      exits.DefaultConfig(),
		Filters: FilterConfig{
			FundingMaxAbsRate: 0.0003,
			BTCSymbol:         "BTCUSDT",
			BTCInterval:       "15m",
			BTCLookback:       4,
			BTCMaxAdversePct:  1.5,
		},
	}
}

// LoadEngineConfig reads the YAML tuning file at path, layered over the
// defaults. An empty path returns the defaults unchanged.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read engine config '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse engine config '%s': %w", path, err)
	}
	return cfg, nil
}
