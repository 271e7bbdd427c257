// Package config loads TradeCore's run configuration from YAML: signal
// weights, PSM base thresholds, cost model, scalper overlay, and execution
// mode. Grounded on the teacher's unmarshal-into-a-defaults-seeded-struct
// loader idiom, generalized from a guards-profile tree to a flat run
// config. This repo standardizes on yaml.v3 for all config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/tradecore/internal/costmodel"
	"github.com/sawpanic/tradecore/internal/signal"
)

// Mode selects whether the orchestrator drives execution directly from
// signal probability or through the PSM, per SPEC_FULL.md §9.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModePSM    Mode = "psm"
)

// Config is a full TradeCore run configuration, loaded from a single YAML
// document.
type Config struct {
	Mode             Mode           `yaml:"mode"`
	StartingCash     float64        `yaml:"starting_cash"`
	CostModel        costmodel.Model `yaml:"cost_model"`
	BaseBuyThreshold  float64       `yaml:"base_buy_threshold"`
	BaseSellThreshold float64       `yaml:"base_sell_threshold"`
	Weights          signal.Weights `yaml:"weights"`
	Sharpness        float64        `yaml:"sharpness"`
	WarmupBars       int            `yaml:"warmup_bars"`
	Scalper          ScalperConfig  `yaml:"scalper"`
	BlockSize        int            `yaml:"block_size"`
}

// ScalperConfig toggles and tunes the optional SMA-crossover veto overlay.
type ScalperConfig struct {
	Enabled  bool    `yaml:"enabled"`
	FastSMA  int     `yaml:"fast_sma"`
	MinEdgeP float64 `yaml:"min_edge_pct"`
}

// Default returns spec-default values for every field Load's YAML document
// may omit.
func Default() Config {
	return Config{
		Mode:              ModePSM,
		StartingCash:      100_000,
		CostModel:         costmodel.Alpaca,
		BaseBuyThreshold:  0.60,
		BaseSellThreshold: 0.40,
		Weights:           signal.DefaultWeights(),
		Sharpness:         1.0,
		WarmupBars:        20,
		Scalper:           ScalperConfig{Enabled: false, FastSMA: 20, MinEdgeP: 0.002},
		BlockSize:         480,
	}
}

// Load reads and parses a YAML config file at path, filling any field the
// document omits with Default's value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	// Unmarshal into a copy seeded with defaults so omitted YAML keys keep
	// their default rather than zeroing out.
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports whether cfg's values are internally consistent enough
// to run; this is a startup-time check, not a per-bar fatal-violation path.
func (c Config) Validate() error {
	if c.Mode != ModeDirect && c.Mode != ModePSM {
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.StartingCash <= 0 {
		return fmt.Errorf("config: starting_cash must be > 0, got %v", c.StartingCash)
	}
	if c.BaseBuyThreshold <= c.BaseSellThreshold {
		return fmt.Errorf("config: base_buy_threshold (%v) must exceed base_sell_threshold (%v)", c.BaseBuyThreshold, c.BaseSellThreshold)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("config: block_size must be > 0, got %v", c.BlockSize)
	}
	switch c.CostModel {
	case costmodel.Zero, costmodel.Fixed, costmodel.Percentage, costmodel.Alpaca:
	default:
		return fmt.Errorf("config: unknown cost_model %q", c.CostModel)
	}
	return nil
}
