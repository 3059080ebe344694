package config

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// Preset is a named bundle of strategy parameters the backtester (an
// external collaborator per spec §1) can be pointed at instead of
// supplying every threshold on each /backtest/run call. This is the one
// surface that still reads a YAML file, mirroring the teacher's
// config.go's yaml.v3 + os.ExpandEnv decoding style — live runtime config
// stays entirely environment-sourced per spec §6.
type Preset struct {
	Name     string  `yaml:"name"`
	Symbol   string  `yaml:"symbol"`
	Interval string  `yaml:"interval"`
	Signal   Signal  `yaml:"signal"`
	Risk     Risk    `yaml:"risk"`
}

// Signal mirrors the fields of SignalConfig a preset may override.
type Signal struct {
	BuyRSIMax       float64 `yaml:"buy_rsi_max"`
	BuyMACDHistMin  float64 `yaml:"buy_macd_hist_min"`
	BuyADXMin       float64 `yaml:"buy_adx_min"`
	BuyEntropyMin   float64 `yaml:"buy_entropy_min"`
	SellRSIMin      float64 `yaml:"sell_rsi_min"`
	SellMACDHistMax float64 `yaml:"sell_macd_hist_max"`
}

// Risk mirrors the fields of RiskConfig a preset may override.
type Risk struct {
	MaxPositionUSD  float64 `yaml:"max_position_usd"`
	MaxDailyLossUSD float64 `yaml:"max_daily_loss_usd"`
}

// PresetSet is the top-level document: a named list of presets, so a single
// file can back the /backtest/presets listing endpoint.
type PresetSet struct {
	Presets []Preset `yaml:"presets"`
}

// LoadPresets reads and parses a presets file. Missing file is not an
// error — it returns an empty set, since presets are optional and the
// backtester degrades to caller-supplied parameters without one.
func LoadPresets(path string) (PresetSet, error) {
	if strings.TrimSpace(path) == "" {
		return PresetSet{}, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied config file path
	if err != nil {
		if os.IsNotExist(err) {
			return PresetSet{}, nil
		}
		return PresetSet{}, fmt.Errorf("reading presets file %q: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var set PresetSet
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil {
		return PresetSet{}, fmt.Errorf("parsing presets %q: %w", path, err)
	}
	return set, nil
}

// Find returns the named preset, or false if no preset by that name exists.
func (s PresetSet) Find(name string) (Preset, bool) {
	for _, p := range s.Presets {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Preset{}, false
}
