package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPresets_MissingFileReturnsEmptySet(t *testing.T) {
	set, err := LoadPresets(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("expected no error for missing presets file, got %v", err)
	}
	if len(set.Presets) != 0 {
		t.Errorf("expected empty preset set, got %d presets", len(set.Presets))
	}
}

func TestLoadPresets_EmptyPathReturnsEmptySet(t *testing.T) {
	set, err := LoadPresets("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Presets) != 0 {
		t.Error("expected empty preset set for empty path")
	}
}

func TestLoadPresets_ParsesNamedPresets(t *testing.T) {
	const doc = `
presets:
  - name: conservative
    symbol: BTCUSDT
    interval: 1m
    signal:
      buy_rsi_max: 30
      sell_rsi_min: 70
    risk:
      max_position_usd: 100
      max_daily_loss_usd: 50
  - name: aggressive
    symbol: ETHUSDT
    interval: 5m
`
	path := filepath.Join(t.TempDir(), "presets.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	set, err := LoadPresets(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Presets) != 2 {
		t.Fatalf("expected 2 presets, got %d", len(set.Presets))
	}

	p, ok := set.Find("Conservative")
	if !ok {
		t.Fatal("expected to find preset by case-insensitive name")
	}
	if p.Symbol != "BTCUSDT" || p.Signal.BuyRSIMax != 30 {
		t.Errorf("unexpected preset contents: %+v", p)
	}
}

func TestLoadPresets_RejectsUnknownFields(t *testing.T) {
	const doc = `
presets:
  - name: bad
    symbol: BTCUSDT
    unknown_field: true
`
	path := filepath.Join(t.TempDir(), "presets.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadPresets(path); err == nil {
		t.Error("expected error for unknown field in presets file")
	}
}

func TestPresetSet_Find_NotFound(t *testing.T) {
	set := PresetSet{Presets: []Preset{{Name: "a"}}}
	if _, ok := set.Find("b"); ok {
		t.Error("expected Find to report not-found for unknown preset name")
	}
}
