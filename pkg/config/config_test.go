package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverridesOnlySetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	content := `
[pacer]
headroom = 1.5

[bwe]
decrease_factor = 0.75
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Pacer.Headroom != 1.5 {
		t.Errorf("expected overridden headroom 1.5, got %v", cfg.Pacer.Headroom)
	}
	if cfg.Bwe.DecreaseFactor != 0.75 {
		t.Errorf("expected overridden decrease_factor 0.75, got %v", cfg.Bwe.DecreaseFactor)
	}
	// Everything else should still be the default.
	if cfg.Pacer.TickIntervalMs != Default().Pacer.TickIntervalMs {
		t.Errorf("expected default tick interval, got %v", cfg.Pacer.TickIntervalMs)
	}
	if cfg.Filter.UsageCoef != Default().Filter.UsageCoef {
		t.Errorf("expected default usage coef, got %v", cfg.Filter.UsageCoef)
	}
}

func TestPacerConfigConversion(t *testing.T) {
	cfg := Default()
	pc := cfg.PacerConfig()
	if pc.Headroom != cfg.Pacer.Headroom {
		t.Errorf("expected headroom to carry over, got %v", pc.Headroom)
	}
}
