// Package config loads the relay's tunables from a TOML file. Every
// field has a documented default, so a missing or partial file is not
// an error. Load returns an error only when the file exists but cannot
// be read or parsed.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/kslab/svc-relay/pkg/bwe"
	"github.com/kslab/svc-relay/pkg/filter"
	"github.com/kslab/svc-relay/pkg/pacer"
	"github.com/kslab/svc-relay/pkg/ratecounter"
)

// PacerTunables mirrors the pacer.* tunables table.
type PacerTunables struct {
	TickIntervalMs int     `toml:"tick_interval_ms"`
	Headroom       float64 `toml:"headroom"`
	BucketSeconds  float64 `toml:"bucket_seconds"`
}

// FilterTunables mirrors the filter.* tunables table.
type FilterTunables struct {
	UsageCoef      float64 `toml:"usage_coef"`
	BurstUsageCoef float64 `toml:"burst_usage_coef"`
	DefaultFrameKB int     `toml:"default_frame_kb"`
}

// BweTunables mirrors the bwe.* tunables table.
type BweTunables struct {
	ResponseIntervalMs int     `toml:"response_interval_ms"`
	DecreaseFactor     float64 `toml:"decrease_factor"`
	IncreaseFactor     float64 `toml:"increase_factor"`
	OveruseThresholdMs float64 `toml:"overuse_threshold_init_ms"`
}

// RateCounterTunables mirrors the ratecounter.* tunables table.
type RateCounterTunables struct {
	DefaultWindowMs int `toml:"default_window_ms"`
}

// Config is the root of the relay's TOML configuration file.
type Config struct {
	Pacer       PacerTunables       `toml:"pacer"`
	Filter      FilterTunables      `toml:"filter"`
	Bwe         BweTunables         `toml:"bwe"`
	RateCounter RateCounterTunables `toml:"ratecounter"`
}

// Default returns the tunables table's documented defaults, used
// whenever no config file is given or a field is left unset.
func Default() Config {
	return Config{
		Pacer: PacerTunables{
			TickIntervalMs: 5,
			Headroom:       1.10,
			BucketSeconds:  0.5,
		},
		Filter: FilterTunables{
			UsageCoef:      0.98,
			BurstUsageCoef: 1.10,
			DefaultFrameKB: 5,
		},
		Bwe: BweTunables{
			ResponseIntervalMs: 100,
			DecreaseFactor:     0.85,
			IncreaseFactor:     1.08,
			OveruseThresholdMs: 12.5,
		},
		RateCounter: RateCounterTunables{
			DefaultWindowMs: ratecounter.DefaultWindowMs,
		},
	}
}

// Load reads a TOML tunables file from path and fills in any zero
// field from Default(). A missing file is not an error: Load falls
// back to Default() entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var fileCfg Config
	if err := toml.Unmarshal(data, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	applyNonZero(&cfg, fileCfg)
	return cfg, nil
}

func applyNonZero(dst *Config, src Config) {
	if src.Pacer.TickIntervalMs != 0 {
		dst.Pacer.TickIntervalMs = src.Pacer.TickIntervalMs
	}
	if src.Pacer.Headroom != 0 {
		dst.Pacer.Headroom = src.Pacer.Headroom
	}
	if src.Pacer.BucketSeconds != 0 {
		dst.Pacer.BucketSeconds = src.Pacer.BucketSeconds
	}
	if src.Filter.UsageCoef != 0 {
		dst.Filter.UsageCoef = src.Filter.UsageCoef
	}
	if src.Filter.BurstUsageCoef != 0 {
		dst.Filter.BurstUsageCoef = src.Filter.BurstUsageCoef
	}
	if src.Filter.DefaultFrameKB != 0 {
		dst.Filter.DefaultFrameKB = src.Filter.DefaultFrameKB
	}
	if src.Bwe.ResponseIntervalMs != 0 {
		dst.Bwe.ResponseIntervalMs = src.Bwe.ResponseIntervalMs
	}
	if src.Bwe.DecreaseFactor != 0 {
		dst.Bwe.DecreaseFactor = src.Bwe.DecreaseFactor
	}
	if src.Bwe.IncreaseFactor != 0 {
		dst.Bwe.IncreaseFactor = src.Bwe.IncreaseFactor
	}
	if src.Bwe.OveruseThresholdMs != 0 {
		dst.Bwe.OveruseThresholdMs = src.Bwe.OveruseThresholdMs
	}
	if src.RateCounter.DefaultWindowMs != 0 {
		dst.RateCounter.DefaultWindowMs = src.RateCounter.DefaultWindowMs
	}
}

// PacerConfig adapts the loaded tunables to pacer.Config.
func (c Config) PacerConfig() pacer.Config {
	return pacer.Config{
		TickInterval:  time.Duration(c.Pacer.TickIntervalMs) * time.Millisecond,
		Headroom:      c.Pacer.Headroom,
		BucketSeconds: c.Pacer.BucketSeconds,
	}
}

// FilterConfig adapts the loaded tunables to filter.Config.
func (c Config) FilterConfig() filter.Config {
	return filter.Config{
		UsageCoef:      c.Filter.UsageCoef,
		BurstUsageCoef: c.Filter.BurstUsageCoef,
		DefaultFrameKB: c.Filter.DefaultFrameKB,
	}
}

// BweConfig adapts the loaded tunables to bwe.Config.
func (c Config) BweConfig() bwe.Config {
	return bwe.Config{
		ResponseIntervalMs: int64(c.Bwe.ResponseIntervalMs),
		DecreaseFactor:     c.Bwe.DecreaseFactor,
		IncreaseFactor:     c.Bwe.IncreaseFactor,
		OveruseThresholdMs: c.Bwe.OveruseThresholdMs,
	}
}
