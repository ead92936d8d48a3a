package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags
type Flags struct {
	LogLevel    string
	LogFormat   string
	LogFile     string
	DebugRTP    bool
	DebugVP9    bool
	DebugTWCC   bool
	DebugBWE    bool
	DebugPacer  bool
	DebugFilter bool
	DebugAll    bool
}

// RegisterFlags registers logging flags with the given FlagSet
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info",
		"Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "text",
		"Log output format: text, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	// Debug category flags
	fs.BoolVar(&f.DebugRTP, "debug-rtp", false,
		"Enable detailed RTP packet debugging (sequence, timestamp, payload)")
	fs.BoolVar(&f.DebugVP9, "debug-vp9", false,
		"Enable VP9 descriptor debugging (picture ID, layer indices, keyframe)")
	fs.BoolVar(&f.DebugTWCC, "debug-twcc", false,
		"Enable TWCC feedback assembly debugging")
	fs.BoolVar(&f.DebugBWE, "debug-bwe", false,
		"Enable bandwidth estimator debugging (trendline, overuse state, rate control)")
	fs.BoolVar(&f.DebugPacer, "debug-pacer", false,
		"Enable pacer debugging (budget, queue depth, bursts)")
	fs.BoolVar(&f.DebugFilter, "debug-filter", false,
		"Enable temporal layer filter admission debugging")
	fs.BoolVar(&f.DebugAll, "debug-all", false,
		"Enable all debug categories")

	return f
}

// ToConfig converts Flags to a logger Config
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	// Parse log level
	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	// Parse format
	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	// Set output file
	cfg.OutputFile = f.LogFile

	// Enable debug categories
	if f.DebugAll {
		cfg.EnableCategory(DebugAll)
		// Force debug level when any debug category is enabled
		cfg.Level = LevelDebug
	} else {
		if f.DebugRTP {
			cfg.EnableCategory(DebugRTP)
			cfg.Level = LevelDebug
		}
		if f.DebugVP9 {
			cfg.EnableCategory(DebugVP9)
			cfg.Level = LevelDebug
		}
		if f.DebugTWCC {
			cfg.EnableCategory(DebugTWCC)
			cfg.Level = LevelDebug
		}
		if f.DebugBWE {
			cfg.EnableCategory(DebugBWE)
			cfg.Level = LevelDebug
		}
		if f.DebugPacer {
			cfg.EnableCategory(DebugPacer)
			cfg.Level = LevelDebug
		}
		if f.DebugFilter {
			cfg.EnableCategory(DebugFilter)
			cfg.Level = LevelDebug
		}
	}

	return cfg, nil
}

// PrintUsageExamples prints usage examples for logging flags
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, text format to stdout):
    ./relay

  Enable DEBUG level:
    ./relay --log-level debug
    ./relay -l debug

  Log to file:
    ./relay --log-file relay.log
    ./relay -o relay.log

  JSON format for structured logging:
    ./relay --log-format json -o relay.json

  Debug RTP packets only:
    ./relay --debug-rtp

  Debug the bandwidth estimator only:
    ./relay --debug-bwe

  Debug multiple categories:
    ./relay --debug-rtp --debug-bwe --debug-pacer

  Debug everything:
    ./relay --debug-all -o debug.log

  Production logging (WARN level, JSON to file):
    ./relay -l warn --log-format json -o production.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	var debugCategories []string
	if f.DebugAll {
		debugCategories = append(debugCategories, "all")
	} else {
		if f.DebugRTP {
			debugCategories = append(debugCategories, "rtp")
		}
		if f.DebugVP9 {
			debugCategories = append(debugCategories, "vp9")
		}
		if f.DebugTWCC {
			debugCategories = append(debugCategories, "twcc")
		}
		if f.DebugBWE {
			debugCategories = append(debugCategories, "bwe")
		}
		if f.DebugPacer {
			debugCategories = append(debugCategories, "pacer")
		}
		if f.DebugFilter {
			debugCategories = append(debugCategories, "filter")
		}
	}

	if len(debugCategories) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(debugCategories, ",")))
	}

	return strings.Join(parts, " ")
}
