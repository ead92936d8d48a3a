package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// LogLevel represents the logging verbosity level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// DebugCategory represents specific debug categories for targeted debugging
type DebugCategory string

const (
	DebugRTP    DebugCategory = "rtp"
	DebugVP9    DebugCategory = "vp9"
	DebugTWCC   DebugCategory = "twcc"
	DebugBWE    DebugCategory = "bwe"
	DebugPacer  DebugCategory = "pacer"
	DebugFilter DebugCategory = "filter"
	DebugAll    DebugCategory = "all"
)

// Config holds logger configuration
type Config struct {
	Level             LogLevel
	Format            OutputFormat
	OutputFile        string
	EnabledCategories map[DebugCategory]bool
	mu                sync.RWMutex
}

// OutputFormat determines the log output format
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// Global logger instance
var (
	defaultLogger *Logger
	once          sync.Once
)

// Logger wraps slog.Logger with category-based debugging
type Logger struct {
	*slog.Logger
	config *Config
	file   *os.File
}

// NewConfig creates a new logger configuration with defaults
func NewConfig() *Config {
	return &Config{
		Level:             LevelInfo,
		Format:            FormatText,
		OutputFile:        "",
		EnabledCategories: make(map[DebugCategory]bool),
	}
}

// ParseLevel converts a string to LogLevel
func ParseLevel(level string) (LogLevel, error) {
	switch level {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO":
		return LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// ParseFormat converts a string to OutputFormat
func ParseFormat(format string) (OutputFormat, error) {
	switch format {
	case "json", "JSON":
		return FormatJSON, nil
	case "text", "TEXT":
		return FormatText, nil
	default:
		return "", fmt.Errorf("invalid log format: %s (must be json or text)", format)
	}
}

// ToSlogLevel converts LogLevel to slog.Level
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a new Logger instance with the given configuration
func New(cfg *Config) (*Logger, error) {
	var writer io.Writer = os.Stdout
	var file *os.File

	// Setup output file if specified
	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.OutputFile, err)
		}
		writer = f
		file = f
	}

	// Create handler based on format
	var handler slog.Handler
	handlerOpts := &slog.HandlerOptions{
		Level: cfg.Level.ToSlogLevel(),
	}

	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(writer, handlerOpts)
	case FormatText:
		handler = slog.NewTextHandler(writer, handlerOpts)
	default:
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	logger := &Logger{
		Logger: slog.New(handler),
		config: cfg,
		file:   file,
	}

	return logger, nil
}

// EnableCategory enables a specific debug category
func (c *Config) EnableCategory(category DebugCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if category == DebugAll {
		// Enable all categories
		c.EnabledCategories[DebugRTP] = true
		c.EnabledCategories[DebugVP9] = true
		c.EnabledCategories[DebugTWCC] = true
		c.EnabledCategories[DebugBWE] = true
		c.EnabledCategories[DebugPacer] = true
		c.EnabledCategories[DebugFilter] = true
	} else {
		c.EnabledCategories[category] = true
	}
}

// IsCategoryEnabled checks if a debug category is enabled
func (c *Config) IsCategoryEnabled(category DebugCategory) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.EnabledCategories[category]
}

// IsDebugEnabled checks if any debug category is enabled
func (c *Config) IsDebugEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.EnabledCategories) > 0
}

// Close closes the log file if one was opened
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Category-specific logging methods

// DebugRTPLog logs RTP packet details if RTP debugging is enabled
func (l *Logger) DebugRTPLog(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugRTP) {
		args = append([]any{"category", "rtp"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugVP9Log logs VP9 descriptor details if VP9 debugging is enabled
func (l *Logger) DebugVP9Log(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugVP9) {
		args = append([]any{"category", "vp9"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugTWCCLog logs TWCC feedback assembly details if TWCC debugging is enabled
func (l *Logger) DebugTWCCLog(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugTWCC) {
		args = append([]any{"category", "twcc"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugBWELog logs bandwidth estimator details if BWE debugging is enabled
func (l *Logger) DebugBWELog(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugBWE) {
		args = append([]any{"category", "bwe"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugPacerLog logs pacer details if pacer debugging is enabled
func (l *Logger) DebugPacerLog(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugPacer) {
		args = append([]any{"category", "pacer"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugFilterLog logs filter admission details if filter debugging is enabled
func (l *Logger) DebugFilterLog(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugFilter) {
		args = append([]any{"category", "filter"}, args...)
		l.Debug(msg, args...)
	}
}

// DebugRTPPacket logs detailed RTP packet information
func (l *Logger) DebugRTPPacket(seq uint16, timestamp uint32, payloadType uint8, payloadSize int) {
	if l.config.IsCategoryEnabled(DebugRTP) {
		l.Debug("RTP packet",
			"category", "rtp",
			"sequence", seq,
			"timestamp", timestamp,
			"payload_type", payloadType,
			"payload_size", payloadSize)
	}
}

// DebugVP9Descriptor logs a parsed VP9 descriptor's fields
func (l *Logger) DebugVP9Descriptor(seq uint16, tid uint8, keyframe bool, hasPictureID bool) {
	if l.config.IsCategoryEnabled(DebugVP9) {
		l.Debug("VP9 descriptor",
			"category", "vp9",
			"sequence", seq,
			"tid", tid,
			"keyframe", keyframe,
			"has_picture_id", hasPictureID)
	}
}

// DebugFilterDecision logs one admission decision the filter made
func (l *Logger) DebugFilterDecision(flowID, layer int, admitted bool, bytes int) {
	if l.config.IsCategoryEnabled(DebugFilter) {
		l.Debug("filter decision",
			"category", "filter",
			"flow_id", flowID,
			"layer", layer,
			"admitted", admitted,
			"bytes", bytes)
	}
}

// WithContext returns a copy of the logger. ctx is not read; no values
// from it are added.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		Logger: l.Logger,
		config: l.config,
		file:   l.file,
	}
}

// With returns a new Logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
		file:   l.file,
	}
}

// SetDefault sets the global default logger
func SetDefault(logger *Logger) {
	defaultLogger = logger
	slog.SetDefault(logger.Logger)
}

// Default returns the default logger, creating one if necessary
func Default() *Logger {
	once.Do(func() {
		cfg := NewConfig()
		logger, err := New(cfg)
		if err != nil {
			// Fallback to basic logger
			logger = &Logger{
				Logger: slog.Default(),
				config: cfg,
			}
		}
		defaultLogger = logger
	})
	return defaultLogger
}

// Package-level convenience functions

// Debug logs at Debug level using the default logger
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at Info level using the default logger
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at Warn level using the default logger
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at Error level using the default logger
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
