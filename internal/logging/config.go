package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/embedpool/internal/config"
)

// Config controls how a Logger encodes and where it writes.
type Config struct {
	Level  zapcore.Level
	Format string // json or console

	// Writer receives encoded entries. Nil disables local output.
	Writer io.Writer

	// OTEL forwards entries to the LoggerProvider given to NewLogger.
	OTEL bool

	Sampling        SamplingConfig
	Caller          bool
	StacktraceLevel zapcore.Level

	// Fields are added to every entry.
	Fields map[string]string

	Redaction RedactionConfig
}

// SamplingConfig throttles repeated entries per level within each Tick.
type SamplingConfig struct {
	Enabled bool
	Tick    time.Duration
	Levels  map[zapcore.Level]LevelSampling
}

// LevelSampling keeps the first Initial entries with the same message per
// tick, then every Thereafter-th.
type LevelSampling struct {
	Initial    int
	Thereafter int
}

// RedactionConfig masks field values before they are written.
type RedactionConfig struct {
	// Keys are field names, matched case-insensitively, whose values are
	// always masked.
	Keys []string

	// Patterns mask matching substrings of string and error values.
	Patterns []string
}

// Default returns the configuration used by the server: JSON to stdout with
// sampling and redaction on.
func Default() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Writer: os.Stdout,
		Sampling: SamplingConfig{
			Enabled: true,
			Tick:    time.Second,
			Levels: map[zapcore.Level]LevelSampling{
				TraceLevel:         {Initial: 1},
				zapcore.DebugLevel: {Initial: 10},
				zapcore.InfoLevel:  {Initial: 100, Thereafter: 10},
				zapcore.WarnLevel:  {Initial: 100, Thereafter: 100},
			},
		},
		Caller:          true,
		StacktraceLevel: zapcore.ErrorLevel,
		Fields:          map[string]string{"service": "embedpool"},
		Redaction: RedactionConfig{
			Keys:     []string{"api_key", "authorization", "password", "secret", "token"},
			Patterns: []string{`(?i)bearer\s+\S+`, `(?i)api[_-]?key[=:]\s*\S+`},
		},
	}
}

// FromConfig applies the file/env logging settings to Default.
func FromConfig(lc config.LoggingConfig) (*Config, error) {
	cfg := Default()
	if lc.Level != "" {
		level, err := ParseLevel(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
		}
		cfg.Level = level
	}
	if lc.Format != "" {
		cfg.Format = lc.Format
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Format != "json" && c.Format != "console":
		return fmt.Errorf("format must be json or console, got %q", c.Format)
	case c.Writer == nil && !c.OTEL:
		return errors.New("no log output: set a writer or enable otel")
	case c.Sampling.Enabled && c.Sampling.Tick <= 0:
		return errors.New("sampling tick must be positive")
	}
	for _, p := range c.Redaction.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
	}
	for k := range c.Fields {
		if k == "" {
			return errors.New("field key cannot be empty")
		}
	}
	return nil
}
