// Package config loads runtime settings for the rstore CLI.
//
// Settings come from three layers, later layers winning:
//  1. Defaults (usable with no file at all)
//  2. A TOML file
//  3. Environment variables prefixed RSTORE_ (e.g. RSTORE_LOG_LEVEL,
//     RSTORE_JOURNAL_PATH)
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RSTORE_"

// Config is the full runtime configuration.
type Config struct {
	Log     LogConfig     `toml:"log" envPrefix:"LOG_"`
	Journal JournalConfig `toml:"journal" envPrefix:"JOURNAL_"`
	Metrics MetricsConfig `toml:"metrics" envPrefix:"METRICS_"`
	Run     RunConfig     `toml:"run" envPrefix:"RUN_"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"` // text or json
}

// JournalConfig configures the change journal.
type JournalConfig struct {
	Enabled bool   `toml:"enabled" env:"ENABLED"`
	Path    string `toml:"path" env:"PATH"`
	Label   string `toml:"label" env:"LABEL"`
}

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	Namespace string `toml:"namespace" env:"NAMESPACE"`
}

// RunConfig bounds scenario execution.
type RunConfig struct {
	// Timeout bounds a whole scenario, including draining timers.
	Timeout time.Duration `toml:"timeout" env:"TIMEOUT"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Journal: JournalConfig{
			Path: ":memory:",
		},
		Metrics: MetricsConfig{
			Namespace: "restrictedstore",
		},
		Run: RunConfig{
			Timeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (if
// path is non-empty) and the environment.
func Load(path string) (Config, error) {
	return load(path, os.Environ())
}

func load(path string, environ []string) (Config, error) {
	cfg := Default()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("load config: unknown keys: %s", strings.Join(keys, ", "))
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: env.ToMap(environ),
	}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("config: journal.path is required when the journal is enabled")
	}
	if c.Run.Timeout <= 0 {
		return fmt.Errorf("config: run.timeout must be positive, got %s", c.Run.Timeout)
	}
	return nil
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return lvl, nil
}

// Logger builds a slog.Logger writing to w. verbose forces debug level.
func (l LogConfig) Logger(w io.Writer, verbose bool) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelWarn
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
