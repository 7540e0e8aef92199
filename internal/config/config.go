// Package config resolves verify-links settings from flags, environment
// variables, an optional config file and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jestress/verifylinks/internal/checker"
	"github.com/jestress/verifylinks/internal/logger"
)

// DefaultBuildDir is checked when no directory argument is given.
const DefaultBuildDir = "build"

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError describes one invalid setting.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// Config holds every setting of one run. Keys match the command-line flag
// names; times are in seconds.
type Config struct {
	BuildDir string `mapstructure:"build-dir"`

	SkipExternal  bool     `mapstructure:"skip-external"`
	NoAnchorCheck bool     `mapstructure:"no-anchor-check"`
	BasePath      string   `mapstructure:"base-path"`
	InternalHosts []string `mapstructure:"internal-host"`
	Exclude       []string `mapstructure:"exclude"`
	MaxBroken     int      `mapstructure:"max-broken"`

	Retries     int     `mapstructure:"retries"`
	Backoff     float64 `mapstructure:"backoff"`
	MaxBackoff  float64 `mapstructure:"max-backoff"`
	Timeout     float64 `mapstructure:"timeout"`
	Workers     int     `mapstructure:"workers"`
	MaxDuration float64 `mapstructure:"max-duration"`
	RateLimit   float64 `mapstructure:"rate-limit"`
	UserAgent   string  `mapstructure:"user-agent"`

	JSONOutput    string `mapstructure:"json-output"`
	CSVOutput     string `mapstructure:"export-csv"`
	XLSXOutput    string `mapstructure:"export-xlsx"`
	MetricsOutput string `mapstructure:"metrics-output"`

	ShowAll bool `mapstructure:"show-all"`
	NoColor bool `mapstructure:"no-color"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
	Debug     bool   `mapstructure:"debug"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		BuildDir:   DefaultBuildDir,
		Retries:    checker.DefaultRetries,
		Backoff:    checker.DefaultBackoff.Seconds(),
		MaxBackoff: checker.DefaultMaxBackoff.Seconds(),
		Timeout:    checker.DefaultTimeout.Seconds(),
		Workers:    checker.DefaultWorkers,
		UserAgent:  checker.DefaultUserAgent,
		LogLevel:   "info",
		LogFormat:  logger.FormatConsole,
	}
}

// Logger returns the logger settings. Debug forces the debug level.
func (c *Config) Logger() logger.Config {
	lc := logger.Config{Level: c.LogLevel, Format: c.LogFormat}
	if c.Debug {
		lc.Level = "debug"
	}
	return lc
}

// Checker returns the external checker settings.
func (c *Config) Checker() checker.Config {
	return checker.Config{
		Workers: c.Workers,
		Timeout: seconds(c.Timeout),
		Policy: checker.RetryPolicy{
			Retries:    c.Retries,
			Backoff:    seconds(c.Backoff),
			MaxBackoff: seconds(c.MaxBackoff),
		},
		UserAgent: c.UserAgent,
		RateLimit: c.RateLimit,
	}
}

// Deadline is the overall run budget; zero means none.
func (c *Config) Deadline() time.Duration {
	return seconds(c.MaxDuration)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

var (
	logLevels  = []string{"debug", "info", "warn", "warning", "error"}
	logFormats = []string{logger.FormatConsole, logger.FormatJSON}
)

// Validate checks every setting and reports all problems at once. Output
// paths must point into an existing directory.
func (c *Config) Validate() error {
	var errs []error
	add := func(field string, value any, reason string) {
		errs = append(errs, &ValidationError{Field: field, Value: value, Reason: reason})
	}

	if strings.TrimSpace(c.BuildDir) == "" {
		add("build-dir", c.BuildDir, "must not be empty")
	}
	if c.Workers < 1 {
		add("workers", c.Workers, "must be at least 1")
	}
	if c.Retries < 0 {
		add("retries", c.Retries, "must not be negative")
	}
	if c.MaxBroken < 0 {
		add("max-broken", c.MaxBroken, "must not be negative")
	}
	if c.Timeout <= 0 {
		add("timeout", c.Timeout, "must be positive")
	}
	for field, v := range map[string]float64{
		"backoff":      c.Backoff,
		"max-backoff":  c.MaxBackoff,
		"max-duration": c.MaxDuration,
		"rate-limit":   c.RateLimit,
	} {
		if v < 0 {
			add(field, v, "must not be negative")
		}
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		add("log-level", c.LogLevel, "must be one of debug, info, warn, error")
	}
	if !slices.Contains(logFormats, strings.ToLower(c.LogFormat)) {
		add("log-format", c.LogFormat, "must be console or json")
	}
	for field, path := range map[string]string{
		"json-output":    c.JSONOutput,
		"export-csv":     c.CSVOutput,
		"export-xlsx":    c.XLSXOutput,
		"metrics-output": c.MetricsOutput,
	} {
		if path == "" {
			continue
		}
		if reason := checkOutputPath(path); reason != "" {
			add(field, path, reason)
		}
	}

	// Map iteration order is random; keep messages stable.
	slices.SortFunc(errs, func(a, b error) int { return strings.Compare(a.Error(), b.Error()) })
	return errors.Join(errs...)
}

func checkOutputPath(path string) string {
	info, err := os.Stat(filepath.Dir(path))
	switch {
	case err != nil:
		return "parent directory does not exist"
	case !info.IsDir():
		return "parent is not a directory"
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return "is a directory"
	}
	return ""
}
