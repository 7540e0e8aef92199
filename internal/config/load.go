package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix namespaces environment overrides, e.g. VERIFY_LINKS_WORKERS.
	EnvPrefix = "VERIFY_LINKS"
	// FileName is the config file looked up in the working directory.
	FileName = ".verify-links"
	// FlagConfig names the flag that points at an explicit config file.
	FlagConfig = "config"
)

// RegisterFlags declares every setting on fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()

	fs.Bool("skip-external", false, "skip network checks for external links")
	fs.Int("retries", d.Retries, "retry attempts after the first for transient external failures")
	fs.Float64("backoff", d.Backoff, "base backoff in seconds, doubled on each retry")
	fs.Float64("max-backoff", d.MaxBackoff, "cap on a single backoff delay in seconds")
	fs.Float64("timeout", d.Timeout, "per-request timeout in seconds")
	fs.Int("workers", d.Workers, "concurrent external checks")
	fs.Float64("max-duration", 0, "overall deadline in seconds (0 for none)")
	fs.Float64("rate-limit", 0, "requests per second to any one host (0 for none)")
	fs.String("user-agent", d.UserAgent, "User-Agent sent with external checks")

	fs.String("json-output", "", "write the full report as JSON to `path`")
	fs.String("export-csv", "", "write broken links as CSV to `path`")
	fs.String("export-xlsx", "", "write broken links as an XLSX workbook to `path`")
	fs.String("metrics-output", "", "write Prometheus textfile metrics to `path`")

	fs.Bool("no-anchor-check", false, "do not validate #fragments on internal links")
	fs.Int("max-broken", 0, "number of broken links tolerated before failing")
	fs.String("base-path", "", "URL path the site is served under, stripped from root-relative links")
	fs.StringSlice("internal-host", nil, "host whose absolute links are resolved as internal (repeatable)")
	fs.StringSlice("exclude", nil, "glob of hrefs to skip (repeatable)")

	fs.Bool("show-all", false, "list every link, not only broken ones")
	fs.Bool("no-color", false, "disable colored output")

	fs.String(FlagConfig, "", "config file (default ./"+FileName+".yaml)")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	fs.String("log-format", d.LogFormat, "log format: console or json")
	fs.Bool("debug", false, "shorthand for --log-level debug")
}

// Load resolves the configuration. Precedence, highest first: flags set on
// the command line, VERIFY_LINKS_* environment variables (a .env file in the
// working directory is loaded first), the config file, defaults. args holds
// the positional build directory, if any.
func Load(v *viper.Viper, fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if len(args) > 0 {
		cfg.BuildDir = args[0]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("build-dir", d.BuildDir)
	v.SetDefault("skip-external", d.SkipExternal)
	v.SetDefault("no-anchor-check", d.NoAnchorCheck)
	v.SetDefault("base-path", d.BasePath)
	v.SetDefault("internal-host", []string{})
	v.SetDefault("exclude", []string{})
	v.SetDefault("max-broken", d.MaxBroken)
	v.SetDefault("retries", d.Retries)
	v.SetDefault("backoff", d.Backoff)
	v.SetDefault("max-backoff", d.MaxBackoff)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("max-duration", d.MaxDuration)
	v.SetDefault("rate-limit", d.RateLimit)
	v.SetDefault("user-agent", d.UserAgent)
	v.SetDefault("json-output", "")
	v.SetDefault("export-csv", "")
	v.SetDefault("export-xlsx", "")
	v.SetDefault("metrics-output", "")
	v.SetDefault("show-all", false)
	v.SetDefault("no-color", false)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("debug", false)
}

// readConfigFile reads the explicit --config file, or ./.verify-links.yaml
// if present. Only the explicit file is required to exist.
func readConfigFile(v *viper.Viper) error {
	if path := v.GetString(FlagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read config %s: %w", ErrInvalidConfig, path, err)
		}
		return nil
	}

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("%w: read config: %w", ErrInvalidConfig, err)
	}
	return nil
}
