// ABOUTME: Application configuration from YAML, .env and TRADEDESK_* environment variables
// ABOUTME: Defaults follow the XDG base directories; later sources override earlier ones
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/intake"
	"github.com/harperreed/tradedesk/logging"
	"github.com/harperreed/tradedesk/sources"
)

const (
	appName        = "tradedesk"
	configFileName = "config.yaml"
	envPrefix      = "TRADEDESK_"
)

type LogConfig struct {
	Level  string         `yaml:"level"`
	Format logging.Format `yaml:"format"`
}

type IngestConfig struct {
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	Retries       int           `yaml:"retries"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	QueueCapacity int           `yaml:"queue_capacity"`
	DefaultMax    int           `yaml:"default_max"`
	InitialDays   int           `yaml:"initial_days"`
	// Interval is how often serve and watch poll; zero disables polling.
	Interval time.Duration `yaml:"interval"`
}

type ServeConfig struct {
	Addr string `yaml:"addr"`
}

type DraftConfig struct {
	Signature string `yaml:"signature"`
}

type Config struct {
	DatabasePath string           `yaml:"database_path"`
	RulesPath    string           `yaml:"rules_path"`
	Log          LogConfig        `yaml:"log"`
	Ingest       IngestConfig     `yaml:"ingest"`
	Serve        ServeConfig      `yaml:"serve"`
	Draft        DraftConfig      `yaml:"draft"`
	Sources      []sources.Config `yaml:"sources"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	dataDir := filepath.Join(xdg.DataHome, appName)
	return &Config{
		DatabasePath: filepath.Join(dataDir, appName+".db"),
		RulesPath:    filepath.Join(dataDir, "rules.json"),
		Log:          LogConfig{Level: "info", Format: logging.FormatConsole},
		Ingest: IngestConfig{
			FetchTimeout:  30 * time.Second,
			Retries:       3,
			BackoffBase:   time.Second,
			QueueCapacity: 256,
			DefaultMax:    100,
			InitialDays:   30,
			Interval:      5 * time.Minute,
		},
		Serve: ServeConfig{Addr: "127.0.0.1:8765"},
	}
}

// Path returns the config file location: $TRADEDESK_CONFIG, else the XDG config home.
func Path() string {
	if p := os.Getenv(envPrefix + "CONFIG"); p != "" {
		return p
	}
	return filepath.Join(xdg.ConfigHome, appName, configFileName)
}

// LoadEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errs.ConfigInvalid(f, err.Error())
		}
	}
	return nil
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errs.ConfigInvalid(path, err.Error())
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating the directory. The file may name
// accounts, so it is owner-only.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return errs.ConfigInvalid(envPrefix+name, err.Error())
		}
		*dst = d
		return nil
	}
	num := func(name string, dst *int) error {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errs.ConfigInvalid(envPrefix+name, "must be an integer")
		}
		*dst = n
		return nil
	}

	str("DB_PATH", &cfg.DatabasePath)
	str("RULES_PATH", &cfg.RulesPath)
	str("LOG_LEVEL", &cfg.Log.Level)
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Log.Format = logging.Format(strings.ToLower(v))
	}
	str("SERVE_ADDR", &cfg.Serve.Addr)

	for _, err := range []error{
		dur("FETCH_TIMEOUT", &cfg.Ingest.FetchTimeout),
		dur("BACKOFF_BASE", &cfg.Ingest.BackoffBase),
		dur("INTERVAL", &cfg.Ingest.Interval),
		num("RETRIES", &cfg.Ingest.Retries),
		num("QUEUE_CAPACITY", &cfg.Ingest.QueueCapacity),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate checks every field that has a constraint.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return errs.ConfigInvalid("database_path", "must not be empty")
	}
	if strings.TrimSpace(c.RulesPath) == "" {
		return errs.ConfigInvalid("rules_path", "must not be empty")
	}
	if c.Log.Format != logging.FormatConsole && c.Log.Format != logging.FormatJSON {
		return errs.ConfigInvalid("log.format", fmt.Sprintf("must be %q or %q", logging.FormatConsole, logging.FormatJSON))
	}
	if c.Ingest.FetchTimeout <= 0 {
		return errs.ConfigInvalid("ingest.fetch_timeout", "must be positive")
	}
	if c.Ingest.Retries < 0 {
		return errs.ConfigInvalid("ingest.retries", "must not be negative")
	}
	if c.Ingest.BackoffBase < 0 {
		return errs.ConfigInvalid("ingest.backoff_base", "must not be negative")
	}
	if c.Ingest.QueueCapacity <= 0 {
		return errs.ConfigInvalid("ingest.queue_capacity", "must be positive")
	}
	if c.Ingest.InitialDays < 0 {
		return errs.ConfigInvalid("ingest.initial_days", "must not be negative")
	}
	if c.Ingest.Interval < 0 {
		return errs.ConfigInvalid("ingest.interval", "must not be negative")
	}
	for i, s := range c.Sources {
		if err := s.Validate(i); err != nil {
			return err
		}
	}
	return nil
}

// IngestOptions converts the ingest section for the ingestor.
func (c *Config) IngestOptions() intake.Options {
	return intake.Options{
		FetchTimeout:    c.Ingest.FetchTimeout,
		Retries:         c.Ingest.Retries,
		BackoffBase:     c.Ingest.BackoffBase,
		InitialLookback: time.Duration(c.Ingest.InitialDays) * 24 * time.Hour,
		DefaultMax:      c.Ingest.DefaultMax,
	}
}

// Logging converts the log section for the logger.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}
