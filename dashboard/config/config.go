// Package config loads and validates the dashboard configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration. Every tunable lives in a named field;
// nothing is read from process globals after load.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Source  SourceConfig  `yaml:"source"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	EnableCORS bool   `yaml:"enable_cors"`
}

// SourceConfig selects where benchmark datasets come from: an upstream
// results API ("http") or a local pyperf results tree ("local").
type SourceConfig struct {
	Mode       string   `yaml:"mode"`
	BaseURL    string   `yaml:"base_url"`
	Timeout    Duration `yaml:"timeout"`
	ResultsDir string   `yaml:"results_dir"`
}

// CacheConfig holds the fetch cache settings. SummaryTTL covers windowed
// summary requests, DayTTL covers single-day detail, which changes rarely
// once the day is over.
type CacheConfig struct {
	Enabled    bool           `yaml:"enabled"`
	Namespace  string         `yaml:"namespace"`
	Backend    string         `yaml:"backend"`
	Dir        string         `yaml:"dir"`
	SummaryTTL Duration       `yaml:"summary_ttl"`
	DayTTL     Duration       `yaml:"day_ttl"`
	MaxDays    int            `yaml:"max_days"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// PostgresConfig contains connection settings for the shared cache store.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// ConnectionString returns the lib/pq connection string.
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode,
	)
}

// LoggingConfig holds log level and format settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       8080,
			EnableCORS: true,
		},
		Source: SourceConfig{
			Mode:    "http",
			BaseURL: "http://localhost:9090",
			Timeout: Duration(30 * time.Second),
		},
		Cache: CacheConfig{
			Enabled:    true,
			Namespace:  "jitbench",
			Backend:    "file",
			Dir:        "cache",
			SummaryTTL: Duration(30 * time.Minute),
			DayTTL:     Duration(24 * time.Hour),
			MaxDays:    365,
			Postgres: PostgresConfig{
				Host:         "localhost",
				Port:         5432,
				Database:     "jitbench",
				User:         "postgres",
				SSLMode:      "disable",
				MaxOpenConns: 10,
				MaxIdleConns: 5,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads the YAML file at path, substitutes ${ENV} references,
// fills defaults for missing fields and validates the result. An empty or
// missing path yields the defaults.
func LoadConfig(path string, log logrus.FieldLogger) (*Config, error) {
	log = log.WithField("component", "config")

	if path == "" {
		log.Info("No config path provided, using defaults")
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.WithField("path", path).Info("Config file not found, using defaults")
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	substituted, err := SubstituteEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to substitute environment variables: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log.WithField("path", path).Info("Loaded configuration")
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Server.Host == "" {
		c.Server.Host = defaults.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Source.Mode == "" {
		c.Source.Mode = defaults.Source.Mode
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = defaults.Source.Timeout
	}
	if c.Source.Mode == "http" && c.Source.BaseURL == "" {
		c.Source.BaseURL = defaults.Source.BaseURL
	}
	if c.Cache.Namespace == "" {
		c.Cache.Namespace = defaults.Cache.Namespace
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = defaults.Cache.Backend
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = defaults.Cache.Dir
	}
	if c.Cache.SummaryTTL == 0 {
		c.Cache.SummaryTTL = defaults.Cache.SummaryTTL
	}
	if c.Cache.DayTTL == 0 {
		c.Cache.DayTTL = defaults.Cache.DayTTL
	}
	if c.Cache.MaxDays == 0 {
		c.Cache.MaxDays = defaults.Cache.MaxDays
	}
	if c.Cache.Postgres.Port == 0 {
		c.Cache.Postgres.Port = defaults.Cache.Postgres.Port
	}
	if c.Cache.Postgres.SSLMode == "" {
		c.Cache.Postgres.SSLMode = defaults.Cache.Postgres.SSLMode
	}
	if c.Cache.Postgres.MaxOpenConns == 0 {
		c.Cache.Postgres.MaxOpenConns = defaults.Cache.Postgres.MaxOpenConns
	}
	if c.Cache.Postgres.MaxIdleConns == 0 {
		c.Cache.Postgres.MaxIdleConns = defaults.Cache.Postgres.MaxIdleConns
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
}

// Validate checks the configuration for contradictions and bad values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	switch c.Source.Mode {
	case "http":
		if c.Source.BaseURL == "" {
			return fmt.Errorf("source mode http requires base_url")
		}
	case "local":
		if c.Source.ResultsDir == "" {
			return fmt.Errorf("source mode local requires results_dir")
		}
	default:
		return fmt.Errorf("unknown source mode %q", c.Source.Mode)
	}

	switch c.Cache.Backend {
	case "memory":
	case "file":
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache backend file requires dir")
		}
	case "postgres":
		pg := c.Cache.Postgres
		if pg.Host == "" || pg.Database == "" || pg.User == "" {
			return fmt.Errorf("cache backend postgres requires host, database and user")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Cache.SummaryTTL <= 0 || c.Cache.DayTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Cache.MaxDays < 1 {
		return fmt.Errorf("cache max_days must be at least 1")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	return nil
}

// Duration wraps time.Duration so YAML values like "45s" or "6h" parse.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML accepts either a duration string or a bare number of
// seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value %q", value.Value)
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
