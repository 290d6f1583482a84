// Package config loads feeder settings from defaults, a TOML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/feeder/internal/registry"
	"github.com/bryan-buckman/feeder/internal/rss"
)

// Duration is a time.Duration written as a string such as "10s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
}

type Storage struct {
	Driver string `toml:"driver"` // sqlite or postgres
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type Fetch struct {
	Timeout     Duration `toml:"timeout"`
	Concurrency int      `toml:"concurrency"`
	UserAgent   string   `toml:"user_agent"`
}

type Aggregate struct {
	SkipFailing bool `toml:"skip_failing"`
}

// Config is the complete feeder configuration.
type Config struct {
	Listen    string    `toml:"listen"`
	Log       Log       `toml:"log"`
	Storage   Storage   `toml:"storage"`
	Fetch     Fetch     `toml:"fetch"`
	Aggregate Aggregate `toml:"aggregate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:  ":8080",
		Log:     Log{Level: "info", Format: "text"},
		Storage: Storage{Driver: "sqlite", Path: "feeder.db"},
		Fetch: Fetch{
			Timeout:     Duration{rss.DefaultTimeout},
			Concurrency: registry.DefaultAggregateConcurrency,
			UserAgent:   rss.DefaultUserAgent,
		},
	}
}

// Load reads path over the defaults, then applies FEEDER_* environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.Listen = getenv("FEEDER_LISTEN", c.Listen)
	c.Log.Level = getenv("FEEDER_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenv("FEEDER_LOG_FORMAT", c.Log.Format)
	c.Storage.Driver = getenv("FEEDER_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Path = getenv("FEEDER_DATABASE", c.Storage.Path)
	c.Storage.DSN = getenv("FEEDER_DATABASE_DSN", c.Storage.DSN)
	c.Fetch.UserAgent = getenv("FEEDER_USER_AGENT", c.Fetch.UserAgent)

	if v := os.Getenv("FEEDER_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FEEDER_FETCH_TIMEOUT: %w", err)
		}
		c.Fetch.Timeout.Duration = d
	}
	if v := os.Getenv("FEEDER_FETCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FEEDER_FETCH_CONCURRENCY: %w", err)
		}
		c.Fetch.Concurrency = n
	}
	if v := os.Getenv("FEEDER_SKIP_FAILING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FEEDER_SKIP_FAILING: %w", err)
		}
		c.Aggregate.SkipFailing = b
	}
	return nil
}

// Validate rejects settings the rest of the program cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for sqlite")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Fetch.Timeout.Duration <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch.concurrency must be at least 1")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// FetchOptions returns the fetcher settings.
func (c *Config) FetchOptions() rss.Options {
	return rss.Options{
		Timeout:   c.Fetch.Timeout.Duration,
		UserAgent: c.Fetch.UserAgent,
	}
}

// AggregateOptions returns the category view settings.
func (c *Config) AggregateOptions() registry.AggregateOptions {
	return registry.AggregateOptions{
		Concurrency: c.Fetch.Concurrency,
		SkipFailing: c.Aggregate.SkipFailing,
	}
}

// SetupLogging applies the log level and format to the standard logrus logger.
func (c *Config) SetupLogging() error {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	switch strings.ToLower(c.Log.Format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
