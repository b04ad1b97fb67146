// Package config loads relay server configuration from defaults,
// an optional YAML file, an optional .env file and the environment.
package config

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go-simpler.org/env"
	"gopkg.in/yaml.v3"

	"github.com/wtask/relay/internal/logging"
)

// Config - relay server configuration.
type Config struct {
	// Addr - TCP listen address of the relay
	Addr string `yaml:"addr" env:"RELAY_ADDR"`
	// BroadcastInterval - period of the broadcast tick
	BroadcastInterval time.Duration `yaml:"broadcast_interval" env:"RELAY_BROADCAST_INTERVAL"`
	// WriteTimeout - per-session write deadline, 0 disables it
	WriteTimeout time.Duration `yaml:"write_timeout" env:"RELAY_WRITE_TIMEOUT"`
	// MaxLineBytes - longest accepted client line
	MaxLineBytes int `yaml:"max_line_bytes" env:"RELAY_MAX_LINE_BYTES"`
	// MaxSessions - concurrent sessions per listener, 0 is unbounded
	MaxSessions int `yaml:"max_sessions" env:"RELAY_MAX_SESSIONS"`
	// ShutdownTimeout - how long to wait for sessions on stop
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"RELAY_SHUTDOWN_TIMEOUT"`
	// HTTPAddr - address of health/metrics/websocket endpoint, empty disables it
	HTTPAddr string `yaml:"http_addr" env:"RELAY_HTTP_ADDR"`

	LogLevel  string `yaml:"log_level" env:"RELAY_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"RELAY_LOG_FORMAT"`
}

// Default - returns configuration with built-in defaults.
func Default() Config {
	return Config{
		Addr:              ":50001",
		BroadcastInterval: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxLineBytes:      4096,
		MaxSessions:       0,
		ShutdownTimeout:   10 * time.Second,
		HTTPAddr:          "",
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// Load - builds configuration in order: defaults, YAML file at path (if not empty),
// .env file in working directory (if exists), RELAY_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "config: can't read .env file")
	}

	if err := env.Load(&cfg, nil); err != nil {
		return nil, errors.Wrap(err, "config: can't load environment variables")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "config: can't read %s", path)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrapf(err, "config: can't parse %s", path)
	}
	return nil
}

// Validate - checks configuration values.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return errors.New("config: addr is required")
	case c.BroadcastInterval <= 0:
		return fmt.Errorf("config: broadcast_interval must be positive, got %v", c.BroadcastInterval)
	case c.WriteTimeout < 0:
		return fmt.Errorf("config: write_timeout must not be negative, got %v", c.WriteTimeout)
	case c.MaxLineBytes <= 0:
		return fmt.Errorf("config: max_line_bytes must be positive, got %d", c.MaxLineBytes)
	case c.MaxSessions < 0:
		return fmt.Errorf("config: max_sessions must not be negative, got %d", c.MaxSessions)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("config: shutdown_timeout must be positive, got %v", c.ShutdownTimeout)
	case !slices.Contains(logging.Levels, strings.ToLower(c.LogLevel)):
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	case !slices.Contains(logging.Formats, strings.ToLower(c.LogFormat)):
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	return nil
}
