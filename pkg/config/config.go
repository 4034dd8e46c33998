package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the console client configuration.
type Config struct {
	Backend BackendConfig
	Logging LogConfig
	Metrics MetricsConfig
}

// BackendConfig describes the HTTP backend the console talks to.
type BackendConfig struct {
	BaseURL   string        `envconfig:"CONSOLE_BASE_URL" default:"http://localhost:8000"`
	Timeout   time.Duration `envconfig:"CONSOLE_TIMEOUT" default:"0s"`
	UserAgent string        `envconfig:"CONSOLE_USER_AGENT" default:"command-console/1.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE"`
}

// MetricsConfig holds the optional Prometheus listener address.
type MetricsConfig struct {
	Addr string `envconfig:"METRICS_ADDR"`
}

// Load reads an optional .env file and then the environment.
// Variables already set in the environment win over the .env file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that envconfig cannot.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid CONSOLE_BASE_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid CONSOLE_BASE_URL %q: must be an absolute http(s) URL", c.Backend.BaseURL)
	}
	if c.Backend.Timeout < 0 {
		return errors.New("CONSOLE_TIMEOUT must not be negative")
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
