package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

type ObservabilityConfig struct {
	ServiceName string          `koanf:"service_name"`
	Environment string          `koanf:"environment"`
	LogLevel    string          `koanf:"log_level"`
	Pretty      bool            `koanf:"pretty"`
	NewRelic    *NewRelicConfig `koanf:"newrelic"`
}

type NewRelicConfig struct {
	LicenseKey string `koanf:"license_key"`
	AppName    string `koanf:"app_name"`
}

// Enabled reports whether a New Relic application should be started.
func (c *NewRelicConfig) Enabled() bool {
	return c != nil && c.LicenseKey != ""
}

func DefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		LogLevel: "info",
		Pretty:   true,
	}
}

// Validate checks the log level and New Relic settings. An empty log level
// is replaced with "info".
func (c *ObservabilityConfig) Validate() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	if c.NewRelic != nil && c.NewRelic.LicenseKey != "" && len(c.NewRelic.LicenseKey) != 40 {
		return fmt.Errorf("newrelic license_key must be 40 characters, got %d", len(c.NewRelic.LicenseKey))
	}
	return nil
}

// Level returns the parsed zerolog level, falling back to info.
func (c *ObservabilityConfig) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
