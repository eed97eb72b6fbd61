package observability

import (
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/akave-ai/logserver/internal/config"
)

// NewRelicApp starts a New Relic application when a license key is
// configured. It returns nil otherwise; a nil *newrelic.Application is safe
// to use and records nothing.
func NewRelicApp(cfg *config.ObservabilityConfig, logger zerolog.Logger) (*newrelic.Application, error) {
	if cfg == nil || !cfg.NewRelic.Enabled() {
		return nil, nil
	}
	name := cfg.NewRelic.AppName
	if name == "" {
		name = cfg.ServiceName
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(name),
		newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
		newrelic.ConfigEnabled(true),
		func(c *newrelic.Config) {
			c.Labels = map[string]string{"env": cfg.Environment}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("newrelic: %w", err)
	}
	logger.Info().Str("app", name).Msg("new relic enabled")
	return app, nil
}
