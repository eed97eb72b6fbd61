package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akave-ai/logserver/internal/config"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, &config.ObservabilityConfig{
		ServiceName: "logserver",
		Environment: "test",
		LogLevel:    "info",
	})

	log.Debug().Msg("hidden")
	log.Info().Str("user", "alice").Msg("appended")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "appended", event["message"])
	assert.Equal(t, "alice", event["user"])
	assert.Equal(t, "logserver", event["service"])
	assert.Equal(t, "test", event["env"])
}

func TestNewLogger_NilConfig(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, nil)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewRelicApp_DisabledWithoutLicense(t *testing.T) {
	app, err := NewRelicApp(config.DefaultObservabilityConfig(), zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, app)
}
