package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":65333", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.DeadlineDuration())
	assert.Equal(t, "logserver v0.1", cfg.Server.Identity)
	assert.Equal(t, int64(64<<10), cfg.Server.MaxHeaderBytes)
	assert.True(t, cfg.Auth.DebugBypass)
	assert.Nil(t, cfg.Database)
	assert.Nil(t, cfg.Archive)
	require.NotNil(t, cfg.Observability)
	assert.Equal(t, "logserver", cfg.Observability.ServiceName)
	assert.Equal(t, "development", cfg.Observability.Environment)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOGSERVER_PRIMARY__ENV", "production")
	t.Setenv("LOGSERVER_SERVER__ADDR", "127.0.0.1:9000")
	t.Setenv("LOGSERVER_SERVER__DEADLINE", "5")
	t.Setenv("LOGSERVER_SERVER__MAX_HEADER_BYTES", "8192")
	t.Setenv("LOGSERVER_STORAGE__LOG_DIR", "/var/lib/logserver")
	t.Setenv("LOGSERVER_AUTH__DEBUG_BYPASS", "false")
	t.Setenv("LOGSERVER_DATABASE__URL", "postgres://localhost/logserver")
	t.Setenv("LOGSERVER_OBSERVABILITY__LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.DeadlineDuration())
	assert.Equal(t, int64(8192), cfg.Server.MaxHeaderBytes)
	assert.Equal(t, "/var/lib/logserver", cfg.Storage.LogDir)
	assert.False(t, cfg.Auth.DebugBypass)
	require.NotNil(t, cfg.Database)
	assert.Equal(t, "postgres://localhost/logserver", cfg.Database.URL)
	assert.Equal(t, zerolog.DebugLevel, cfg.Observability.Level())
	assert.Equal(t, "production", cfg.Observability.Environment)
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOGSERVER_SERVER__IDENTITY=test-server\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LOGSERVER_SERVER__IDENTITY") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-server", cfg.Server.Identity)
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("LOGSERVER_SERVER__DEADLINE", "0")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_BadLogLevel(t *testing.T) {
	t.Setenv("LOGSERVER_OBSERVABILITY__LOG_LEVEL", "loud")
	_, err := Load("")
	require.Error(t, err)
}
