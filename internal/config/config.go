package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before they are mapped
// onto config keys. Nested keys are separated by a double underscore, so
// LOGSERVER_SERVER__ADDR sets server.addr.
const EnvPrefix = "LOGSERVER_"

type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Storage       StorageConfig        `koanf:"storage" validate:"required"`
	Keys          KeysConfig           `koanf:"keys" validate:"required"`
	Auth          AuthConfig           `koanf:"auth" validate:"required"`
	Database      *DatabaseConfig      `koanf:"database"`
	Archive       *ArchiveConfig       `koanf:"archive"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Addr         string `koanf:"addr" validate:"required"`
	OpsAddr      string `koanf:"ops_addr"`
	Deadline     int    `koanf:"deadline" validate:"required,min=1"`
	Identity     string `koanf:"identity" validate:"required"`
	MaxBodyBytes int64  `koanf:"max_body_bytes" validate:"required,min=1"`
	// MaxHeaderBytes bounds the request line plus headers.
	MaxHeaderBytes int64 `koanf:"max_header_bytes" validate:"required,min=1"`
}

// DeadlineDuration is the per-connection deadline.
func (s ServerConfig) DeadlineDuration() time.Duration {
	return time.Duration(s.Deadline) * time.Second
}

type StorageConfig struct {
	LogDir string `koanf:"log_dir" validate:"required"`
}

type KeysConfig struct {
	PrivateKey string `koanf:"private_key" validate:"required"`
	PublicKey  string `koanf:"public_key" validate:"required"`
}

type AuthConfig struct {
	Issuer      string `koanf:"issuer" validate:"required"`
	DebugBypass bool   `koanf:"debug_bypass"`
}

type DatabaseConfig struct {
	URL      string `koanf:"url" validate:"required"`
	MaxConns int32  `koanf:"max_conns" validate:"min=0"`
}

type ArchiveConfig struct {
	Endpoint  string `koanf:"endpoint" validate:"required"`
	Region    string `koanf:"region"`
	Bucket    string `koanf:"bucket" validate:"required"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
}

// Default returns the configuration used for every key the environment
// does not set.
func Default() *Config {
	return &Config{
		Primary: Primary{Env: "development"},
		Server: ServerConfig{
			Addr:           ":65333",
			OpsAddr:        "",
			Deadline:       30,
			Identity:       "logserver v0.1",
			MaxBodyBytes:   1 << 20,
			MaxHeaderBytes: 64 << 10,
		},
		Storage: StorageConfig{LogDir: "logs"},
		Keys: KeysConfig{
			PrivateKey: "keys/logserver.key",
			PublicKey:  "keys/logserver.pub",
		},
		Auth: AuthConfig{
			Issuer:      "logserver",
			DebugBypass: true,
		},
	}
}

// Load reads the optional dotenv file (ignored when missing) and then the
// LOGSERVER_ environment on top of Default.
func Load(dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}

	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// Observability is a pointer so an absent section can be told apart
	// from one that was set explicitly.
	if cfg.Observability == nil {
		cfg.Observability = DefaultObservabilityConfig()
	}
	cfg.Observability.ServiceName = "logserver"
	cfg.Observability.Environment = cfg.Primary.Env
	if err := cfg.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}

	return cfg, nil
}
