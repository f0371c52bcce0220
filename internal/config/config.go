// Package config loads qrlink configuration from defaults, the YAML file in the
// qrlink home directory, an optional .env file and QRLINK_* environment
// variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "QRLINK_"

// Store backends
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendVault  = "vault"
)

// Config is the complete qrlink configuration.
type Config struct {
	API       APIConfig       `yaml:"api" envPrefix:"API_"`
	Realtime  RealtimeConfig  `yaml:"realtime" envPrefix:"REALTIME_"`
	Session   SessionConfig   `yaml:"session"`
	Store     StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type RealtimeConfig struct {
	// BaseURL defaults to the API base URL with its scheme swapped to ws/wss.
	BaseURL    string        `yaml:"base_url,omitempty" env:"BASE_URL"`
	Path       string        `yaml:"path" env:"PATH"`
	Reconnect  bool          `yaml:"reconnect" env:"RECONNECT"`
	MaxBackoff time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
}

type SessionConfig struct {
	// ReconnectOnRotation reopens the realtime channel when a profile
	// update rotates the access token. Off by default.
	ReconnectOnRotation bool `yaml:"reconnect_on_rotation" env:"RECONNECT_ON_ROTATION"`
}

type StoreConfig struct {
	Backend       string `yaml:"backend" env:"BACKEND"`
	Path          string `yaml:"path,omitempty" env:"PATH"`
	PassphraseEnv string `yaml:"passphrase_env,omitempty" env:"PASSPHRASE_ENV"`
	RedisURL      string `yaml:"redis_url,omitempty" env:"REDIS_URL"`
	Namespace     string `yaml:"namespace,omitempty" env:"NAMESPACE"`
	VaultAddress  string `yaml:"vault_address,omitempty" env:"VAULT_ADDRESS"`
	VaultToken    string `yaml:"vault_token,omitempty" env:"VAULT_TOKEN"`
	VaultMount    string `yaml:"vault_mount,omitempty" env:"VAULT_MOUNT"`
	VaultPath     string `yaml:"vault_path,omitempty" env:"VAULT_PATH"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled" env:"ENABLED"`
	Endpoint   string  `yaml:"endpoint,omitempty" env:"ENDPOINT"`
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" env:"ADDR"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Realtime: RealtimeConfig{
			Path:       "/ws/listen",
			MaxBackoff: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend:       BackendFile,
			PassphraseEnv: EnvPrefix + "STORE_PASSPHRASE",
			Namespace:     "default",
			VaultMount:    "secret",
			VaultPath:     "qrlink/credentials",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			SampleRate: 1.0,
		},
	}
}

// HomeDir resolves the qrlink home directory: override, then $QRLINK_HOME,
// then ~/.qrlink.
func HomeDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if dir := os.Getenv(EnvPrefix + "HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".qrlink"), nil
}

// Path returns the config file location inside home.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Load builds the effective configuration for home. A missing config file is
// not an error.
func Load(home string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(home))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(home, "credentials.json")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads only the YAML file, without env overrides. Used by
// `config set` so environment values are never written back to disk.
func LoadFile(home string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(Path(home))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save writes cfg to path, creating the directory with owner-only permissions.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks URL schemes and backend prerequisites.
func (c *Config) Validate() error {
	if err := checkURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.Realtime.BaseURL != "" {
		if err := checkURL("realtime.base_url", c.Realtime.BaseURL, "ws", "wss"); err != nil {
			return err
		}
	}
	if !strings.HasPrefix(c.Realtime.Path, "/") {
		return fmt.Errorf("realtime.path must start with '/': %q", c.Realtime.Path)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}

	switch c.Store.Backend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for the redis backend")
		}
	case BackendVault:
		if c.Store.VaultAddress == "" || c.Store.VaultToken == "" {
			return fmt.Errorf("store.vault_address and store.vault_token are required for the vault backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q (want file, memory, redis or vault)", c.Store.Backend)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1")
	}
	return nil
}

func checkURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %s URL, got %q", key, strings.Join(schemes, "/"), raw)
}

// RealtimeBaseURL returns the websocket base, derived from the API base URL
// when not set explicitly.
func (c *Config) RealtimeBaseURL() string {
	if c.Realtime.BaseURL != "" {
		return strings.TrimRight(c.Realtime.BaseURL, "/")
	}
	base := strings.TrimRight(c.API.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
