package config

import (
	"fmt"
	"time"
)

// Backend environments.
const (
	EnvLocal  = "local"
	EnvRemote = "remote"
)

type Config struct {
	Backend BackendConfig
	Storage StorageConfig
	Log     LogConfig
	Health  HealthConfig
	Chat    ChatConfig
	Weather WeatherConfig
}

type BackendConfig struct {
	Environment string
	LocalURL    string
	RemoteURL   string
	Timeout     string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
	// File receives logs while the interactive chat owns the terminal.
	// Empty means <data_dir>/buddy.log.
	File string
}

type HealthConfig struct {
	Interval string
}

type ChatConfig struct {
	UseRAG        bool
	ContextWindow int
}

type WeatherConfig struct {
	TTL string
}

func defaults() Config {
	return Config{
		Backend: BackendConfig{
			Environment: EnvLocal,
			LocalURL:    "http://localhost:8000",
			RemoteURL:   "http://localhost:8000",
			Timeout:     "120s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Health: HealthConfig{
			Interval: "30s",
		},
		Chat: ChatConfig{
			ContextWindow: 10,
		},
		Weather: WeatherConfig{
			TTL: "10m",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/buddy/config.json, then applies BUDDY_* environment
// variables on top.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := ValidateEnvironment(cfg.Backend.Environment); err != nil {
		return Config{}, fmt.Errorf("backend.environment: %w", err)
	}
	return cfg, nil
}

// ValidateEnvironment rejects anything but local and remote.
func ValidateEnvironment(env string) error {
	switch env {
	case EnvLocal, EnvRemote:
		return nil
	}
	return fmt.Errorf("unknown environment %q (want %s or %s)", env, EnvLocal, EnvRemote)
}

// BaseURL returns the backend address for env.
func (c BackendConfig) BaseURL(env string) string {
	if env == EnvRemote {
		return c.RemoteURL
	}
	return c.LocalURL
}

// TimeoutDuration parses Timeout. Unparsable values fall back to 120s.
func (c BackendConfig) TimeoutDuration() time.Duration {
	return parseDuration("backend.timeout", c.Timeout, 120*time.Second)
}

// IntervalDuration parses Interval. Unparsable values fall back to 30s.
func (c HealthConfig) IntervalDuration() time.Duration {
	return parseDuration("health.interval", c.Interval, 30*time.Second)
}

// TTLDuration parses TTL. Unparsable values fall back to 10m.
func (c WeatherConfig) TTLDuration() time.Duration {
	return parseDuration("weather.ttl", c.TTL, 10*time.Minute)
}
