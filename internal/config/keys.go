package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "backend.environment", typ: kString, env: "BUDDY_BACKEND_ENVIRONMENT",
		apply:   func(cfg *Config, v any) { cfg.Backend.Environment = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.Environment },
	},
	{
		key: "backend.local_url", typ: kString, env: "BUDDY_BACKEND_LOCAL_URL",
		apply:   func(cfg *Config, v any) { cfg.Backend.LocalURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.LocalURL },
	},
	{
		key: "backend.remote_url", typ: kString, env: "BUDDY_BACKEND_REMOTE_URL",
		apply:   func(cfg *Config, v any) { cfg.Backend.RemoteURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.RemoteURL },
	},
	{
		key: "backend.timeout", typ: kDuration, env: "BUDDY_BACKEND_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Backend.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.Timeout },
	},
	{
		key: "storage.data_dir", typ: kString, env: "BUDDY_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "BUDDY_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "BUDDY_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
	{
		key: "health.interval", typ: kDuration, env: "BUDDY_HEALTH_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Health.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Health.Interval },
	},
	{
		key: "chat.use_rag", typ: kBool, env: "BUDDY_CHAT_USE_RAG",
		apply:   func(cfg *Config, v any) { cfg.Chat.UseRAG = v.(bool) },
		extract: func(cfg Config) any { return cfg.Chat.UseRAG },
	},
	{
		key: "chat.context_window", typ: kInt, env: "BUDDY_CHAT_CONTEXT_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Chat.ContextWindow = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.ContextWindow },
	},
	{
		key: "weather.ttl", typ: kDuration, env: "BUDDY_WEATHER_TTL",
		apply:   func(cfg *Config, v any) { cfg.Weather.TTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Weather.TTL },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString, kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString, kDuration:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

func parseDuration(key, raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q. Using %s.\n", key, raw, def)
		return def
	}
	return d
}
