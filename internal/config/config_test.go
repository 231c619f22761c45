package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestDefaults verifies all default values are applied when no config file exists.
func TestDefaults(t *testing.T) {
	cfg, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "missing.json")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Backend.Environment != EnvLocal {
		t.Errorf("Backend.Environment = %q, want %q", cfg.Backend.Environment, EnvLocal)
	}
	if cfg.Backend.LocalURL != "http://localhost:8000" {
		t.Errorf("Backend.LocalURL = %q, want %q", cfg.Backend.LocalURL, "http://localhost:8000")
	}
	if cfg.Backend.TimeoutDuration() != 120*time.Second {
		t.Errorf("Backend.TimeoutDuration() = %v, want 120s", cfg.Backend.TimeoutDuration())
	}
	if cfg.Health.IntervalDuration() != 30*time.Second {
		t.Errorf("Health.IntervalDuration() = %v, want 30s", cfg.Health.IntervalDuration())
	}
	if cfg.Weather.TTLDuration() != 10*time.Minute {
		t.Errorf("Weather.TTLDuration() = %v, want 10m", cfg.Weather.TTLDuration())
	}
	if cfg.Chat.ContextWindow != 10 {
		t.Errorf("Chat.ContextWindow = %d, want 10", cfg.Chat.ContextWindow)
	}
	if cfg.Chat.UseRAG {
		t.Error("Chat.UseRAG = true, want false")
	}
}

func TestFileValues(t *testing.T) {
	path := writeTempConfig(t, `{
  "backend.environment": "remote",
  "backend.remote_url": "http://10.0.0.5:8000",
  "chat.use_rag": true,
  "chat.context_window": 6,
  "health.interval": "5s"
}`)

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Backend.BaseURL(cfg.Backend.Environment); got != "http://10.0.0.5:8000" {
		t.Errorf("BaseURL = %q, want remote URL", got)
	}
	if !cfg.Chat.UseRAG {
		t.Error("Chat.UseRAG = false, want true")
	}
	if cfg.Chat.ContextWindow != 6 {
		t.Errorf("Chat.ContextWindow = %d, want 6", cfg.Chat.ContextWindow)
	}
	if cfg.Health.IntervalDuration() != 5*time.Second {
		t.Errorf("Health.IntervalDuration() = %v, want 5s", cfg.Health.IntervalDuration())
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `{"backend.local_url": "http://file:8000", "log.level": "warn"}`)

	t.Setenv("BUDDY_BACKEND_LOCAL_URL", "http://env:9000")
	t.Setenv("BUDDY_CHAT_USE_RAG", "true")
	t.Setenv("BUDDY_CHAT_CONTEXT_WINDOW", "not-a-number")

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.LocalURL != "http://env:9000" {
		t.Errorf("Backend.LocalURL = %q, want env value", cfg.Backend.LocalURL)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want file value", cfg.Log.Level)
	}
	if !cfg.Chat.UseRAG {
		t.Error("Chat.UseRAG = false, want true from env")
	}
	if cfg.Chat.ContextWindow != 10 {
		t.Errorf("Chat.ContextWindow = %d, want default after bad env value", cfg.Chat.ContextWindow)
	}
}

func TestInvalidEnvironmentRejected(t *testing.T) {
	path := writeTempConfig(t, `{"backend.environment": "staging"}`)
	if _, err := loadWith(newFileBackend(path)); err == nil {
		t.Error("expected error for unknown environment")
	}
}

func TestInvalidIntInFile(t *testing.T) {
	path := writeTempConfig(t, `{"chat.context_window": 2.5}`)
	if _, err := loadWith(newFileBackend(path)); err == nil {
		t.Error("expected error for a fractional integer")
	}
}

func TestBadDurationFallsBack(t *testing.T) {
	c := WeatherConfig{TTL: "soon"}
	if got := c.TTLDuration(); got != 10*time.Minute {
		t.Errorf("TTLDuration() = %v, want fallback 10m", got)
	}
}

func TestSetKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buddy", "config.json")
	b := newFileBackend(path)

	tests := []struct {
		key, value string
		wantErr    bool
	}{
		{"backend.environment", "remote", false},
		{"backend.environment", "staging", true},
		{"chat.context_window", "4", false},
		{"chat.context_window", "four", true},
		{"chat.use_rag", "yes", true},
		{"chat.use_rag", "1", false},
		{"health.interval", "45s", false},
		{"health.interval", "often", true},
		{"no.such.key", "x", true},
	}
	for _, tt := range tests {
		err := setKeyWith(b, tt.key, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("setKeyWith(%q, %q) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
		}
	}

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Backend.Environment != EnvRemote || cfg.Chat.ContextWindow != 4 || !cfg.Chat.UseRAG {
		t.Errorf("reloaded config = %+v", cfg)
	}
	if cfg.Health.Interval != "45s" {
		t.Errorf("Health.Interval = %q, want 45s", cfg.Health.Interval)
	}
}

func TestShowAllCoversValidKeys(t *testing.T) {
	infos := ShowAll(defaults())
	keys := ValidKeys()
	if len(infos) != len(keys) {
		t.Fatalf("ShowAll returned %d keys, ValidKeys %d", len(infos), len(keys))
	}
	for i, info := range infos {
		if info.Key != keys[i] {
			t.Errorf("ShowAll[%d].Key = %q, want %q", i, info.Key, keys[i])
		}
		if info.EnvVar == "" {
			t.Errorf("key %s has no env var", info.Key)
		}
	}
}
