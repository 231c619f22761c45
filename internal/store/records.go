package store

import (
	"errors"
	"log/slog"
)

// Record keys. The names match what earlier releases of the client wrote, so
// existing local data keeps loading.
const (
	KeyConversation  = "ai-assistant-conversation"
	KeySystemPrompt  = "ai-assistant-system-prompt"
	KeySelectedModel = "ai-assistant-selected-model"
	KeyEnvironment   = "buddy-environment"
)

// Lookup reads key and reports whether it was present. Read failures other
// than a missing key are logged and treated as absent.
func (s *Store) Lookup(key string) (string, bool) {
	v, err := s.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("store: read failed, using default", "key", key, "error", err)
		}
		return "", false
	}
	return v, true
}

// GetOr returns the value under key, or def when it is missing or unreadable.
func (s *Store) GetOr(key, def string) string {
	if v, ok := s.Lookup(key); ok {
		return v
	}
	return def
}
