// Package weather serves the header weather widget from a short-lived cache.
package weather

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kalambet/buddy/internal/gateway"
)

// DefaultTTL is how long a reading is reused.
const DefaultTTL = 10 * time.Minute

const currentKey = "current"

// Fetcher is the weather call of the backend client.
type Fetcher interface {
	Weather(ctx context.Context) (gateway.Weather, error)
}

// Service caches the backend's weather reading.
type Service struct {
	gw     Fetcher
	cache  *cache.Cache
	logger *slog.Logger

	// fetchMu collapses concurrent misses into one backend call.
	fetchMu sync.Mutex
}

// NewService creates a Service. If ttl is <= 0, it defaults to 10 minutes.
func NewService(gw Fetcher, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gw:     gw,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// Current returns the cached reading or fetches a fresh one. Failures are
// not cached.
func (s *Service) Current(ctx context.Context) (gateway.Weather, error) {
	if w, ok := s.cached(); ok {
		return w, nil
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	if w, ok := s.cached(); ok {
		return w, nil
	}

	w, err := s.gw.Weather(ctx)
	if err != nil {
		s.logger.Warn("weather unavailable", "error", err)
		return gateway.Weather{}, fmt.Errorf("fetching weather: %w", err)
	}
	s.cache.Set(currentKey, w, cache.DefaultExpiration)
	return w, nil
}

// Invalidate drops the cached reading, e.g. after switching backends.
func (s *Service) Invalidate() {
	s.cache.Delete(currentKey)
}

func (s *Service) cached() (gateway.Weather, bool) {
	if x, found := s.cache.Get(currentKey); found {
		return x.(gateway.Weather), true
	}
	return gateway.Weather{}, false
}

// Format renders a reading for the status line, e.g. "21°C sunny".
func Format(w gateway.Weather) string {
	if w.Icon == "" {
		return fmt.Sprintf("%.0f°C", w.Temperature)
	}
	return fmt.Sprintf("%.0f°C %s", w.Temperature, w.Icon)
}
