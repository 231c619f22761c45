// Package health polls the backend and turns the result into a presence
// indicator.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalambet/buddy/internal/gateway"
	"github.com/kalambet/buddy/internal/observe"
)

// DefaultInterval is the pause between checks.
const DefaultInterval = 30 * time.Second

// State is the coarse backend state.
type State int

const (
	StateUnknown State = iota
	StateConnected
	StateModelMissing
	StateOllamaDown
	StateUnreachable
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateConnected:
		return "connected"
	case StateModelMissing:
		return "model-missing"
	case StateOllamaDown:
		return "ollama-down"
	case StateUnreachable:
		return "unreachable"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Presence is one check result as shown to the user.
type Presence struct {
	State     State
	Model     string
	Text      string
	CheckedAt time.Time
	Err       error
}

// Checker is the health call of the backend client.
type Checker interface {
	Health(ctx context.Context) (gateway.HealthStatus, error)
}

// Poller runs health checks. Results are applied in start order: a check
// that started earlier never replaces the result of one that started later.
type Poller struct {
	gw       Checker
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	events   observe.Hub[Presence]

	seq   atomic.Uint64
	pubMu sync.Mutex

	mu      sync.Mutex
	latest  Presence
	applied uint64
}

// NewPoller creates a Poller. If interval is <= 0, it defaults to 30s.
func NewPoller(gw Checker, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		gw:       gw,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		latest:   Presence{State: StateUnknown, Text: "Checking connection..."},
	}
}

// Subscribe registers fn for applied results. A result superseded before
// delivery is skipped.
func (p *Poller) Subscribe(fn func(Presence)) (unsubscribe func()) {
	return p.events.Subscribe(fn)
}

// Presence returns the most recently applied result.
func (p *Poller) Presence() Presence {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Run checks immediately and then every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.Check(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}

// Check runs one health check and returns its result. The result is applied
// only if no later-started check has already been applied.
func (p *Poller) Check(ctx context.Context) Presence {
	seq := p.seq.Add(1)

	st, err := p.gw.Health(ctx)
	pres := presenceFor(st, err)
	pres.CheckedAt = p.now()
	if err != nil {
		p.logger.WarnContext(ctx, "health check failed", "error", err)
	}

	p.mu.Lock()
	apply := seq > p.applied
	if apply {
		p.applied = seq
		p.latest = pres
	}
	p.mu.Unlock()

	if apply {
		p.publish(seq, pres)
	}
	return pres
}

// publish delivers pres unless a later check was applied in the meantime.
// Deliveries are serialized, so subscribers never see a stale result last.
// Handlers must not call Check.
func (p *Poller) publish(seq uint64, pres Presence) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	p.mu.Lock()
	current := p.applied == seq
	p.mu.Unlock()
	if current {
		p.events.Publish(pres)
	}
}

func presenceFor(st gateway.HealthStatus, err error) Presence {
	switch {
	case err != nil:
		return Presence{State: StateUnreachable, Text: "Connection error", Err: err}
	case st.OllamaStatus == "running" && st.ModelAvailable:
		return Presence{State: StateConnected, Model: st.CurrentModel, Text: fmt.Sprintf("Connected (%s)", st.CurrentModel)}
	case st.OllamaStatus == "running":
		return Presence{State: StateModelMissing, Model: st.CurrentModel, Text: fmt.Sprintf("Model %s not available", st.CurrentModel)}
	default:
		return Presence{State: StateOllamaDown, Model: st.CurrentModel, Text: "Ollama not running"}
	}
}
