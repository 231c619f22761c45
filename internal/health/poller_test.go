package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/buddy/internal/fakeapi"
	"github.com/kalambet/buddy/internal/gateway"
)

func TestPresenceText(t *testing.T) {
	tests := []struct {
		name   string
		status gateway.HealthStatus
		fail   bool
		state  State
		text   string
	}{
		{
			name:   "connected",
			status: gateway.HealthStatus{OllamaStatus: "running", ModelAvailable: true, CurrentModel: "phi3:3.8b"},
			state:  StateConnected,
			text:   "Connected (phi3:3.8b)",
		},
		{
			name:   "model missing",
			status: gateway.HealthStatus{OllamaStatus: "running", CurrentModel: "llama3:8b"},
			state:  StateModelMissing,
			text:   "Model llama3:8b not available",
		},
		{
			name:   "ollama down",
			status: gateway.HealthStatus{OllamaStatus: "not running"},
			state:  StateOllamaDown,
			text:   "Ollama not running",
		},
		{
			name:  "unreachable",
			fail:  true,
			state: StateUnreachable,
			text:  "Connection error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := fakeapi.NewServer()
			defer b.Close()
			b.SetHealth(tt.status)
			if tt.fail {
				b.FailTransport(http.MethodGet, "/api/health")
			}

			p := NewPoller(gateway.NewWithHTTPClient(b.URL(), b.Client()), 0, nil)
			got := p.Check(context.Background())
			if got.State != tt.state || got.Text != tt.text {
				t.Errorf("Check = (%v, %q), want (%v, %q)", got.State, got.Text, tt.state, tt.text)
			}
			if p.Presence().Text != tt.text {
				t.Errorf("Presence().Text = %q, want %q", p.Presence().Text, tt.text)
			}
		})
	}
}

// gatedChecker blocks the first call until release is closed.
type gatedChecker struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (g *gatedChecker) Health(ctx context.Context) (gateway.HealthStatus, error) {
	n := g.calls.Add(1)
	if n == 1 {
		close(g.started)
		<-g.release
		return gateway.HealthStatus{OllamaStatus: "not running"}, nil
	}
	return gateway.HealthStatus{OllamaStatus: "running", ModelAvailable: true, CurrentModel: "new"}, nil
}

func TestSlowOlderCheckDoesNotOverwrite(t *testing.T) {
	g := &gatedChecker{started: make(chan struct{}), release: make(chan struct{})}
	p := NewPoller(g, time.Hour, nil)

	var published []string
	p.Subscribe(func(pr Presence) { published = append(published, pr.Text) })

	done := make(chan Presence)
	go func() { done <- p.Check(context.Background()) }()
	<-g.started

	p.Check(context.Background())
	close(g.release)
	stale := <-done

	if stale.Text != "Ollama not running" {
		t.Errorf("stale check returned %q", stale.Text)
	}
	if got := p.Presence().Text; got != "Connected (new)" {
		t.Errorf("Presence = %q, want the newer result", got)
	}
	if len(published) != 1 || published[0] != "Connected (new)" {
		t.Errorf("published = %q, want only the newer result", published)
	}
}

// stepChecker reports Ollama down on the first call and connected after.
type stepChecker struct{ calls atomic.Int32 }

func (c *stepChecker) Health(context.Context) (gateway.HealthStatus, error) {
	if c.calls.Add(1) == 1 {
		return gateway.HealthStatus{OllamaStatus: "not running"}, nil
	}
	return gateway.HealthStatus{OllamaStatus: "running", ModelAvailable: true, CurrentModel: "new"}, nil
}

func TestSupersededResultIsNotPublished(t *testing.T) {
	p := NewPoller(&stepChecker{}, time.Hour, nil)

	var mu sync.Mutex
	var published []string
	p.Subscribe(func(pr Presence) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, pr.Text)
	})

	waitFor := func(text string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for p.Presence().Text != text {
			if time.Now().After(deadline) {
				t.Fatalf("Presence never became %q", text)
			}
			time.Sleep(time.Millisecond)
		}
	}

	// Both checks apply their result while delivery is held back.
	p.pubMu.Lock()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); p.Check(context.Background()) }()
	waitFor("Ollama not running")
	go func() { defer wg.Done(); p.Check(context.Background()) }()
	waitFor("Connected (new)")
	p.pubMu.Unlock()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(published) != 1 || published[0] != "Connected (new)" {
		t.Errorf("published = %q, want only the newer result", published)
	}
}

func TestRunChecksImmediatelyAndRepeats(t *testing.T) {
	b := fakeapi.NewServer()
	defer b.Close()
	p := NewPoller(gateway.NewWithHTTPClient(b.URL(), b.Client()), 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var seen atomic.Int32
	p.Subscribe(func(Presence) { seen.Add(1) })

	go p.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for seen.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d checks ran", seen.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
}

func TestNewPollerDefaults(t *testing.T) {
	p := NewPoller(nil, 0, nil)
	if p.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", p.interval, DefaultInterval)
	}
	if p.Presence().State != StateUnknown {
		t.Errorf("initial state = %v, want unknown", p.Presence().State)
	}
}
