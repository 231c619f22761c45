package notes

import (
	"context"
	"errors"
	"net/http"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/buddy/internal/fakeapi"
	"github.com/kalambet/buddy/internal/gateway"
)

type confirmFunc func(string) bool

func (f confirmFunc) Confirm(p string) bool { return f(p) }

var (
	yes = confirmFunc(func(string) bool { return true })
	no  = confirmFunc(func(string) bool { return false })
)

func newTestManager(t *testing.T) (*Manager, *fakeapi.Backend) {
	t.Helper()
	b := fakeapi.NewServer()
	t.Cleanup(b.Close)
	return NewManager(gateway.NewWithHTTPClient(b.URL(), b.Client()), nil), b
}

func TestRefreshReplacesCollection(t *testing.T) {
	m, b := newTestManager(t)
	b.SeedNote("first", "yellow")
	b.SeedNote("second", "blue")

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	got := m.Notes()
	if len(got) != 2 || got[0].Content != "first" || got[1].Content != "second" {
		t.Errorf("Notes = %+v", got)
	}
	if m.Fallback() {
		t.Error("Fallback() = true after a successful refresh")
	}
}

func TestRefreshFailureInstallsDemoSet(t *testing.T) {
	m, b := newTestManager(t)
	b.FailTransport(http.MethodGet, "/api/sticky-notes")

	var changed []Event
	m.Subscribe(func(ev Event) {
		if ev.Kind == EventChanged {
			changed = append(changed, ev)
		}
	})

	if err := m.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh succeeded against a failing backend")
	}
	if !m.Fallback() {
		t.Fatal("Fallback() = false, want true")
	}
	notes := m.Notes()
	if len(notes) == 0 {
		t.Fatal("demo set is empty")
	}
	for _, n := range notes {
		if !IsDemo(n) {
			t.Errorf("note %+v is not marked as demo", n)
		}
	}
	if len(changed) != 1 || !changed[0].Fallback {
		t.Errorf("changed events = %+v, want one fallback event", changed)
	}

	b.Recover(http.MethodGet, "/api/sticky-notes")
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh after recovery: %v", err)
	}
	if m.Fallback() || len(m.Notes()) != 0 {
		t.Errorf("after recovery Fallback=%v notes=%d, want false/0", m.Fallback(), len(m.Notes()))
	}
}

func TestRefreshFailureKeepsLastKnownGood(t *testing.T) {
	m, b := newTestManager(t)
	b.SeedNote("keep me", "pink")
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	b.Fail(http.MethodGet, "/api/sticky-notes", http.StatusInternalServerError, "db locked")
	if err := m.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if m.Fallback() {
		t.Error("Fallback() = true, want last known-good kept")
	}
	if got := m.Notes(); len(got) != 1 || got[0].Content != "keep me" {
		t.Errorf("Notes = %+v, want the previous collection", got)
	}
}

func TestCreate(t *testing.T) {
	m, b := newTestManager(t)
	ctx := context.Background()

	if err := m.Create(ctx, "   ", "blue"); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("Create(blank) = %v, want ErrEmptyContent", err)
	}
	if n := b.Count(http.MethodPost, "/api/sticky-notes"); n != 0 {
		t.Errorf("create calls after blank = %d, want 0", n)
	}

	if err := m.Create(ctx, "Call the bank", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got := m.Notes()
	if len(got) != 1 || got[0].Color != DefaultColor || got[0].Content != "Call the bank" {
		t.Errorf("Notes = %+v", got)
	}
	if n := b.Count(http.MethodGet, "/api/sticky-notes"); n != 1 {
		t.Errorf("refreshes = %d, want 1", n)
	}

	if err := m.Create(ctx, "x", "magenta"); !errors.Is(err, ErrUnknownColor) {
		t.Errorf("Create(bad color) = %v, want ErrUnknownColor", err)
	}
}

func TestCreateFailureLeavesCollection(t *testing.T) {
	m, b := newTestManager(t)
	b.SeedNote("existing", "yellow")
	m.Refresh(context.Background())
	b.Fail(http.MethodPost, "/api/sticky-notes", http.StatusInternalServerError, "disk full")

	var notices []string
	m.Subscribe(func(ev Event) {
		if ev.Kind == EventNotice {
			notices = append(notices, ev.Notice)
		}
	})

	if err := m.Create(context.Background(), "new", "blue"); err == nil {
		t.Fatal("expected create error")
	}
	if got := m.Notes(); len(got) != 1 {
		t.Errorf("Notes = %+v, want unchanged", got)
	}
	if len(notices) != 1 || notices[0] != "Failed to create note: disk full" {
		t.Errorf("notices = %q", notices)
	}
}

func TestUpdateUnchangedIsNoop(t *testing.T) {
	m, b := newTestManager(t)
	id := b.SeedNote("Buy milk", "yellow")
	m.Refresh(context.Background())
	before := m.Notes()
	refreshes := b.Count(http.MethodGet, "/api/sticky-notes")

	if err := m.Update(context.Background(), id, "Buy milk", "yellow"); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if n := len(b.Requests()); n != refreshes {
		t.Errorf("backend saw %d requests, want %d (no new calls)", n, refreshes)
	}
	after := m.Notes()
	if len(after) != len(before) || after[0] != before[0] {
		t.Errorf("collection changed: %+v -> %+v", before, after)
	}
}

func TestUpdate(t *testing.T) {
	m, b := newTestManager(t)
	ctx := context.Background()
	id := b.SeedNote("draft", "green")
	m.Refresh(ctx)

	if err := m.Update(ctx, id, "final", ""); err != nil {
		t.Fatalf("Update: %v", err)
	}
	n, _ := m.Get(id)
	if n.Content != "final" || n.Color != "green" {
		t.Errorf("note = %+v, want content updated and color kept", n)
	}

	if err := m.Update(ctx, 999, "x", ""); !errors.Is(err, ErrUnknownNote) {
		t.Errorf("Update(unknown) = %v, want ErrUnknownNote", err)
	}
}

func TestRecolor(t *testing.T) {
	m, b := newTestManager(t)
	ctx := context.Background()
	id := b.SeedNote("paint me", "yellow")
	m.Refresh(ctx)

	if err := m.Recolor(ctx, id, "Purple"); err != nil {
		t.Fatalf("Recolor: %v", err)
	}
	n, _ := b.Note(id)
	if n.Color != "purple" || n.Content != "paint me" {
		t.Errorf("stored note = %+v", n)
	}

	puts := b.Count(http.MethodPut, "/api/sticky-notes/1")
	if err := m.Recolor(ctx, id, "purple"); err != nil {
		t.Fatalf("Recolor same: %v", err)
	}
	if got := b.Count(http.MethodPut, "/api/sticky-notes/1"); got != puts {
		t.Errorf("PUT calls = %d, want %d", got, puts)
	}
}

func TestDemoNotesAreReadOnly(t *testing.T) {
	m, b := newTestManager(t)
	b.FailTransport(http.MethodGet, "/api/sticky-notes")
	m.Refresh(context.Background())

	demo := m.Notes()[0]
	ctx := context.Background()
	if err := m.Update(ctx, demo.ID, "changed", ""); !errors.Is(err, ErrDemoNote) {
		t.Errorf("Update(demo) = %v, want ErrDemoNote", err)
	}
	if err := m.Delete(ctx, demo.ID, yes); !errors.Is(err, ErrDemoNote) {
		t.Errorf("Delete(demo) = %v, want ErrDemoNote", err)
	}
}

func TestDelete(t *testing.T) {
	m, b := newTestManager(t)
	ctx := context.Background()
	id := b.SeedNote("temporary", "orange")
	m.Refresh(ctx)

	for _, c := range []Confirmer{nil, no} {
		if err := m.Delete(ctx, id, c); !errors.Is(err, ErrNotConfirmed) {
			t.Errorf("Delete without confirmation = %v, want ErrNotConfirmed", err)
		}
	}
	if _, ok := b.Note(id); !ok {
		t.Fatal("note deleted without confirmation")
	}

	if err := m.Delete(ctx, id, yes); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := m.Get(id); ok {
		t.Error("note still in collection after delete")
	}
}

func TestSearch(t *testing.T) {
	m, b := newTestManager(t)
	b.SeedNote("Meeting with team at 2 PM", "yellow")
	b.SeedNote("Groceries", "green")
	m.Refresh(context.Background())

	got := m.Search("meeting")
	if len(got) != 1 || got[0].Content != "Meeting with team at 2 PM" {
		t.Errorf("Search(meeting) = %+v", got)
	}
	if n := len(m.Notes()); n != 2 {
		t.Errorf("collection size after search = %d, want 2", n)
	}
	if n := len(m.Search("")); n != 2 {
		t.Errorf("Search(\"\") = %d notes, want 2", n)
	}
	if n := len(m.Search("dentist")); n != 0 {
		t.Errorf("Search(dentist) = %d notes, want 0", n)
	}
}

func TestConcurrentMutationsOnDifferentNotes(t *testing.T) {
	m, b := newTestManager(t)
	ctx := context.Background()
	ids := []int{b.SeedNote("a", "yellow"), b.SeedNote("b", "yellow"), b.SeedNote("c", "yellow")}
	m.Refresh(ctx)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := m.Recolor(ctx, id, "blue"); err != nil {
				t.Errorf("Recolor(%d): %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	for _, n := range m.Notes() {
		if n.Color != "blue" {
			t.Errorf("note %d color = %q, want blue", n.ID, n.Color)
		}
	}
	if n := m.locks.size(); n != 0 {
		t.Errorf("lock table holds %d entries after all mutations", n)
	}
}

// slowGateway holds every note mutation briefly and records how many run
// at once per note id.
type slowGateway struct {
	mu       sync.Mutex
	notes    map[int]gateway.Note
	inFlight map[int]int
	maxSeen  map[int]int
	calls    int
}

func newSlowGateway(notes ...gateway.Note) *slowGateway {
	g := &slowGateway{notes: map[int]gateway.Note{}, inFlight: map[int]int{}, maxSeen: map[int]int{}}
	for _, n := range notes {
		g.notes[n.ID] = n
	}
	return g
}

func (g *slowGateway) ListNotes(context.Context) ([]gateway.Note, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gateway.Note, 0, len(g.notes))
	for _, n := range g.notes {
		out = append(out, n)
	}
	return out, nil
}

func (g *slowGateway) CreateNote(context.Context, gateway.NoteInput) (gateway.Note, error) {
	return gateway.Note{}, errors.New("not supported")
}

func (g *slowGateway) UpdateNote(_ context.Context, id int, in gateway.NoteInput) error {
	return g.hold(id, func() error {
		if _, ok := g.notes[id]; !ok {
			return &gateway.APIError{Op: "update note", Status: 404, Detail: "Note not found"}
		}
		g.notes[id] = gateway.Note{ID: id, Content: in.Content, Color: in.Color}
		return nil
	})
}

func (g *slowGateway) DeleteNote(_ context.Context, id int) error {
	return g.hold(id, func() error {
		delete(g.notes, id)
		return nil
	})
}

func (g *slowGateway) hold(id int, apply func() error) error {
	g.mu.Lock()
	g.calls++
	g.inFlight[id]++
	if g.inFlight[id] > g.maxSeen[id] {
		g.maxSeen[id] = g.inFlight[id]
	}
	g.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight[id]--
	return apply()
}

func TestMutationsOnSameNoteAreSerialized(t *testing.T) {
	gw := newSlowGateway(
		gateway.Note{ID: 1, Content: "shared", Color: "yellow"},
		gateway.Note{ID: 2, Content: "other", Color: "yellow"},
	)
	m := NewManager(gw, nil)
	ctx := context.Background()
	if err := m.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	var wg sync.WaitGroup
	run := func(op func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Later operations may find the note gone; only overlap matters.
			_ = op()
		}()
	}
	for i := 0; i < 4; i++ {
		content := fmt.Sprintf("edit %d", i)
		run(func() error { return m.Update(ctx, 1, content, "") })
	}
	run(func() error { return m.Recolor(ctx, 1, "pink") })
	run(func() error { return m.Delete(ctx, 1, yes) })
	run(func() error { return m.Recolor(ctx, 2, "blue") })
	wg.Wait()

	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.calls < 2 {
		t.Fatalf("backend saw %d mutations, want at least 2", gw.calls)
	}
	if got := gw.maxSeen[1]; got != 1 {
		t.Errorf("max concurrent mutations on note 1 = %d, want 1", got)
	}
	if n := m.locks.size(); n != 0 {
		t.Errorf("lock table holds %d entries after all mutations", n)
	}
}
