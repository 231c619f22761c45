// Package notes mirrors the backend's sticky notes. Every mutation is
// followed by a full refetch; nothing is merged client-side.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kalambet/buddy/internal/gateway"
	"github.com/kalambet/buddy/internal/observe"
)

// Colors lists the note colors, default first.
var Colors = []string{"yellow", "blue", "pink", "green", "purple", "orange"}

// DefaultColor is applied when a note is created without one.
const DefaultColor = "yellow"

var (
	ErrEmptyContent = errors.New("note content is empty")
	ErrUnknownNote  = errors.New("note not found")
	ErrDemoNote     = errors.New("demo notes cannot be changed")
	ErrUnknownColor = errors.New("unknown note color")
	ErrNotConfirmed = errors.New("not confirmed")
)

// Gateway is the part of the backend client the manager uses.
type Gateway interface {
	ListNotes(ctx context.Context) ([]gateway.Note, error)
	CreateNote(ctx context.Context, in gateway.NoteInput) (gateway.Note, error)
	UpdateNote(ctx context.Context, id int, in gateway.NoteInput) error
	DeleteNote(ctx context.Context, id int) error
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// EventKind identifies a manager event.
type EventKind int

const (
	// EventChanged carries the new collection after a refresh.
	EventChanged EventKind = iota
	// EventNotice carries a transient message for the user.
	EventNotice
)

// Event is published on the manager's hub.
type Event struct {
	Kind     EventKind
	Notes    []gateway.Note
	Fallback bool
	Notice   string
	Err      error
}

// Manager holds the last known-good notes collection.
type Manager struct {
	gw     Gateway
	log    *slog.Logger
	events observe.Hub[Event]
	locks  keyedMutex

	// refreshMu serializes refetches so the last one to finish wins.
	refreshMu sync.Mutex

	mu       sync.Mutex
	notes    map[int]gateway.Note
	fallback bool
}

// NewManager creates an empty Manager. Call Refresh to load it.
func NewManager(gw Gateway, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{gw: gw, log: logger, notes: make(map[int]gateway.Note)}
}

// Subscribe registers fn for manager events.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	return m.events.Subscribe(fn)
}

// Refresh replaces the collection with the backend's. On failure the last
// known-good collection stays; if there is none, the demo set is installed
// and Fallback reports true. The error is returned either way.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	list, err := m.gw.ListNotes(ctx)
	if err != nil {
		m.mu.Lock()
		if len(m.notes) == 0 {
			m.notes = demoNotes()
			m.fallback = true
		}
		snapshot, fallback := m.sortedLocked(), m.fallback
		m.mu.Unlock()

		m.log.WarnContext(ctx, "loading notes failed", "error", err, "fallback", fallback)
		m.events.Publish(Event{Kind: EventChanged, Notes: snapshot, Fallback: fallback})
		m.notice("Could not load notes: "+gateway.Reason(err), err)
		return fmt.Errorf("loading notes: %w", err)
	}

	next := make(map[int]gateway.Note, len(list))
	for _, n := range list {
		next[n.ID] = n
	}

	m.mu.Lock()
	m.notes = next
	m.fallback = false
	snapshot := m.sortedLocked()
	m.mu.Unlock()

	m.events.Publish(Event{Kind: EventChanged, Notes: snapshot})
	return nil
}

// Notes returns the collection sorted by id.
func (m *Manager) Notes() []gateway.Note {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked()
}

// Get returns the note with id.
func (m *Manager) Get(id int) (gateway.Note, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	return n, ok
}

// Fallback reports whether the demo set is showing.
func (m *Manager) Fallback() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallback
}

// Search returns the notes whose content contains term, ignoring case.
// An empty term returns every note.
func (m *Manager) Search(term string) []gateway.Note {
	all := m.Notes()
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return all
	}
	out := make([]gateway.Note, 0, len(all))
	for _, n := range all {
		if strings.Contains(strings.ToLower(n.Content), term) {
			out = append(out, n)
		}
	}
	return out
}

// Create adds a note. The collection only changes through the refresh that
// follows; no unconfirmed note is ever shown.
func (m *Manager) Create(ctx context.Context, content, color string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		m.notice("Please enter some content for the note", ErrEmptyContent)
		return ErrEmptyContent
	}
	color, err := normalizeColor(color)
	if err != nil {
		return err
	}

	if _, err := m.gw.CreateNote(ctx, gateway.NoteInput{Content: content, Color: color}); err != nil {
		m.notice("Failed to create note: "+gateway.Reason(err), err)
		return fmt.Errorf("creating note: %w", err)
	}
	m.notice("Note added", nil)
	m.refreshAfter(ctx)
	return nil
}

// Update replaces a note's content. Content equal to what is shown is a
// no-op with no backend call. An empty color keeps the current one.
func (m *Manager) Update(ctx context.Context, id int, content, color string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}

	unlock := m.locks.lock(id)
	defer unlock()

	cur, err := m.mutable(id)
	if err != nil {
		return err
	}
	if content == cur.Content {
		return nil
	}
	if color == "" {
		color = cur.Color
	}
	if color, err = normalizeColor(color); err != nil {
		return err
	}

	if err := m.gw.UpdateNote(ctx, id, gateway.NoteInput{Content: content, Color: color}); err != nil {
		m.notice("Failed to update note: "+gateway.Reason(err), err)
		return fmt.Errorf("updating note %d: %w", id, err)
	}
	m.refreshAfter(ctx)
	return nil
}

// Recolor changes a note's color, keeping its content.
func (m *Manager) Recolor(ctx context.Context, id int, color string) error {
	color, err := normalizeColor(color)
	if err != nil {
		return err
	}

	unlock := m.locks.lock(id)
	defer unlock()

	cur, err := m.mutable(id)
	if err != nil {
		return err
	}
	if color == cur.Color {
		return nil
	}

	if err := m.gw.UpdateNote(ctx, id, gateway.NoteInput{Content: cur.Content, Color: color}); err != nil {
		m.notice("Failed to change note color: "+gateway.Reason(err), err)
		return fmt.Errorf("recoloring note %d: %w", id, err)
	}
	m.refreshAfter(ctx)
	return nil
}

// Delete removes a note once c approves.
func (m *Manager) Delete(ctx context.Context, id int, c Confirmer) error {
	if _, err := m.mutable(id); err != nil {
		return err
	}
	if c == nil || !c.Confirm("Delete this note? This cannot be undone.") {
		return ErrNotConfirmed
	}

	unlock := m.locks.lock(id)
	defer unlock()

	if err := m.gw.DeleteNote(ctx, id); err != nil {
		m.notice("Failed to delete note: "+gateway.Reason(err), err)
		return fmt.Errorf("deleting note %d: %w", id, err)
	}
	m.notice("Note deleted", nil)
	m.refreshAfter(ctx)
	return nil
}

func (m *Manager) mutable(id int) (gateway.Note, error) {
	n, ok := m.Get(id)
	switch {
	case !ok:
		return gateway.Note{}, fmt.Errorf("%w: %d", ErrUnknownNote, id)
	case IsDemo(n):
		return gateway.Note{}, ErrDemoNote
	}
	return n, nil
}

// refreshAfter refetches after a successful mutation. A failure here is
// already reported by Refresh and does not fail the mutation.
func (m *Manager) refreshAfter(ctx context.Context) {
	_ = m.Refresh(ctx)
}

func (m *Manager) notice(text string, err error) {
	m.events.Publish(Event{Kind: EventNotice, Notice: text, Err: err})
}

func (m *Manager) sortedLocked() []gateway.Note {
	out := make([]gateway.Note, 0, len(m.notes))
	for _, n := range m.notes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func normalizeColor(color string) (string, error) {
	color = strings.ToLower(strings.TrimSpace(color))
	if color == "" {
		return DefaultColor, nil
	}
	for _, c := range Colors {
		if c == color {
			return color, nil
		}
	}
	return "", fmt.Errorf("%w %q (want one of %s)", ErrUnknownColor, color, strings.Join(Colors, ", "))
}
