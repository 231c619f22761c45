package notes

import (
	"context"
	"errors"
	"sync"
)

// ErrNotEditing is returned by Editor methods that need an open edit.
var ErrNotEditing = errors.New("no note is being edited")

// Editor is the single inline-edit slot. At most one note is being edited;
// opening another first commits or discards the current one.
type Editor struct {
	m *Manager

	mu       sync.Mutex
	active   bool
	id       int
	original string
	draft    string
}

// NewEditor creates an Editor over m.
func NewEditor(m *Manager) *Editor {
	return &Editor{m: m}
}

// Begin opens note id for editing. A pending edit is committed if its draft
// changed and discarded otherwise; a failed commit is returned, but the new
// edit still opens.
func (e *Editor) Begin(ctx context.Context, id int) error {
	if _, err := e.m.mutable(id); err != nil {
		return err
	}

	prevErr := e.finish(ctx)

	// The commit above refetches the collection; read id from the new one.
	n, err := e.m.mutable(id)
	if err != nil {
		return errors.Join(prevErr, err)
	}

	e.mu.Lock()
	e.active = true
	e.id = id
	e.original = n.Content
	e.draft = n.Content
	e.mu.Unlock()
	return prevErr
}

// SetDraft replaces the draft text of the open edit.
func (e *Editor) SetDraft(content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return ErrNotEditing
	}
	e.draft = content
	return nil
}

// Commit closes the open edit, saving it when the draft changed.
func (e *Editor) Commit(ctx context.Context) error {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if !active {
		return ErrNotEditing
	}
	return e.finish(ctx)
}

// Cancel discards the open edit.
func (e *Editor) Cancel() {
	e.mu.Lock()
	e.active = false
	e.mu.Unlock()
}

// Editing returns the note being edited and its draft.
func (e *Editor) Editing() (id int, draft string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id, e.draft, e.active
}

// finish closes whatever edit is open. The slot is cleared before the
// backend call so a concurrent Begin never sees a half-committed edit.
func (e *Editor) finish(ctx context.Context) error {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return nil
	}
	id, original, draft := e.id, e.original, e.draft
	e.active = false
	e.mu.Unlock()

	if draft == original {
		return nil
	}
	return e.m.Update(ctx, id, draft, "")
}
