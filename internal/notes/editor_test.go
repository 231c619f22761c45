package notes

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/kalambet/buddy/internal/gateway"
)

func TestEditorBeginCommitsChangedDraft(t *testing.T) {
	m, b := newTestManager(t)
	ctx := context.Background()
	a := b.SeedNote("note A", "yellow")
	bID := b.SeedNote("note B", "blue")
	m.Refresh(ctx)

	e := NewEditor(m)
	if err := e.Begin(ctx, a); err != nil {
		t.Fatalf("Begin(A): %v", err)
	}
	if err := e.SetDraft("note A, edited"); err != nil {
		t.Fatalf("SetDraft: %v", err)
	}
	if err := e.Begin(ctx, bID); err != nil {
		t.Fatalf("Begin(B): %v", err)
	}

	if n, _ := b.Note(a); n.Content != "note A, edited" {
		t.Errorf("A = %q, want committed draft", n.Content)
	}
	id, draft, ok := e.Editing()
	if !ok || id != bID || draft != "note B" {
		t.Errorf("Editing = (%d, %q, %v), want B open", id, draft, ok)
	}
}

func TestEditorBeginDiscardsUnchangedDraft(t *testing.T) {
	m, b := newTestManager(t)
	ctx := context.Background()
	a := b.SeedNote("note A", "yellow")
	bID := b.SeedNote("note B", "blue")
	m.Refresh(ctx)

	e := NewEditor(m)
	e.Begin(ctx, a)
	e.Begin(ctx, bID)

	if n := b.Count(http.MethodPut, "/api/sticky-notes/1"); n != 0 {
		t.Errorf("PUT calls = %d, want 0 for an unchanged draft", n)
	}
}

func TestEditorCommitAndCancel(t *testing.T) {
	m, b := newTestManager(t)
	ctx := context.Background()
	id := b.SeedNote("original", "yellow")
	m.Refresh(ctx)

	e := NewEditor(m)
	if err := e.Commit(ctx); !errors.Is(err, ErrNotEditing) {
		t.Errorf("Commit with nothing open = %v, want ErrNotEditing", err)
	}
	if err := e.SetDraft("x"); !errors.Is(err, ErrNotEditing) {
		t.Errorf("SetDraft with nothing open = %v, want ErrNotEditing", err)
	}

	e.Begin(ctx, id)
	e.SetDraft("throwaway")
	e.Cancel()
	if _, _, ok := e.Editing(); ok {
		t.Error("edit still open after Cancel")
	}
	if n, _ := b.Note(id); n.Content != "original" {
		t.Errorf("content = %q after cancel, want original", n.Content)
	}

	e.Begin(ctx, id)
	e.SetDraft("kept")
	if err := e.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if n, _ := m.Get(id); n.Content != "kept" {
		t.Errorf("content = %q, want kept", n.Content)
	}
}

func TestEditorBeginUnknownNote(t *testing.T) {
	m, _ := newTestManager(t)
	e := NewEditor(m)
	if err := e.Begin(context.Background(), 42); !errors.Is(err, ErrUnknownNote) {
		t.Errorf("Begin(unknown) = %v, want ErrUnknownNote", err)
	}
}

func TestEditorFailedCommitStillOpensNext(t *testing.T) {
	m, b := newTestManager(t)
	ctx := context.Background()
	a := b.SeedNote("A", "yellow")
	bID := b.SeedNote("B", "yellow")
	m.Refresh(ctx)
	b.Fail(http.MethodPut, "/api/sticky-notes/1", http.StatusInternalServerError, "nope")

	e := NewEditor(m)
	e.Begin(ctx, a)
	e.SetDraft("A2")
	if err := e.Begin(ctx, bID); err == nil {
		t.Error("Begin(B) returned nil, want the failed commit of A")
	}
	if id, _, ok := e.Editing(); !ok || id != bID {
		t.Errorf("Editing = %d/%v, want B open", id, ok)
	}
}

func TestEditorBeginReadsNoteAfterCommitRefresh(t *testing.T) {
	m, b := newTestManager(t)
	ctx := context.Background()
	a := b.SeedNote("note A", "yellow")
	bID := b.SeedNote("note B", "blue")
	m.Refresh(ctx)

	// Another client changes B after our last refresh.
	other := gateway.NewWithHTTPClient(b.URL(), b.Client())
	if err := other.UpdateNote(ctx, bID, gateway.NoteInput{Content: "note B, from elsewhere", Color: "blue"}); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}

	e := NewEditor(m)
	e.Begin(ctx, a)
	e.SetDraft("note A, edited")
	if err := e.Begin(ctx, bID); err != nil {
		t.Fatalf("Begin(B): %v", err)
	}

	id, draft, ok := e.Editing()
	if !ok || id != bID || draft != "note B, from elsewhere" {
		t.Errorf("Editing = (%d, %q, %v), want B's refreshed content", id, draft, ok)
	}

	// Committing the untouched draft must not overwrite B.
	if err := e.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if n, _ := b.Note(bID); n.Content != "note B, from elsewhere" {
		t.Errorf("B = %q, want it unchanged", n.Content)
	}
}
