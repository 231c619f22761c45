package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/buddy/internal/gateway"
	"github.com/kalambet/buddy/internal/observe"
)

var ErrNotConfirmed = errors.New("not confirmed")

// LibraryGateway lists and deletes indexed documents.
type LibraryGateway interface {
	ListDocuments(ctx context.Context) ([]gateway.Document, error)
	DeleteDocument(ctx context.Context, storedName string) error
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// Library is the backend's document list as last fetched.
type Library struct {
	gw     LibraryGateway
	log    *slog.Logger
	events observe.Hub[[]gateway.Document]

	mu   sync.Mutex
	docs []gateway.Document
}

// NewLibrary creates an empty Library.
func NewLibrary(gw LibraryGateway, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{gw: gw, log: logger}
}

// Subscribe registers fn to receive the list after every successful refresh.
func (l *Library) Subscribe(fn func([]gateway.Document)) (unsubscribe func()) {
	return l.events.Subscribe(fn)
}

// Refresh refetches the list. On failure the previous list stays.
func (l *Library) Refresh(ctx context.Context) error {
	docs, err := l.gw.ListDocuments(ctx)
	if err != nil {
		l.log.WarnContext(ctx, "loading documents failed", "error", err)
		return fmt.Errorf("loading documents: %w", err)
	}
	if docs == nil {
		docs = []gateway.Document{}
	}

	l.mu.Lock()
	l.docs = docs
	l.mu.Unlock()

	l.events.Publish(l.Documents())
	return nil
}

// Documents returns a copy of the list.
func (l *Library) Documents() []gateway.Document {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]gateway.Document, len(l.docs))
	copy(out, l.docs)
	return out
}

// Delete removes a document once c approves and refreshes the list.
func (l *Library) Delete(ctx context.Context, storedName, displayName string, c Confirmer) error {
	if c == nil || !c.Confirm(fmt.Sprintf("Are you sure you want to delete %q?", displayName)) {
		return ErrNotConfirmed
	}
	if err := l.gw.DeleteDocument(ctx, storedName); err != nil {
		return fmt.Errorf("deleting %q: %w", displayName, err)
	}
	_ = l.Refresh(ctx)
	return nil
}
