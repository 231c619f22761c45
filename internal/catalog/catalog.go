// Package catalog tracks the models the backend offers and which one the
// user picked.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/kalambet/buddy/internal/gateway"
)

var (
	ErrNoModels     = errors.New("no models available")
	ErrUnknownModel = errors.New("model not offered by the backend")
)

// Lister is the model listing call of the backend client.
type Lister interface {
	ListModels(ctx context.Context) (gateway.ModelList, error)
}

// Catalog is the last fetched model list plus the selection.
type Catalog struct {
	gw  Lister
	sel ModelSetter

	mu       sync.Mutex
	models   []string
	selected string
}

// ModelSetter stores the selected model. conversation.Session satisfies it.
type ModelSetter interface {
	SetModel(model string) error
}

// New creates a Catalog. saved is the previously persisted choice, if any.
func New(gw Lister, sel ModelSetter, saved string) *Catalog {
	return &Catalog{gw: gw, sel: sel, selected: saved}
}

// Load fetches the list and resolves the selection: the saved choice if it
// is still offered, else the backend's current model, else the first one.
// On failure the previous list is kept.
func (c *Catalog) Load(ctx context.Context) error {
	list, err := c.gw.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("loading models: %w", err)
	}
	if list.Error != "" {
		return fmt.Errorf("loading models: %w", &gateway.APIError{Op: "list models", Status: 200, Detail: list.Error})
	}
	if len(list.Models) == 0 {
		c.mu.Lock()
		c.models = nil
		c.mu.Unlock()
		return ErrNoModels
	}

	c.mu.Lock()
	prev := c.selected
	c.models = slices.Clone(list.Models)
	switch {
	case prev != "" && slices.Contains(list.Models, prev):
		c.selected = prev
	case list.CurrentModel != "" && slices.Contains(list.Models, list.CurrentModel):
		c.selected = list.CurrentModel
	default:
		c.selected = list.Models[0]
	}
	selected := c.selected
	c.mu.Unlock()

	if selected != prev && c.sel != nil {
		return c.sel.SetModel(selected)
	}
	return nil
}

// Models returns the last fetched list.
func (c *Catalog) Models() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.models)
}

// Selected returns the chosen model, or "" before the first Load.
func (c *Catalog) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Select chooses name, which must be in the loaded list, and persists it.
func (c *Catalog) Select(name string) error {
	c.mu.Lock()
	if !slices.Contains(c.models, name) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	c.selected = name
	c.mu.Unlock()

	if c.sel == nil {
		return nil
	}
	return c.sel.SetModel(name)
}
