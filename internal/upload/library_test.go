package upload

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/kalambet/buddy/internal/fakeapi"
	"github.com/kalambet/buddy/internal/gateway"
)

type confirmFunc func(string) bool

func (f confirmFunc) Confirm(p string) bool { return f(p) }

func newTestLibrary(t *testing.T) (*Library, *gateway.Client, *fakeapi.Backend) {
	t.Helper()
	b := fakeapi.NewServer()
	t.Cleanup(b.Close)
	gw := gateway.NewWithHTTPClient(b.URL(), b.Client())
	return NewLibrary(gw, nil), gw, b
}

func TestLibraryDelete(t *testing.T) {
	lib, gw, b := newTestLibrary(t)
	ctx := context.Background()
	if _, err := gw.UploadDocument(ctx, "plan.txt", strings.NewReader("q3 plan")); err != nil {
		t.Fatalf("seeding upload: %v", err)
	}
	if err := lib.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	doc := lib.Documents()[0]

	var prompt string
	decline := confirmFunc(func(p string) bool { prompt = p; return false })
	if err := lib.Delete(ctx, doc.StoredName, doc.Filename, decline); !errors.Is(err, ErrNotConfirmed) {
		t.Errorf("Delete(declined) = %v, want ErrNotConfirmed", err)
	}
	if prompt != `Are you sure you want to delete "plan.txt"?` {
		t.Errorf("prompt = %q", prompt)
	}
	if len(b.Documents()) != 1 {
		t.Fatal("document removed without confirmation")
	}

	var published [][]gateway.Document
	lib.Subscribe(func(d []gateway.Document) { published = append(published, d) })

	if err := lib.Delete(ctx, doc.StoredName, doc.Filename, confirmFunc(func(string) bool { return true })); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := len(lib.Documents()); n != 0 {
		t.Errorf("library has %d documents after delete", n)
	}
	if len(published) != 1 || len(published[0]) != 0 {
		t.Errorf("published = %v, want one empty list", published)
	}
}

func TestLibraryRefreshFailureKeepsList(t *testing.T) {
	lib, gw, b := newTestLibrary(t)
	ctx := context.Background()
	gw.UploadDocument(ctx, "a.txt", strings.NewReader("a"))
	lib.Refresh(ctx)

	b.Fail(http.MethodGet, "/api/documents", http.StatusInternalServerError, "boom")
	if err := lib.Refresh(ctx); err == nil {
		t.Fatal("expected refresh error")
	}
	if n := len(lib.Documents()); n != 1 {
		t.Errorf("documents = %d, want previous list kept", n)
	}
}

func TestLibraryDeleteUnknown(t *testing.T) {
	lib, _, _ := newTestLibrary(t)
	err := lib.Delete(context.Background(), "missing", "missing.txt", confirmFunc(func(string) bool { return true }))
	var apiErr *gateway.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("Delete(missing) = %v, want 404 APIError", err)
	}
}
